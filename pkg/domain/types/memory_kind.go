package types

import "fmt"

// MemoryKind classifies an extracted memory
type MemoryKind string

const (
	MemoryFact         MemoryKind = "fact"
	MemoryPreference   MemoryKind = "preference"
	MemoryRelationship MemoryKind = "relationship"
	MemoryEvent        MemoryKind = "event"
)

// AllMemoryKinds returns all valid memory kinds
func AllMemoryKinds() []MemoryKind {
	return []MemoryKind{
		MemoryFact,
		MemoryPreference,
		MemoryRelationship,
		MemoryEvent,
	}
}

// IsValid checks if the memory kind is valid
func (k MemoryKind) IsValid() bool {
	switch k {
	case MemoryFact, MemoryPreference, MemoryRelationship, MemoryEvent:
		return true
	default:
		return false
	}
}

// String returns the string representation of the memory kind
func (k MemoryKind) String() string {
	return string(k)
}

// ParseMemoryKind parses a string into a MemoryKind
func ParseMemoryKind(s string) (MemoryKind, error) {
	kind := MemoryKind(s)
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid memory kind: %s", s)
	}
	return kind, nil
}
