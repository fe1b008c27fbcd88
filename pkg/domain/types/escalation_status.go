package types

import "fmt"

// EscalationStatus represents the lifecycle state of an escalation ticket
type EscalationStatus string

const (
	EscalationPending  EscalationStatus = "PENDING"
	EscalationAnswered EscalationStatus = "ANSWERED"
	EscalationExpired  EscalationStatus = "EXPIRED"
)

// AllEscalationStatuses returns all valid escalation statuses
func AllEscalationStatuses() []EscalationStatus {
	return []EscalationStatus{
		EscalationPending,
		EscalationAnswered,
		EscalationExpired,
	}
}

// IsValid checks if the escalation status is valid
func (s EscalationStatus) IsValid() bool {
	switch s {
	case EscalationPending, EscalationAnswered, EscalationExpired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the escalation status
func (s EscalationStatus) String() string {
	return string(s)
}

// ParseEscalationStatus parses a string into an EscalationStatus
func ParseEscalationStatus(s string) (EscalationStatus, error) {
	status := EscalationStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid escalation status: %s", s)
	}
	return status, nil
}
