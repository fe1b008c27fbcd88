package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// MemoryID is a UUID-based identifier for Memory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

// Memory is a consolidated fact the agent learned from conversations.
// Memories are merged rather than deleted: a merge creates a new winner
// and flags the victims via SupersededBy.
type Memory struct {
	ID              MemoryID
	AgentID         types.AgentID
	Kind            types.MemoryKind
	Content         string
	Confidence      int // 0..100, assigned at extraction
	Layer           types.KnowledgeLayer
	SourceMessageID MessageID // message the memory was extracted from, may be empty
	Embedding       []float32 // 768 dimensions
	SupersededBy    MemoryID  // zero while the memory is live
	CreatedAt       time.Time
}

// Live reports whether the memory is still retrievable
func (m *Memory) Live() bool {
	return m.SupersededBy == ""
}
