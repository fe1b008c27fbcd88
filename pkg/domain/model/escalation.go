package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// EscalationID is a UUID-based identifier for Escalation
type EscalationID string

// NewEscalationID generates a new UUID v4 EscalationID
func NewEscalationID() EscalationID {
	return EscalationID(uuid.New().String())
}

// Escalation is a ticket handed to the owner when the agent declined to
// answer on its own. The owner's answer flows back into the conversation
// and seeds the canonical cache.
type Escalation struct {
	ID             EscalationID
	AgentID        types.AgentID
	ConversationID ConversationID
	MessageID      MessageID // the viewer message that triggered the escalation
	Question       string
	Status         types.EscalationStatus
	Answer         string // set when Status is ANSWERED
	CreatedAt      time.Time
	AnsweredAt     time.Time // zero until answered
}
