package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// NewAgentID generates a new UUID v4 AgentID. Seeded agents may carry
// human-chosen slugs instead; both forms pass AgentID.Validate.
func NewAgentID() types.AgentID {
	return types.AgentID(uuid.New().String())
}

// Agent represents a delegate that answers on behalf of its owner
type Agent struct {
	ID        types.AgentID
	OwnerID   types.ViewerID // owner's viewer identity, granted intimate access
	Name      string
	Persona   string // seed for the generation system prompt
	CreatedAt time.Time
	UpdatedAt time.Time
}
