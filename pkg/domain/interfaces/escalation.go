package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// EscalationRepository defines the interface for Escalation persistence
type EscalationRepository interface {
	// Put stores a new escalation ticket
	Put(ctx context.Context, esc *model.Escalation) error

	// Get retrieves an escalation by ID
	Get(ctx context.Context, agentID types.AgentID, id model.EscalationID) (*model.Escalation, error)

	// ListByAgent retrieves escalations of an agent, newest first. An empty
	// status lists all.
	ListByAgent(ctx context.Context, agentID types.AgentID, status types.EscalationStatus) ([]*model.Escalation, error)

	// Update replaces a stored escalation
	Update(ctx context.Context, esc *model.Escalation) error
}
