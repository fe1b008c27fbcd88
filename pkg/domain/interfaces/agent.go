package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// AgentRepository defines the interface for Agent data persistence
type AgentRepository interface {
	// Put creates or replaces an agent
	Put(ctx context.Context, agent *model.Agent) error

	// Get retrieves an agent by ID
	Get(ctx context.Context, id types.AgentID) (*model.Agent, error)

	// List retrieves all agents
	List(ctx context.Context) ([]*model.Agent, error)

	// GetConfig retrieves the answering policy of an agent
	GetConfig(ctx context.Context, id types.AgentID) (*model.AgentConfig, error)

	// PutConfig creates or replaces the answering policy of an agent
	PutConfig(ctx context.Context, config *model.AgentConfig) error
}
