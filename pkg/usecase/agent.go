package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// AgentUseCase manages agent registration
type AgentUseCase struct {
	repo interfaces.Repository
}

// NewAgentUseCase creates a new AgentUseCase instance
func NewAgentUseCase(repo interfaces.Repository) *AgentUseCase {
	return &AgentUseCase{repo: repo}
}

// Register creates or updates an agent. An existing agent keeps its
// creation time; everything else is replaced.
func (uc *AgentUseCase) Register(ctx context.Context, agent *model.Agent) (*model.Agent, error) {
	if agent.ID == "" {
		agent.ID = model.NewAgentID()
	}
	if err := agent.ID.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid agent ID")
	}
	if strings.TrimSpace(agent.Name) == "" {
		return nil, goerr.New("agent name must not be empty", goerr.V(AgentIDKey, agent.ID))
	}

	now := time.Now()
	agent.UpdatedAt = now
	agent.CreatedAt = now
	if existing, err := uc.repo.Agent().Get(ctx, agent.ID); err == nil {
		agent.CreatedAt = existing.CreatedAt
	}

	if err := uc.repo.Agent().Put(ctx, agent); err != nil {
		return nil, goerr.Wrap(err, "failed to store agent", goerr.V(AgentIDKey, agent.ID))
	}

	logging.From(ctx).Info("agent registered", "agent_id", agent.ID, "name", agent.Name)

	return agent, nil
}

// Get retrieves an agent by ID
func (uc *AgentUseCase) Get(ctx context.Context, agentID types.AgentID) (*model.Agent, error) {
	agent, err := uc.repo.Agent().Get(ctx, agentID)
	if err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	return agent, nil
}

// List retrieves all registered agents
func (uc *AgentUseCase) List(ctx context.Context) ([]*model.Agent, error) {
	agents, err := uc.repo.Agent().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list agents")
	}
	return agents, nil
}
