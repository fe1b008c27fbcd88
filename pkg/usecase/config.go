package usecase

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ConfigUseCase reads and updates an agent's answering policy
type ConfigUseCase struct {
	repo interfaces.Repository
}

// NewConfigUseCase creates a new ConfigUseCase instance
func NewConfigUseCase(repo interfaces.Repository) *ConfigUseCase {
	return &ConfigUseCase{repo: repo}
}

// GetConfig returns the agent's stored policy, or the defaults when the
// owner has never tuned it
func (uc *ConfigUseCase) GetConfig(ctx context.Context, agentID types.AgentID) (*model.AgentConfig, error) {
	if _, err := uc.repo.Agent().Get(ctx, agentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	return effectiveConfig(ctx, uc.repo, agentID), nil
}

// UpdateConfig validates and stores a policy. Out-of-range values are
// rejected with field detail, never coerced.
func (uc *ConfigUseCase) UpdateConfig(ctx context.Context, config *model.AgentConfig) (*model.AgentConfig, error) {
	if _, err := uc.repo.Agent().Get(ctx, config.AgentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, config.AgentID))
	}
	if err := config.Validate(); err != nil {
		return nil, goerr.Wrap(ErrConfigInvalid, err.Error(), goerr.V(AgentIDKey, config.AgentID))
	}

	config.UpdatedAt = time.Now()
	if err := uc.repo.Agent().PutConfig(ctx, config); err != nil {
		return nil, goerr.Wrap(err, "failed to store agent config", goerr.V(AgentIDKey, config.AgentID))
	}

	logging.From(ctx).Info("agent config updated", "agent_id", config.AgentID)

	return config, nil
}

// effectiveConfig loads the stored policy of an agent, falling back to the
// defaults when none exists. Read paths never fail on a missing config.
func effectiveConfig(ctx context.Context, repo interfaces.Repository, agentID types.AgentID) *model.AgentConfig {
	config, err := repo.Agent().GetConfig(ctx, agentID)
	if err != nil {
		return model.DefaultAgentConfig(agentID)
	}
	return config
}
