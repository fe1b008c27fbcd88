package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type agentRepository struct {
	mu      sync.RWMutex
	agents  map[types.AgentID]*model.Agent
	configs map[types.AgentID]*model.AgentConfig
}

func newAgentRepository() *agentRepository {
	return &agentRepository{
		agents:  make(map[types.AgentID]*model.Agent),
		configs: make(map[types.AgentID]*model.AgentConfig),
	}
}

func copyAgent(a *model.Agent) *model.Agent {
	copied := *a
	return &copied
}

func copyAgentConfig(c *model.AgentConfig) *model.AgentConfig {
	copied := *c
	if c.BlockedTopics != nil {
		copied.BlockedTopics = make([]string, len(c.BlockedTopics))
		copy(copied.BlockedTopics, c.BlockedTopics)
	}
	if c.AllowedTiers != nil {
		copied.AllowedTiers = make([]types.ViewerTier, len(c.AllowedTiers))
		copy(copied.AllowedTiers, c.AllowedTiers)
	}
	return &copied
}

func (r *agentRepository) Put(ctx context.Context, agent *model.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyAgent(agent)
	now := time.Now().UTC()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.agents[stored.ID] = stored
	return nil
}

func (r *agentRepository) Get(ctx context.Context, id types.AgentID) (*model.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, exists := r.agents[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "agent not found", goerr.V("id", id))
	}

	return copyAgent(agent), nil
}

func (r *agentRepository) List(ctx context.Context) ([]*model.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Agent, 0, len(r.agents))
	for _, a := range r.agents {
		result = append(result, copyAgent(a))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})

	return result, nil
}

func (r *agentRepository) GetConfig(ctx context.Context, id types.AgentID) (*model.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	config, exists := r.configs[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "agent config not found", goerr.V("id", id))
	}

	return copyAgentConfig(config), nil
}

func (r *agentRepository) PutConfig(ctx context.Context, config *model.AgentConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyAgentConfig(config)
	stored.UpdatedAt = time.Now().UTC()

	r.configs[stored.AgentID] = stored
	return nil
}
