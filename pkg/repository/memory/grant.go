package memory

import (
	"context"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type grantKey struct {
	agentID  types.AgentID
	viewerID types.ViewerID
}

type grantRepository struct {
	mu     sync.RWMutex
	grants map[grantKey]*model.AccessGrant
}

func newGrantRepository() *grantRepository {
	return &grantRepository{
		grants: make(map[grantKey]*model.AccessGrant),
	}
}

func copyGrant(g *model.AccessGrant) *model.AccessGrant {
	copied := *g
	return &copied
}

func (r *grantRepository) Put(ctx context.Context, grant *model.AccessGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := grantKey{agentID: grant.AgentID, viewerID: grant.ViewerID}
	stored := copyGrant(grant)
	now := time.Now().UTC()
	if existing, exists := r.grants[key]; exists {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	r.grants[key] = stored
	return nil
}

func (r *grantRepository) Get(ctx context.Context, agentID types.AgentID, viewerID types.ViewerID) (*model.AccessGrant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	grant, exists := r.grants[grantKey{agentID: agentID, viewerID: viewerID}]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "grant not found",
			goerr.V("agent_id", agentID), goerr.V("viewer_id", viewerID))
	}

	return copyGrant(grant), nil
}
