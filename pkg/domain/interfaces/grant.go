package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// GrantRepository defines the interface for AccessGrant persistence
type GrantRepository interface {
	// Put creates or replaces a viewer's grant for an agent
	Put(ctx context.Context, grant *model.AccessGrant) error

	// Get retrieves a viewer's grant for an agent. Absence of a grant is
	// reported via the repository's not-found error.
	Get(ctx context.Context, agentID types.AgentID, viewerID types.ViewerID) (*model.AccessGrant, error)
}
