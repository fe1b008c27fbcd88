package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// AccessGrant raises one viewer's maximum readable layer for one agent.
// Without a grant every viewer reads the public layer only; the owner
// always resolves to intimate without a stored grant.
type AccessGrant struct {
	AgentID   types.AgentID
	ViewerID  types.ViewerID
	Layer     types.KnowledgeLayer
	CreatedAt time.Time
	UpdatedAt time.Time
}
