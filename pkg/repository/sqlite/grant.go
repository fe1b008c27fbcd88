package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type grantRepository struct {
	db *sql.DB
}

func (r *grantRepository) Put(ctx context.Context, grant *model.AccessGrant) error {
	now := time.Now().UTC()
	createdAt := grant.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := grant.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO access_grants (agent_id, viewer_id, layer, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (agent_id, viewer_id) DO UPDATE SET
		   layer = excluded.layer,
		   updated_at = excluded.updated_at`,
		grant.AgentID.String(), string(grant.ViewerID), grant.Layer.String(),
		encodeTime(createdAt), encodeTime(updatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put access grant",
			goerr.V("agent_id", grant.AgentID), goerr.V("viewer_id", grant.ViewerID))
	}
	return nil
}

func (r *grantRepository) Get(ctx context.Context, agentID types.AgentID, viewerID types.ViewerID) (*model.AccessGrant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT agent_id, viewer_id, layer, created_at, updated_at
		 FROM access_grants WHERE agent_id = ? AND viewer_id = ?`,
		agentID.String(), string(viewerID))

	var g model.AccessGrant
	var createdAt, updatedAt int64
	err := row.Scan(&g.AgentID, &g.ViewerID, &g.Layer, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "access grant not found",
			goerr.V("agent_id", agentID), goerr.V("viewer_id", viewerID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get access grant",
			goerr.V("agent_id", agentID), goerr.V("viewer_id", viewerID))
	}

	g.CreatedAt = decodeTime(createdAt)
	g.UpdatedAt = decodeTime(updatedAt)
	return &g, nil
}
