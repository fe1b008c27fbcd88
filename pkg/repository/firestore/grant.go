package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// grantDoc is keyed by viewer ID within the agent's grants subcollection.
type grantDoc struct {
	AgentID   types.AgentID        `firestore:"AgentID"`
	ViewerID  types.ViewerID       `firestore:"ViewerID"`
	Layer     types.KnowledgeLayer `firestore:"Layer"`
	CreatedAt time.Time            `firestore:"CreatedAt"`
	UpdatedAt time.Time            `firestore:"UpdatedAt"`
}

type grantRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *grantRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *grantRepository) grantsCollection(agentID types.AgentID) *firestore.CollectionRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("grants")
}

func (r *grantRepository) Put(ctx context.Context, grant *model.AccessGrant) error {
	docRef := r.grantsCollection(grant.AgentID).Doc(grant.ViewerID.String())

	now := time.Now().UTC()
	doc := &grantDoc{
		AgentID:   grant.AgentID,
		ViewerID:  grant.ViewerID,
		Layer:     grant.Layer,
		CreatedAt: grant.CreatedAt,
		UpdatedAt: now,
	}

	existing, err := docRef.Get(ctx)
	switch {
	case err == nil:
		var d grantDoc
		if err := existing.DataTo(&d); err != nil {
			return goerr.Wrap(err, "failed to unmarshal existing grant")
		}
		doc.CreatedAt = d.CreatedAt
	case status.Code(err) == codes.NotFound:
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
	default:
		return goerr.Wrap(err, "failed to check existing grant",
			goerr.V("agentID", grant.AgentID), goerr.V("viewerID", grant.ViewerID))
	}

	if _, err := docRef.Set(ctx, doc); err != nil {
		return goerr.Wrap(err, "failed to put access grant",
			goerr.V("agentID", grant.AgentID), goerr.V("viewerID", grant.ViewerID))
	}
	return nil
}

func (r *grantRepository) Get(ctx context.Context, agentID types.AgentID, viewerID types.ViewerID) (*model.AccessGrant, error) {
	doc, err := r.grantsCollection(agentID).Doc(viewerID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "access grant not found",
				goerr.V("agentID", agentID), goerr.V("viewerID", viewerID))
		}
		return nil, goerr.Wrap(err, "failed to get access grant",
			goerr.V("agentID", agentID), goerr.V("viewerID", viewerID))
	}

	var d grantDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal access grant")
	}

	return &model.AccessGrant{
		AgentID:   d.AgentID,
		ViewerID:  d.ViewerID,
		Layer:     d.Layer,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}
