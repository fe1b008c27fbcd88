package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

type canonicalDoc struct {
	ID           model.CanonicalID  `firestore:"ID"`
	AgentID      types.AgentID      `firestore:"AgentID"`
	Question     string             `firestore:"Question"`
	Embedding    firestore.Vector32 `firestore:"Embedding,omitempty"`
	Answer       string             `firestore:"Answer"`
	Confidence   int                `firestore:"Confidence"`
	ReuseCount   int64              `firestore:"ReuseCount"`
	CreatedAt    time.Time          `firestore:"CreatedAt"`
	LastReusedAt time.Time          `firestore:"LastReusedAt"`
}

func toCanonicalDoc(a *model.CanonicalAnswer) *canonicalDoc {
	doc := &canonicalDoc{
		ID:           a.ID,
		AgentID:      a.AgentID,
		Question:     a.Question,
		Answer:       a.Answer,
		Confidence:   a.Confidence,
		ReuseCount:   a.ReuseCount,
		CreatedAt:    a.CreatedAt,
		LastReusedAt: a.LastReusedAt,
	}
	if len(a.Embedding) > 0 {
		doc.Embedding = firestore.Vector32(a.Embedding)
	}
	return doc
}

func fromCanonicalDoc(d *canonicalDoc) *model.CanonicalAnswer {
	a := &model.CanonicalAnswer{
		ID:           d.ID,
		AgentID:      d.AgentID,
		Question:     d.Question,
		Answer:       d.Answer,
		Confidence:   d.Confidence,
		ReuseCount:   d.ReuseCount,
		CreatedAt:    d.CreatedAt,
		LastReusedAt: d.LastReusedAt,
	}
	if len(d.Embedding) > 0 {
		a.Embedding = []float32(d.Embedding)
	}
	return a
}

type canonicalRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *canonicalRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *canonicalRepository) canonicalsCollection(agentID types.AgentID) *firestore.CollectionRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("canonicals")
}

func (r *canonicalRepository) Put(ctx context.Context, answer *model.CanonicalAnswer) error {
	if answer.ID == "" {
		answer.ID = model.NewCanonicalID()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	docRef := r.canonicalsCollection(answer.AgentID).Doc(string(answer.ID))
	if _, err := docRef.Set(ctx, toCanonicalDoc(answer)); err != nil {
		return goerr.Wrap(err, "failed to put canonical answer", goerr.V("id", answer.ID))
	}
	return nil
}

func (r *canonicalRepository) Get(ctx context.Context, agentID types.AgentID, id model.CanonicalID) (*model.CanonicalAnswer, error) {
	doc, err := r.canonicalsCollection(agentID).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get canonical answer", goerr.V("id", id))
	}

	var d canonicalDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal canonical answer", goerr.V("id", id))
	}
	return fromCanonicalDoc(&d), nil
}

func (r *canonicalRepository) FindNearest(ctx context.Context, agentID types.AgentID, embedding []float32, limit int) ([]*interfaces.ScoredCanonical, error) {
	vq := r.canonicalsCollection(agentID).
		FindNearest("Embedding", firestore.Vector32(embedding), limit, firestore.DistanceMeasureCosine, nil)

	iter := vq.Documents(ctx)
	defer iter.Stop()

	hits := make([]*interfaces.ScoredCanonical, 0, limit)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate canonical vector search results")
		}

		var d canonicalDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal canonical answer from vector search")
		}

		a := fromCanonicalDoc(&d)
		hits = append(hits, &interfaces.ScoredCanonical{
			Answer:     a,
			Similarity: cosineSimilarity(embedding, a.Embedding),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Answer.CreatedAt.After(hits[j].Answer.CreatedAt)
	})

	return hits, nil
}

func (r *canonicalRepository) IncrementReuse(ctx context.Context, agentID types.AgentID, id model.CanonicalID) error {
	docRef := r.canonicalsCollection(agentID).Doc(string(id))
	_, err := docRef.Update(ctx, []firestore.Update{
		{Path: "ReuseCount", Value: firestore.Increment(1)},
		{Path: "LastReusedAt", Value: time.Now().UTC()},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
		}
		return goerr.Wrap(err, "failed to increment reuse", goerr.V("id", id))
	}
	return nil
}
