package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type canonicalRepository struct {
	mu      sync.Mutex
	answers map[types.AgentID]map[model.CanonicalID]*model.CanonicalAnswer
}

func newCanonicalRepository() *canonicalRepository {
	return &canonicalRepository{
		answers: make(map[types.AgentID]map[model.CanonicalID]*model.CanonicalAnswer),
	}
}

func copyCanonical(a *model.CanonicalAnswer) *model.CanonicalAnswer {
	copied := *a
	if a.Embedding != nil {
		copied.Embedding = make([]float32, len(a.Embedding))
		copy(copied.Embedding, a.Embedding)
	}
	return &copied
}

func (r *canonicalRepository) Put(ctx context.Context, answer *model.CanonicalAnswer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if answer.ID == "" {
		answer.ID = model.NewCanonicalID()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}
	stored := copyCanonical(answer)

	if _, exists := r.answers[stored.AgentID]; !exists {
		r.answers[stored.AgentID] = make(map[model.CanonicalID]*model.CanonicalAnswer)
	}
	r.answers[stored.AgentID][stored.ID] = stored
	return nil
}

func (r *canonicalRepository) Get(ctx context.Context, agentID types.AgentID, id model.CanonicalID) (*model.CanonicalAnswer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.answers[agentID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}

	answer, exists := bucket[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}

	return copyCanonical(answer), nil
}

func (r *canonicalRepository) FindNearest(ctx context.Context, agentID types.AgentID, embedding []float32, limit int) ([]*interfaces.ScoredCanonical, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var candidates []*interfaces.ScoredCanonical
	for _, a := range r.answers[agentID] {
		if len(a.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredCanonical{
			Answer:     copyCanonical(a),
			Similarity: cosineSimilarity(embedding, a.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Answer.CreatedAt.After(candidates[j].Answer.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

func (r *canonicalRepository) IncrementReuse(ctx context.Context, agentID types.AgentID, id model.CanonicalID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.answers[agentID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}

	answer, exists := bucket[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}

	answer.ReuseCount++
	answer.LastReusedAt = time.Now().UTC()
	return nil
}
