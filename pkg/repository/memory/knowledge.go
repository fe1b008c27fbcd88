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

type knowledgeRepository struct {
	mu     sync.RWMutex
	chunks map[types.AgentID]map[model.ChunkID]*model.KnowledgeChunk
}

func newKnowledgeRepository() *knowledgeRepository {
	return &knowledgeRepository{
		chunks: make(map[types.AgentID]map[model.ChunkID]*model.KnowledgeChunk),
	}
}

// copyChunk creates a deep copy of a knowledge chunk
func copyChunk(c *model.KnowledgeChunk) *model.KnowledgeChunk {
	copied := *c
	if c.Embedding != nil {
		copied.Embedding = make([]float32, len(c.Embedding))
		copy(copied.Embedding, c.Embedding)
	}
	return &copied
}

func (r *knowledgeRepository) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if chunk.ID == "" {
		chunk.ID = model.NewChunkID()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}
	stored := copyChunk(chunk)

	if _, exists := r.chunks[stored.AgentID]; !exists {
		r.chunks[stored.AgentID] = make(map[model.ChunkID]*model.KnowledgeChunk)
	}
	r.chunks[stored.AgentID][stored.ID] = stored
	return nil
}

func (r *knowledgeRepository) Get(ctx context.Context, agentID types.AgentID, id model.ChunkID) (*model.KnowledgeChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.chunks[agentID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}

	chunk, exists := bucket[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}

	return copyChunk(chunk), nil
}

func (r *knowledgeRepository) ListBySource(ctx context.Context, agentID types.AgentID, source string) ([]*model.KnowledgeChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.KnowledgeChunk
	for _, c := range r.chunks[agentID] {
		if c.Source == source && c.Live() {
			result = append(result, copyChunk(c))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *knowledgeRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.ChunkID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.chunks[agentID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}

	chunk, exists := bucket[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}

	chunk.SupersededBy = by
	return nil
}

func (r *knowledgeRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredChunk, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Layer filter applies before any ranking
	var candidates []*interfaces.ScoredChunk
	for _, c := range r.chunks[agentID] {
		if !c.Live() || !maxLayer.Covers(c.Layer) {
			continue
		}
		if len(c.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredChunk{
			Chunk:      copyChunk(c),
			Similarity: cosineSimilarity(embedding, c.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.CreatedAt.After(candidates[j].Chunk.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}
