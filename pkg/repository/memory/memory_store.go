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

type memoryRepository struct {
	mu      sync.RWMutex
	entries map[types.AgentID]map[model.MemoryID]*model.Memory
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{
		entries: make(map[types.AgentID]map[model.MemoryID]*model.Memory),
	}
}

func copyMemory(m *model.Memory) *model.Memory {
	copied := *m
	if m.Embedding != nil {
		copied.Embedding = make([]float32, len(m.Embedding))
		copy(copied.Embedding, m.Embedding)
	}
	return &copied
}

func (r *memoryRepository) Put(ctx context.Context, mem *model.Memory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if mem.ID == "" {
		mem.ID = model.NewMemoryID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}
	stored := copyMemory(mem)

	if _, exists := r.entries[stored.AgentID]; !exists {
		r.entries[stored.AgentID] = make(map[model.MemoryID]*model.Memory)
	}
	r.entries[stored.AgentID][stored.ID] = stored
	return nil
}

func (r *memoryRepository) Get(ctx context.Context, agentID types.AgentID, id model.MemoryID) (*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.entries[agentID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}

	mem, exists := bucket[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}

	return copyMemory(mem), nil
}

func (r *memoryRepository) ListLive(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Memory
	for _, m := range r.entries[agentID] {
		if m.Live() {
			result = append(result, copyMemory(m))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *memoryRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.MemoryID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[agentID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}

	mem, exists := bucket[id]
	if !exists {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}

	mem.SupersededBy = by
	return nil
}

func (r *memoryRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredMemory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Layer filter applies before any ranking
	var candidates []*interfaces.ScoredMemory
	for _, m := range r.entries[agentID] {
		if !m.Live() || !maxLayer.Covers(m.Layer) {
			continue
		}
		if len(m.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, &interfaces.ScoredMemory{
			Memory:     copyMemory(m),
			Similarity: cosineSimilarity(embedding, m.Embedding),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Memory.CreatedAt.After(candidates[j].Memory.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}
