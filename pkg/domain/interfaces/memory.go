package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ScoredMemory is a retrieval hit with its cosine similarity to the query
type ScoredMemory struct {
	Memory     *model.Memory
	Similarity float64
}

// MemoryRepository defines the interface for Memory data persistence
type MemoryRepository interface {
	// Put stores a new memory entry
	Put(ctx context.Context, memory *model.Memory) error

	// Get retrieves a memory entry by ID
	Get(ctx context.Context, agentID types.AgentID, id model.MemoryID) (*model.Memory, error)

	// ListLive retrieves all live memories of an agent
	ListLive(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error)

	// Supersede marks a memory as merged into another. Superseded memories
	// are kept but excluded from retrieval.
	Supersede(ctx context.Context, agentID types.AgentID, id, by model.MemoryID) error

	// FindNearest returns up to limit live memories most similar to the
	// embedding, restricted to layers readable at maxLayer. The layer filter
	// applies before ranking. Results are ordered by similarity descending,
	// ties broken by recency.
	FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*ScoredMemory, error)
}
