package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ScoredChunk is a retrieval hit with its cosine similarity to the query
type ScoredChunk struct {
	Chunk      *model.KnowledgeChunk
	Similarity float64
}

// KnowledgeRepository defines the interface for KnowledgeChunk persistence
type KnowledgeRepository interface {
	// Put stores a new knowledge chunk
	Put(ctx context.Context, chunk *model.KnowledgeChunk) error

	// Get retrieves a chunk by ID
	Get(ctx context.Context, agentID types.AgentID, id model.ChunkID) (*model.KnowledgeChunk, error)

	// ListBySource retrieves live chunks of an agent with the given source label
	ListBySource(ctx context.Context, agentID types.AgentID, source string) ([]*model.KnowledgeChunk, error)

	// Supersede marks a chunk as replaced by another. Superseded chunks are
	// kept but excluded from retrieval.
	Supersede(ctx context.Context, agentID types.AgentID, id, by model.ChunkID) error

	// FindNearest returns up to limit live chunks most similar to the
	// embedding, restricted to layers readable at maxLayer. The layer filter
	// applies before ranking. Results are ordered by similarity descending,
	// ties broken by recency.
	FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*ScoredChunk, error)
}
