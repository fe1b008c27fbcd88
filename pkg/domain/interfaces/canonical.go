package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ScoredCanonical is a cache hit with its cosine similarity to the query
type ScoredCanonical struct {
	Answer     *model.CanonicalAnswer
	Similarity float64
}

// CanonicalRepository defines the interface for CanonicalAnswer persistence
type CanonicalRepository interface {
	// Put stores a new canonical answer
	Put(ctx context.Context, answer *model.CanonicalAnswer) error

	// Get retrieves a canonical answer by ID
	Get(ctx context.Context, agentID types.AgentID, id model.CanonicalID) (*model.CanonicalAnswer, error)

	// FindNearest returns up to limit canonical answers most similar to the
	// embedding, ordered by similarity descending
	FindNearest(ctx context.Context, agentID types.AgentID, embedding []float32, limit int) ([]*ScoredCanonical, error)

	// IncrementReuse adds one to the reuse counter and stamps LastReusedAt.
	// The stored answer text is never modified.
	IncrementReuse(ctx context.Context, agentID types.AgentID, id model.CanonicalID) error
}
