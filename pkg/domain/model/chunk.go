package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// EmbeddingDimension is the dimension of the embedding vector
// Gemini text-embedding-004 uses 768 dimensions
const EmbeddingDimension = 768

// ChunkID is a UUID-based identifier for KnowledgeChunk
type ChunkID string

// NewChunkID generates a new UUID v4 ChunkID
func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

// KnowledgeChunk is one embedded unit of owner-provided knowledge.
// Chunks are immutable once embedded; re-ingesting a source creates new
// chunks and marks the old ones superseded instead of updating in place.
type KnowledgeChunk struct {
	ID           ChunkID
	AgentID      types.AgentID
	Text         string
	Embedding    []float32 // 768 dimensions
	Layer        types.KnowledgeLayer
	Source       string  // label of where the text came from (e.g. "bio", "faq")
	SupersededBy ChunkID // zero while the chunk is live
	CreatedAt    time.Time
}

// Live reports whether the chunk is still retrievable
func (c *KnowledgeChunk) Live() bool {
	return c.SupersededBy == ""
}
