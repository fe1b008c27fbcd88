package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// CanonicalID is a UUID-based identifier for CanonicalAnswer
type CanonicalID string

// NewCanonicalID generates a new UUID v4 CanonicalID
func NewCanonicalID() CanonicalID {
	return CanonicalID(uuid.New().String())
}

// CanonicalAnswer is a cached answer to a frequently asked question.
// When a new question is similar enough to Question, the stored Answer is
// served verbatim and ReuseCount is incremented instead of generating.
type CanonicalAnswer struct {
	ID           CanonicalID
	AgentID      types.AgentID
	Question     string // canonical phrasing of the question
	Embedding    []float32
	Answer       string
	Confidence   int // 0..100, confidence at the time the answer was stored
	ReuseCount   int64
	CreatedAt    time.Time
	LastReusedAt time.Time // zero until the first reuse
}
