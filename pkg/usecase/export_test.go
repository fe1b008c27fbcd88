package usecase

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ConfidenceScore is exported for testing
var ConfidenceScore = confidenceScore

// NoveltyScore is exported for testing
var NoveltyScore = noveltyScore

// MatchBlockedTopic is exported for testing
var MatchBlockedTopic = matchBlockedTopic

// ClusterBySimilarity is exported for testing
var ClusterBySimilarity = clusterBySimilarity

// Reply texts exported for testing
const (
	DisclaimerPrefix = disclaimerPrefix
	FallbackReply    = fallbackReply
)

// EscalationEpsilon is exported for testing
const EscalationEpsilon = escalationEpsilon

// StoreCanonical is exported for testing
func (uc *AnswerUseCase) StoreCanonical(ctx context.Context, agentID types.AgentID, question string, embedding []float32, answer string, confidence int, reuseThreshold float64) {
	uc.storeCanonical(ctx, agentID, question, embedding, answer, confidence, reuseThreshold)
}

// SetGenerationRetryDelay shortens the generation retry backoff in tests.
// The returned func restores the previous value.
func SetGenerationRetryDelay(d time.Duration) func() {
	old := generationRetryDelay
	generationRetryDelay = d
	return func() { generationRetryDelay = old }
}
