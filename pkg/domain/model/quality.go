package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ClampScore clamps a quality score into the 0..100 range
func ClampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// QualityRecord captures how one message turn was handled, for the
// owner's metrics view. Exactly one record exists per handled message;
// the evaluation scores stay zero until a later pass backfills them.
type QualityRecord struct {
	MessageID      MessageID // doubles as the record ID, write-once
	ConversationID ConversationID
	AgentID        types.AgentID
	Outcome        types.Outcome
	Confidence     int // 0..100
	Novelty        int // 0..100, 100 means nothing similar was cached
	Relevance      int // 0..100, zero until backfilled
	Engagement     int // 0..100, zero until backfilled
	Grounding      int // 0..100, zero until backfilled
	Issues         []string
	CreatedAt      time.Time
}

// NewQualityRecord builds the scaffold record written at answer time.
// Scores are clamped so a scoring bug can never persist an out-of-range
// value.
func NewQualityRecord(msgID MessageID, convID ConversationID, agentID types.AgentID, outcome types.Outcome, confidence, novelty int, now time.Time) *QualityRecord {
	return &QualityRecord{
		MessageID:      msgID,
		ConversationID: convID,
		AgentID:        agentID,
		Outcome:        outcome,
		Confidence:     ClampScore(confidence),
		Novelty:        ClampScore(novelty),
		CreatedAt:      now,
	}
}
