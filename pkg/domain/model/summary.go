package model

import (
	"time"

	"github.com/google/uuid"
)

// SummaryID is a UUID-based identifier for ConversationSummary
type SummaryID string

// NewSummaryID generates a new UUID v4 SummaryID
func NewSummaryID() SummaryID {
	return SummaryID(uuid.New().String())
}

// ConversationSummary compresses a block of consecutive messages so old
// conversations keep bounded context. Summaries for one conversation
// cover non-overlapping, time-ordered seq ranges.
type ConversationSummary struct {
	ID               SummaryID
	ConversationID   ConversationID
	Content          string
	MessagesIncluded int   // always > 0
	FromSeq          int64 // inclusive
	ToSeq            int64 // inclusive
	CreatedAt        time.Time
}
