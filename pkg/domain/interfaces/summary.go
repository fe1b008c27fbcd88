package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
)

// SummaryRepository defines the interface for ConversationSummary persistence
type SummaryRepository interface {
	// Put stores a new summary
	Put(ctx context.Context, summary *model.ConversationSummary) error

	// ListByConversation retrieves all summaries of a conversation in
	// ascending FromSeq order
	ListByConversation(ctx context.Context, convID model.ConversationID) ([]*model.ConversationSummary, error)

	// LastToSeq returns the highest ToSeq summarized for the conversation,
	// or 0 when nothing has been summarized yet
	LastToSeq(ctx context.Context, convID model.ConversationID) (int64, error)
}
