package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// ConversationRepository defines the interface for Conversation and
// Message data persistence
type ConversationRepository interface {
	// Create creates a new conversation
	Create(ctx context.Context, conv *model.Conversation) error

	// Get retrieves a conversation by ID
	Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// ListByAgent retrieves all conversations of an agent, most recent first
	ListByAgent(ctx context.Context, agentID types.AgentID) ([]*model.Conversation, error)

	// AppendMessage stores a message, assigning the next Seq for its
	// conversation and bumping the conversation's LastMessageAt. The
	// returned message carries the assigned Seq.
	AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListMessagesAfter retrieves messages with Seq > afterSeq in ascending
	// Seq order, up to limit. limit <= 0 means no limit.
	ListMessagesAfter(ctx context.Context, convID model.ConversationID, afterSeq int64, limit int) ([]*model.Message, error)

	// ListRecentMessages retrieves the last n messages in ascending Seq order
	ListRecentMessages(ctx context.Context, convID model.ConversationID, n int) ([]*model.Message, error)
}
