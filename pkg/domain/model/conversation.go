package model

import (
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/google/uuid"
)

// ConversationID is a UUID-based identifier for Conversation
type ConversationID string

// NewConversationID generates a new UUID v7 ConversationID.
// v7 keeps IDs roughly time-ordered, which helps when scanning
// conversations by recency.
func NewConversationID() ConversationID {
	return ConversationID(uuid.Must(uuid.NewV7()).String())
}

// MessageID is a UUID-based identifier for Message
type MessageID string

// NewMessageID generates a new UUID v7 MessageID
func NewMessageID() MessageID {
	return MessageID(uuid.Must(uuid.NewV7()).String())
}

// Conversation is one viewer's thread with one agent
type Conversation struct {
	ID            ConversationID
	AgentID       types.AgentID
	ViewerID      types.ViewerID
	ViewerTier    types.ViewerTier
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is a single utterance in a conversation. Seq is assigned by the
// repository on append and is strictly monotonic per conversation.
type Message struct {
	ID             MessageID
	ConversationID ConversationID
	Seq            int64
	Role           types.MessageRole
	Text           string
	CreatedAt      time.Time
}
