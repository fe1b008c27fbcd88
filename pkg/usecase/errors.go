package usecase

import "errors"

// Sentinel errors for use case layer
var (
	// Not found errors
	ErrAgentNotFound        = errors.New("agent not found")
	ErrConversationNotFound = errors.New("conversation not found")
	ErrEscalationNotFound   = errors.New("escalation not found")

	// State errors
	ErrEscalationClosed = errors.New("escalation is no longer pending")
	ErrConfigInvalid    = errors.New("agent config is invalid")
)

// Context keys for error values
const (
	AgentIDKey        = "agent_id"
	ConversationIDKey = "conversation_id"
	EscalationIDKey   = "escalation_id"
	ViewerIDKey       = "viewer_id"
)
