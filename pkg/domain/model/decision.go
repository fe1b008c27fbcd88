package model

import "github.com/doppel-lab/keryx/pkg/domain/types"

// Decision is the result of handling one viewer message. Exactly one
// decision is produced per message; Reply always carries the text shown
// to the viewer, whatever the outcome.
type Decision struct {
	Outcome        types.Outcome
	Reply          string
	Confidence     int // 0..100
	Novelty        int // 0..100
	ConversationID ConversationID
	MessageID      MessageID    // the agent's reply message
	EscalationID   EscalationID // set when Outcome is ESCALATION_OFFERED
}
