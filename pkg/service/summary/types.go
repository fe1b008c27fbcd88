package summary

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
)

// Service defines the interface for conversation summarization
type Service interface {
	// Summarize compresses a block of consecutive messages into one
	// summary text, keeping continuity with prior summaries.
	Summarize(ctx context.Context, input Input) (string, error)
}

// Input represents one block of messages to summarize
type Input struct {
	Agent    *model.Agent
	Prior    []*model.ConversationSummary // earlier summaries, oldest first
	Messages []*model.Message             // the block to compress, oldest first
}

// llmResponse is the structured output from the LLM
type llmResponse struct {
	Summary string `json:"summary"`
}
