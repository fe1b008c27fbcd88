package recall

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/model"
)

// Service defines the interface for memory extraction from conversation turns
type Service interface {
	// Extract analyzes a conversation turn and extracts memories worth
	// keeping. It classifies kind, confidence and sensitivity layer, and
	// generates an embedding per memory.
	Extract(ctx context.Context, input Input) ([]*model.Memory, error)
}

// Input represents one conversation turn to extract memories from
type Input struct {
	Agent    *model.Agent
	Messages []*model.Message // the turn, oldest first
}

// llmResponse is the structured output from the LLM
type llmResponse struct {
	Memories []extractedMemory `json:"memories"`
}

// extractedMemory is one memory candidate proposed by the LLM
type extractedMemory struct {
	Kind       string `json:"kind"`
	Content    string `json:"content"`
	Confidence int    `json:"confidence"`
	Layer      string `json:"layer"`
}
