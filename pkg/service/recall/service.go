package recall

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// client implements Service interface
type client struct {
	llmClient gollem.LLMClient
}

// Option is a functional option for client configuration
type Option func(*client)

// New creates a new recall service with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (Service, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &client{
		llmClient: llmClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Extract analyzes a conversation turn and extracts memories worth keeping
func (c *client) Extract(ctx context.Context, input Input) ([]*model.Memory, error) {
	if len(input.Messages) == 0 {
		return nil, nil
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(buildResponseSchema()),
		gollem.WithSessionSystemPrompt(buildSystemPrompt()),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buildUserPrompt(input)))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content from LLM")
	}
	if len(resp.Texts) == 0 {
		return nil, goerr.New("empty LLM response")
	}

	var llmResp llmResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &llmResp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", resp.Texts[0]))
	}

	if len(llmResp.Memories) == 0 {
		return nil, nil
	}

	sourceID := latestViewerMessageID(input.Messages)

	memories := make([]*model.Memory, 0, len(llmResp.Memories))
	for _, extracted := range llmResp.Memories {
		kind, err := types.ParseMemoryKind(extracted.Kind)
		if err != nil {
			// One bad entry must not discard the rest of the batch
			logging.From(ctx).Warn("skipping memory with unknown kind",
				"kind", extracted.Kind, "content", extracted.Content)
			continue
		}
		if strings.TrimSpace(extracted.Content) == "" {
			continue
		}

		layer, err := types.ParseKnowledgeLayer(extracted.Layer)
		if err != nil {
			// Unclassifiable sensitivity defaults to the most restricted
			// layer so a labeling mistake never widens exposure
			layer = types.LayerIntimate
		}

		embedding, err := c.generateEmbedding(ctx, extracted.Content)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to generate embedding",
				goerr.V("content", extracted.Content))
		}

		memories = append(memories, &model.Memory{
			AgentID:         input.Agent.ID,
			Kind:            kind,
			Content:         extracted.Content,
			Confidence:      model.ClampScore(extracted.Confidence),
			Layer:           layer,
			SourceMessageID: sourceID,
			Embedding:       embedding,
		})
	}

	return memories, nil
}

// latestViewerMessageID finds the message the memories originate from
func latestViewerMessageID(messages []*model.Message) model.MessageID {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == types.RoleViewer {
			return messages[i].ID
		}
	}
	return ""
}

// buildSystemPrompt creates the fixed system prompt for memory extraction
func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a memory extraction assistant for a personal AI delegate. Your task is to read one conversation turn and extract durable facts worth remembering.\n\n")
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. Extract only information that stays true beyond this conversation. Ignore greetings, small talk and one-off requests.\n")
	sb.WriteString("2. For each memory, provide:\n")
	sb.WriteString("   - kind: one of fact, preference, relationship, event\n")
	sb.WriteString("   - content: a single self-contained sentence (in the same language as the conversation)\n")
	sb.WriteString("   - confidence: 0-100, how certain the statement is from the conversation alone\n")
	sb.WriteString("   - layer: sensitivity of the memory. public for freely shareable facts, friends for personal but harmless details, intimate for private matters.\n")
	sb.WriteString("3. If nothing is worth remembering, return an empty array.\n")

	return sb.String()
}

// buildUserPrompt creates the user prompt with agent context and the turn transcript
func buildUserPrompt(input Input) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "## Agent\n\n**Name:** %s\n", input.Agent.Name)
	if input.Agent.Persona != "" {
		fmt.Fprintf(&sb, "**Persona:** %s\n", input.Agent.Persona)
	}
	sb.WriteString("\n## Conversation turn:\n\n")

	for _, msg := range input.Messages {
		fmt.Fprintf(&sb, "**%s:** %s\n", msg.Role, msg.Text)
	}

	return sb.String()
}

// buildResponseSchema creates the JSON schema for structured output
func buildResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "MemoryExtractionResponse",
		Description: "Memories extracted from a conversation turn",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"memories": {
				Type:        gollem.TypeArray,
				Description: "Durable facts worth remembering, empty when there are none",
				Required:    true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"kind": {
							Type:        gollem.TypeString,
							Description: "Memory kind: fact, preference, relationship or event",
							Required:    true,
						},
						"content": {
							Type:        gollem.TypeString,
							Description: "A single self-contained sentence",
							Required:    true,
						},
						"confidence": {
							Type:        gollem.TypeInteger,
							Description: "Certainty of the statement, 0 to 100",
							Required:    true,
						},
						"layer": {
							Type:        gollem.TypeString,
							Description: "Sensitivity layer: public, friends or intimate",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

// generateEmbedding generates an embedding vector for the given text
func (c *client) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.llmClient.GenerateEmbedding(ctx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate embedding")
	}

	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned")
	}

	result := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		result[i] = float32(v)
	}

	return result, nil
}
