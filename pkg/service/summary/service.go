package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// client implements Service interface
type client struct {
	llmClient gollem.LLMClient
}

// Option is a functional option for client configuration
type Option func(*client)

// New creates a new summary service with the provided LLM client
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

// Summarize compresses a block of consecutive messages into one summary text
func (c *client) Summarize(ctx context.Context, input Input) (string, error) {
	if len(input.Messages) == 0 {
		return "", goerr.New("no messages to summarize")
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(buildResponseSchema()),
		gollem.WithSessionSystemPrompt(buildSystemPrompt()),
	)
	if err != nil {
		return "", goerr.Wrap(err, "failed to create LLM session")
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buildUserPrompt(input)))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate content from LLM")
	}
	if len(resp.Texts) == 0 {
		return "", goerr.New("empty LLM response")
	}

	var llmResp llmResponse
	if err := json.Unmarshal([]byte(resp.Texts[0]), &llmResp); err != nil {
		return "", goerr.Wrap(err, "failed to parse LLM response", goerr.V("response", resp.Texts[0]))
	}

	if strings.TrimSpace(llmResp.Summary) == "" {
		return "", goerr.New("LLM returned an empty summary")
	}

	return llmResp.Summary, nil
}

// buildSystemPrompt creates the fixed system prompt for summarization
func buildSystemPrompt() string {
	var sb strings.Builder

	sb.WriteString("You are a conversation summarizer for a personal AI delegate. Your task is to compress a block of messages into a short summary.\n\n")
	sb.WriteString("## Instructions:\n\n")
	sb.WriteString("1. Keep every fact, request, commitment and open question. Drop greetings and filler.\n")
	sb.WriteString("2. Write at most five sentences, in the same language as the conversation.\n")
	sb.WriteString("3. Earlier summaries are given only for continuity. Do not repeat their content, summarize only the new messages.\n")

	return sb.String()
}

// buildUserPrompt creates the user prompt with prior summaries and the message block
func buildUserPrompt(input Input) string {
	var sb strings.Builder

	if input.Agent != nil && input.Agent.Name != "" {
		fmt.Fprintf(&sb, "The assistant in this conversation is %q.\n\n", input.Agent.Name)
	}

	if len(input.Prior) > 0 {
		sb.WriteString("## Earlier summaries:\n\n")
		for _, prior := range input.Prior {
			fmt.Fprintf(&sb, "- %s\n", prior.Content)
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Messages to summarize:\n\n")
	for _, msg := range input.Messages {
		fmt.Fprintf(&sb, "**%s:** %s\n", msg.Role, msg.Text)
	}

	return sb.String()
}

// buildResponseSchema creates the JSON schema for structured output
func buildResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ConversationSummaryResponse",
		Description: "Summary of a block of conversation messages",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"summary": {
				Type:        gollem.TypeString,
				Description: "A summary of at most five sentences",
				Required:    true,
			},
		},
	}
}
