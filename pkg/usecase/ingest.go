package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
)

// IngestUseCase turns owner-provided text into retrievable knowledge chunks
type IngestUseCase struct {
	repo      interfaces.Repository
	llmClient gollem.LLMClient
}

// NewIngestUseCase creates a new IngestUseCase instance
func NewIngestUseCase(repo interfaces.Repository, llmClient gollem.LLMClient) *IngestUseCase {
	return &IngestUseCase{
		repo:      repo,
		llmClient: llmClient,
	}
}

// IngestKnowledge embeds one piece of text and stores it as a live chunk
// at the given layer. When a source label is set, earlier chunks with the
// same label are superseded so re-ingesting a source replaces it.
func (uc *IngestUseCase) IngestKnowledge(ctx context.Context, agentID types.AgentID, text string, layer types.KnowledgeLayer, source string) (*model.KnowledgeChunk, error) {
	if _, err := uc.repo.Agent().Get(ctx, agentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	if strings.TrimSpace(text) == "" {
		return nil, goerr.New("knowledge text must not be empty", goerr.V(AgentIDKey, agentID))
	}
	if !layer.IsValid() {
		return nil, goerr.New("invalid knowledge layer",
			goerr.V(AgentIDKey, agentID), goerr.V("layer", layer))
	}
	if uc.llmClient == nil {
		return nil, goerr.New("LLM client is not configured, cannot embed knowledge")
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	embeddings, err := uc.llmClient.GenerateEmbedding(embedCtx, model.EmbeddingDimension, []string{text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed knowledge", goerr.V(AgentIDKey, agentID))
	}
	if len(embeddings) == 0 {
		return nil, goerr.New("no embedding returned", goerr.V(AgentIDKey, agentID))
	}
	embedding := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		embedding[i] = float32(v)
	}

	var prior []*model.KnowledgeChunk
	if source != "" {
		prior, err = uc.repo.Knowledge().ListBySource(ctx, agentID, source)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list prior chunks",
				goerr.V(AgentIDKey, agentID), goerr.V("source", source))
		}
	}

	chunk := &model.KnowledgeChunk{
		ID:        model.NewChunkID(),
		AgentID:   agentID,
		Text:      text,
		Embedding: embedding,
		Layer:     layer,
		Source:    source,
		CreatedAt: time.Now(),
	}
	if err := uc.repo.Knowledge().Put(ctx, chunk); err != nil {
		return nil, goerr.Wrap(err, "failed to store knowledge chunk",
			goerr.V(AgentIDKey, agentID))
	}

	for _, old := range prior {
		if err := uc.repo.Knowledge().Supersede(ctx, agentID, old.ID, chunk.ID); err != nil {
			return nil, goerr.Wrap(err, "failed to supersede prior chunk",
				goerr.V(AgentIDKey, agentID), goerr.V("chunk_id", old.ID))
		}
	}

	logging.From(ctx).Info("ingested knowledge chunk",
		"agent_id", agentID,
		"layer", layer,
		"source", source,
		"superseded", len(prior),
	)

	return chunk, nil
}
