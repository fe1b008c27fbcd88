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

// An owner answer is trusted ground truth, so its canonical entry gets
// full confidence
const ownerAnswerConfidence = 100

// EscalationUseCase manages the owner side of escalation tickets
type EscalationUseCase struct {
	repo      interfaces.Repository
	llmClient gollem.LLMClient
}

// NewEscalationUseCase creates a new EscalationUseCase instance
func NewEscalationUseCase(repo interfaces.Repository, llmClient gollem.LLMClient) *EscalationUseCase {
	return &EscalationUseCase{
		repo:      repo,
		llmClient: llmClient,
	}
}

// List returns an agent's escalation tickets, newest first. An empty
// status returns all of them.
func (uc *EscalationUseCase) List(ctx context.Context, agentID types.AgentID, status types.EscalationStatus) ([]*model.Escalation, error) {
	if _, err := uc.repo.Agent().Get(ctx, agentID); err != nil {
		return nil, goerr.Wrap(ErrAgentNotFound, "agent not found", goerr.V(AgentIDKey, agentID))
	}
	if status != "" && !status.IsValid() {
		return nil, goerr.New("invalid escalation status", goerr.V("status", status))
	}

	escalations, err := uc.repo.Escalation().ListByAgent(ctx, agentID, status)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list escalations", goerr.V(AgentIDKey, agentID))
	}
	return escalations, nil
}

// Answer closes a pending ticket with the owner's reply. The reply is
// appended to the originating conversation and seeded into the canonical
// cache so the next similar question is served without the owner.
func (uc *EscalationUseCase) Answer(ctx context.Context, agentID types.AgentID, escalationID model.EscalationID, answerText string) (*model.Escalation, error) {
	if strings.TrimSpace(answerText) == "" {
		return nil, goerr.New("answer must not be empty", goerr.V(EscalationIDKey, escalationID))
	}

	esc, err := uc.repo.Escalation().Get(ctx, agentID, escalationID)
	if err != nil {
		return nil, goerr.Wrap(ErrEscalationNotFound, "escalation not found",
			goerr.V(AgentIDKey, agentID), goerr.V(EscalationIDKey, escalationID))
	}
	if esc.Status != types.EscalationPending {
		return nil, goerr.Wrap(ErrEscalationClosed, "escalation already closed",
			goerr.V(EscalationIDKey, escalationID), goerr.V("status", esc.Status))
	}

	// Deliver first: a failed delivery keeps the ticket open for a retry
	if _, err := uc.repo.Conversation().AppendMessage(ctx, &model.Message{
		ID:             model.NewMessageID(),
		ConversationID: esc.ConversationID,
		Role:           types.RoleOwner,
		Text:           answerText,
		CreatedAt:      time.Now(),
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to deliver owner answer",
			goerr.V(ConversationIDKey, esc.ConversationID))
	}

	esc.Status = types.EscalationAnswered
	esc.Answer = answerText
	esc.AnsweredAt = time.Now()
	if err := uc.repo.Escalation().Update(ctx, esc); err != nil {
		return nil, goerr.Wrap(err, "failed to update escalation",
			goerr.V(EscalationIDKey, escalationID))
	}

	uc.seedCanonical(ctx, esc, answerText)

	logging.From(ctx).Info("escalation answered",
		"agent_id", agentID, "escalation_id", escalationID)

	return esc, nil
}

// seedCanonical caches the owner's answer under the original question.
// Best-effort: without an LLM client there is no embedding to store under.
func (uc *EscalationUseCase) seedCanonical(ctx context.Context, esc *model.Escalation, answerText string) {
	if uc.llmClient == nil {
		return
	}

	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()
	embeddings, err := uc.llmClient.GenerateEmbedding(embedCtx, model.EmbeddingDimension, []string{esc.Question})
	if err != nil || len(embeddings) == 0 {
		logging.From(ctx).Warn("failed to embed escalation question, skipping canonical seed",
			"escalation_id", esc.ID, "error", errString(err))
		return
	}
	embedding := make([]float32, len(embeddings[0]))
	for i, v := range embeddings[0] {
		embedding[i] = float32(v)
	}

	entry := &model.CanonicalAnswer{
		ID:         model.NewCanonicalID(),
		AgentID:    esc.AgentID,
		Question:   esc.Question,
		Embedding:  embedding,
		Answer:     answerText,
		Confidence: ownerAnswerConfidence,
		CreatedAt:  time.Now(),
	}
	if err := uc.repo.Canonical().Put(ctx, entry); err != nil {
		logging.From(ctx).Warn("failed to seed canonical answer",
			"escalation_id", esc.ID, "error", err.Error())
	}
}

// ExpireStale marks pending tickets older than the given age as expired
// and returns how many were closed
func (uc *EscalationUseCase) ExpireStale(ctx context.Context, agentID types.AgentID, olderThan time.Duration) (int, error) {
	pending, err := uc.repo.Escalation().ListByAgent(ctx, agentID, types.EscalationPending)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list pending escalations",
			goerr.V(AgentIDKey, agentID))
	}

	cutoff := time.Now().Add(-olderThan)
	expired := 0
	for _, esc := range pending {
		if !esc.CreatedAt.Before(cutoff) {
			continue
		}
		esc.Status = types.EscalationExpired
		if err := uc.repo.Escalation().Update(ctx, esc); err != nil {
			return expired, goerr.Wrap(err, "failed to expire escalation",
				goerr.V(EscalationIDKey, esc.ID))
		}
		expired++
	}

	if expired > 0 {
		logging.From(ctx).Info("expired stale escalations",
			"agent_id", agentID, "count", expired)
	}

	return expired, nil
}
