package usecase

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/service/summary"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// DefaultSummaryWindow is the number of messages compressed into one
// summary when the owner has not tuned the window
const DefaultSummaryWindow = 20

// SummarizeUseCase keeps long conversations bounded by folding the oldest
// messages into summaries
type SummarizeUseCase struct {
	repo       interfaces.Repository
	summarySvc summary.Service
	window     int
}

// NewSummarizeUseCase creates a new SummarizeUseCase instance
func NewSummarizeUseCase(repo interfaces.Repository, summarySvc summary.Service, window int) *SummarizeUseCase {
	if window <= 0 {
		window = DefaultSummaryWindow
	}
	return &SummarizeUseCase{
		repo:       repo,
		summarySvc: summarySvc,
		window:     window,
	}
}

// MaybeSummarize folds the oldest unsummarized block into one new summary
// once more than a window of messages is waiting. Idempotent: calling it
// again with no new messages does nothing. Without a summarizer service it
// is a no-op.
func (uc *SummarizeUseCase) MaybeSummarize(ctx context.Context, convID model.ConversationID) error {
	if uc.summarySvc == nil {
		return nil
	}

	conv, err := uc.repo.Conversation().Get(ctx, convID)
	if err != nil {
		return goerr.Wrap(ErrConversationNotFound, "conversation not found",
			goerr.V(ConversationIDKey, convID))
	}

	lastSeq, err := uc.repo.Summary().LastToSeq(ctx, convID)
	if err != nil {
		return goerr.Wrap(err, "failed to read summarized frontier",
			goerr.V(ConversationIDKey, convID))
	}

	// One extra message proves the backlog exceeds the window
	messages, err := uc.repo.Conversation().ListMessagesAfter(ctx, convID, lastSeq, uc.window+1)
	if err != nil {
		return goerr.Wrap(err, "failed to list unsummarized messages",
			goerr.V(ConversationIDKey, convID))
	}
	if len(messages) <= uc.window {
		return nil
	}
	block := messages[:uc.window]

	agent, err := uc.repo.Agent().Get(ctx, conv.AgentID)
	if err != nil {
		return goerr.Wrap(ErrAgentNotFound, "agent not found",
			goerr.V(AgentIDKey, conv.AgentID))
	}

	prior, err := uc.repo.Summary().ListByConversation(ctx, convID)
	if err != nil {
		return goerr.Wrap(err, "failed to list prior summaries",
			goerr.V(ConversationIDKey, convID))
	}

	content, err := uc.summarySvc.Summarize(ctx, summary.Input{
		Agent:    agent,
		Prior:    prior,
		Messages: block,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to summarize conversation",
			goerr.V(ConversationIDKey, convID))
	}

	sum := &model.ConversationSummary{
		ID:               model.NewSummaryID(),
		ConversationID:   convID,
		Content:          content,
		MessagesIncluded: len(block),
		FromSeq:          block[0].Seq,
		ToSeq:            block[len(block)-1].Seq,
		CreatedAt:        time.Now(),
	}
	if err := uc.repo.Summary().Put(ctx, sum); err != nil {
		return goerr.Wrap(err, "failed to store summary",
			goerr.V(ConversationIDKey, convID))
	}

	logging.From(ctx).Debug("summarized conversation block",
		"conversation_id", convID,
		"from_seq", sum.FromSeq,
		"to_seq", sum.ToSeq,
	)

	return nil
}
