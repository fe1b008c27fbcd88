package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/service/summary"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/m-mizutani/gt"
)

// stubSummaryService records its inputs and returns a fixed summary
type stubSummaryService struct {
	inputs []summary.Input
}

func (s *stubSummaryService) Summarize(ctx context.Context, input summary.Input) (string, error) {
	s.inputs = append(s.inputs, input)
	return fmt.Sprintf("summary #%d of the chat", len(s.inputs)), nil
}

func seedConversation(t *testing.T, repo interfaces.Repository, agentID types.AgentID) *model.Conversation {
	t.Helper()
	now := time.Now()
	conv := &model.Conversation{
		ID:            model.NewConversationID(),
		AgentID:       agentID,
		ViewerID:      "viewer-9",
		ViewerTier:    types.TierFollower,
		CreatedAt:     now,
		LastMessageAt: now,
	}
	gt.NoError(t, repo.Conversation().Create(context.Background(), conv)).Required()
	return conv
}

func appendMessages(t *testing.T, repo interfaces.Repository, convID model.ConversationID, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := types.RoleViewer
		if i%2 == 1 {
			role = types.RoleAgent
		}
		_, err := repo.Conversation().AppendMessage(context.Background(), &model.Message{
			ID:             model.NewMessageID(),
			ConversationID: convID,
			Role:           role,
			Text:           fmt.Sprintf("message %d", i+1),
			CreatedAt:      time.Now(),
		})
		gt.NoError(t, err).Required()
	}
}

func TestSummarizeUseCase_MaybeSummarize(t *testing.T) {
	t.Run("folds the oldest block once the window is exceeded", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		stub := &stubSummaryService{}
		uc := usecase.NewSummarizeUseCase(repo, stub, 5)
		seedAgent(t, repo, "mirei")
		conv := seedConversation(t, repo, "mirei")

		// Window not exceeded yet: exactly window-many messages
		appendMessages(t, repo, conv.ID, 5)
		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		summaries, err := repo.Summary().ListByConversation(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, summaries).Length(0)

		// One more message pushes the backlog over the window
		appendMessages(t, repo, conv.ID, 1)
		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		summaries, err = repo.Summary().ListByConversation(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, summaries).Length(1).Required()
		gt.Value(t, summaries[0].FromSeq).Equal(int64(1))
		gt.Value(t, summaries[0].ToSeq).Equal(int64(5))
		gt.Value(t, summaries[0].MessagesIncluded).Equal(5)
		gt.Bool(t, summaries[0].Content != "").True()

		gt.Array(t, stub.inputs).Length(1).Required()
		gt.Array(t, stub.inputs[0].Messages).Length(5)
		gt.Array(t, stub.inputs[0].Prior).Length(0)
	})

	t.Run("repeat invocation with no new messages is a no-op", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		stub := &stubSummaryService{}
		uc := usecase.NewSummarizeUseCase(repo, stub, 5)
		seedAgent(t, repo, "mirei")
		conv := seedConversation(t, repo, "mirei")
		appendMessages(t, repo, conv.ID, 6)

		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()
		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		summaries, err := repo.Summary().ListByConversation(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, summaries).Length(1)
		gt.Array(t, stub.inputs).Length(1)
	})

	t.Run("later blocks never overlap and see prior summaries", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		stub := &stubSummaryService{}
		uc := usecase.NewSummarizeUseCase(repo, stub, 5)
		seedAgent(t, repo, "mirei")
		conv := seedConversation(t, repo, "mirei")

		appendMessages(t, repo, conv.ID, 6)
		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		appendMessages(t, repo, conv.ID, 5)
		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		summaries, err := repo.Summary().ListByConversation(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, summaries).Length(2).Required()
		gt.Value(t, summaries[0].FromSeq).Equal(int64(1))
		gt.Value(t, summaries[0].ToSeq).Equal(int64(5))
		gt.Value(t, summaries[1].FromSeq).Equal(int64(6))
		gt.Value(t, summaries[1].ToSeq).Equal(int64(10))

		gt.Array(t, stub.inputs).Length(2).Required()
		gt.Array(t, stub.inputs[1].Prior).Length(1)
	})

	t.Run("no summarizer configured is a no-op", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewSummarizeUseCase(repo, nil, 5)
		seedAgent(t, repo, "mirei")
		conv := seedConversation(t, repo, "mirei")
		appendMessages(t, repo, conv.ID, 8)

		gt.NoError(t, uc.MaybeSummarize(ctx, conv.ID)).Required()

		summaries, err := repo.Summary().ListByConversation(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Array(t, summaries).Length(0)
	})

	t.Run("unknown conversation is an error", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewSummarizeUseCase(repo, &stubSummaryService{}, 5)

		err := uc.MaybeSummarize(ctx, model.NewConversationID())
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, usecase.ErrConversationNotFound)).True()
	})
}
