package repository_test

import (
	"context"
	"sync"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func createConversation(t *testing.T, repo interfaces.Repository, agentID types.AgentID) *model.Conversation {
	t.Helper()

	conv := &model.Conversation{
		AgentID:    agentID,
		ViewerID:   "viewer-1",
		ViewerTier: types.TierFollower,
	}
	gt.NoError(t, repo.Conversation().Create(context.Background(), conv)).Required()
	return conv
}

func runConversationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Create assigns ID and Get roundtrips", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("conv")
		conv := createConversation(t, repo, agentID)
		gt.String(t, string(conv.ID)).NotEqual("")

		retrieved, err := repo.Conversation().Get(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.AgentID).Equal(agentID)
		gt.Value(t, retrieved.ViewerID).Equal("viewer-1")
		gt.Value(t, retrieved.ViewerTier).Equal(types.TierFollower)
		gt.Bool(t, retrieved.CreatedAt.IsZero()).False()
	})

	t.Run("Get returns error for non-existent conversation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Conversation().Get(ctx, model.ConversationID("non-existent"))
		if err == nil {
			t.Fatal("expected error for non-existent conversation")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("AppendMessage assigns monotonic Seq from 1", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conv := createConversation(t, repo, uniqueAgentID("conv-seq"))

		texts := []string{"hi", "hello", "how much is a portrait?"}
		for i, text := range texts {
			stored, err := repo.Conversation().AppendMessage(ctx, &model.Message{
				ConversationID: conv.ID,
				Role:           types.RoleViewer,
				Text:           text,
			})
			gt.NoError(t, err).Required()
			gt.Number(t, stored.Seq).Equal(int64(i + 1))
			gt.String(t, string(stored.ID)).NotEqual("")
		}

		retrieved, err := repo.Conversation().Get(ctx, conv.ID)
		gt.NoError(t, err).Required()
		gt.Bool(t, retrieved.LastMessageAt.IsZero()).False()
	})

	t.Run("AppendMessage returns error for unknown conversation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Conversation().AppendMessage(ctx, &model.Message{
			ConversationID: model.ConversationID("non-existent"),
			Role:           types.RoleViewer,
			Text:           "hello?",
		})
		if err == nil {
			t.Fatal("expected error for unknown conversation")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Concurrent appends never share a Seq", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conv := createConversation(t, repo, uniqueAgentID("conv-race"))

		const workers = 10
		seqs := make(chan int64, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				stored, err := repo.Conversation().AppendMessage(ctx, &model.Message{
					ConversationID: conv.ID,
					Role:           types.RoleViewer,
					Text:           "racing",
				})
				if err != nil {
					t.Errorf("failed to append message: %v", err)
					return
				}
				seqs <- stored.Seq
			}()
		}
		wg.Wait()
		close(seqs)

		seen := make(map[int64]bool)
		for seq := range seqs {
			if seen[seq] {
				t.Errorf("duplicate Seq %d assigned", seq)
			}
			seen[seq] = true
			if seq < 1 || seq > workers {
				t.Errorf("Seq %d outside expected range", seq)
			}
		}
	})

	t.Run("ListMessagesAfter returns ascending tail", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conv := createConversation(t, repo, uniqueAgentID("conv-after"))
		for i := 0; i < 5; i++ {
			_, err := repo.Conversation().AppendMessage(ctx, &model.Message{
				ConversationID: conv.ID,
				Role:           types.RoleViewer,
				Text:           "msg",
			})
			gt.NoError(t, err).Required()
		}

		messages, err := repo.Conversation().ListMessagesAfter(ctx, conv.ID, 2, 0)
		gt.NoError(t, err).Required()
		gt.Array(t, messages).Length(3)
		for i, msg := range messages {
			gt.Number(t, msg.Seq).Equal(int64(i + 3))
		}

		limited, err := repo.Conversation().ListMessagesAfter(ctx, conv.ID, 0, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, limited).Length(2)
		gt.Number(t, limited[0].Seq).Equal(1)
		gt.Number(t, limited[1].Seq).Equal(2)
	})

	t.Run("ListRecentMessages returns last n ascending", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		conv := createConversation(t, repo, uniqueAgentID("conv-recent"))
		for i := 0; i < 5; i++ {
			_, err := repo.Conversation().AppendMessage(ctx, &model.Message{
				ConversationID: conv.ID,
				Role:           types.RoleAgent,
				Text:           "msg",
			})
			gt.NoError(t, err).Required()
		}

		messages, err := repo.Conversation().ListRecentMessages(ctx, conv.ID, 3)
		gt.NoError(t, err).Required()
		gt.Array(t, messages).Length(3)
		for i, msg := range messages {
			gt.Number(t, msg.Seq).Equal(int64(i + 3))
		}
	})

	t.Run("ListByAgent returns agent conversations", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("conv-list")
		c1 := createConversation(t, repo, agentID)
		c2 := createConversation(t, repo, agentID)
		createConversation(t, repo, uniqueAgentID("conv-other"))

		convs, err := repo.Conversation().ListByAgent(ctx, agentID)
		gt.NoError(t, err).Required()
		gt.Array(t, convs).Length(2)

		found1, found2 := false, false
		for _, c := range convs {
			if c.ID == c1.ID {
				found1 = true
			}
			if c.ID == c2.ID {
				found2 = true
			}
		}
		gt.Bool(t, found1 && found2).True()
	})
}

func TestMemoryConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreConversationRepository(t *testing.T) {
	runConversationRepositoryTest(t, newFirestoreRepository)
}
