package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func runEscalationRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put assigns defaults and Get retrieves", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("esc")
		esc := &model.Escalation{
			AgentID:        agentID,
			ConversationID: model.NewConversationID(),
			MessageID:      model.NewMessageID(),
			Question:       "What is the release date?",
		}
		gt.NoError(t, repo.Escalation().Put(ctx, esc)).Required()
		gt.String(t, string(esc.ID)).NotEqual("")

		retrieved, err := repo.Escalation().Get(ctx, agentID, esc.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Status).Equal(types.EscalationPending)
		gt.Value(t, retrieved.Question).Equal("What is the release date?")
		gt.Bool(t, retrieved.CreatedAt.IsZero()).False()
		gt.Bool(t, retrieved.AnsweredAt.IsZero()).True()
	})

	t.Run("Get returns error for unknown ID", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Escalation().Get(ctx, uniqueAgentID("esc"), model.NewEscalationID())
		if err == nil {
			t.Fatal("expected error for unknown escalation")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListByAgent filters by status", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("esc-list")
		pending := &model.Escalation{
			AgentID:        agentID,
			ConversationID: model.NewConversationID(),
			MessageID:      model.NewMessageID(),
			Question:       "first question",
		}
		gt.NoError(t, repo.Escalation().Put(ctx, pending)).Required()

		answered := &model.Escalation{
			AgentID:        agentID,
			ConversationID: model.NewConversationID(),
			MessageID:      model.NewMessageID(),
			Question:       "second question",
			Status:         types.EscalationAnswered,
			Answer:         "next month",
			CreatedAt:      time.Now().Add(time.Second),
			AnsweredAt:     time.Now().Add(2 * time.Second),
		}
		gt.NoError(t, repo.Escalation().Put(ctx, answered)).Required()

		onlyPending, err := repo.Escalation().ListByAgent(ctx, agentID, types.EscalationPending)
		gt.NoError(t, err).Required()
		gt.Array(t, onlyPending).Length(1)
		gt.Value(t, onlyPending[0].ID).Equal(pending.ID)

		all, err := repo.Escalation().ListByAgent(ctx, agentID, "")
		gt.NoError(t, err).Required()
		gt.Array(t, all).Length(2)
		// Newest first
		gt.Value(t, all[0].ID).Equal(answered.ID)
	})

	t.Run("Update marks an escalation answered", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("esc-upd")
		esc := &model.Escalation{
			AgentID:        agentID,
			ConversationID: model.NewConversationID(),
			MessageID:      model.NewMessageID(),
			Question:       "Is the meetup still on?",
		}
		gt.NoError(t, repo.Escalation().Put(ctx, esc)).Required()

		esc.Status = types.EscalationAnswered
		esc.Answer = "Yes, same venue"
		esc.AnsweredAt = time.Now()
		gt.NoError(t, repo.Escalation().Update(ctx, esc)).Required()

		retrieved, err := repo.Escalation().Get(ctx, agentID, esc.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Status).Equal(types.EscalationAnswered)
		gt.Value(t, retrieved.Answer).Equal("Yes, same venue")
		gt.Bool(t, retrieved.AnsweredAt.IsZero()).False()
	})

	t.Run("Update returns error for unknown escalation", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		err := repo.Escalation().Update(ctx, &model.Escalation{
			ID:      model.NewEscalationID(),
			AgentID: uniqueAgentID("esc-upd"),
			Status:  types.EscalationExpired,
		})
		if err == nil {
			t.Fatal("expected error for unknown escalation")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestMemoryEscalationRepository(t *testing.T) {
	runEscalationRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteEscalationRepository(t *testing.T) {
	runEscalationRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreEscalationRepository(t *testing.T) {
	runEscalationRepositoryTest(t, newFirestoreRepository)
}
