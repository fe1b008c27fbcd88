package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/firestore"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/repository/sqlite"
	"github.com/m-mizutani/gt"
)

func isNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound) ||
		errors.Is(err, sqlite.ErrNotFound) ||
		errors.Is(err, firestore.ErrNotFound)
}

func uniqueAgentID(prefix string) types.AgentID {
	return types.AgentID(fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano()))
}

func runAgentRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put and Get roundtrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("mira")
		agent := &model.Agent{
			ID:      agentID,
			OwnerID: "owner-1",
			Name:    "Mira",
			Persona: "Friendly painter who answers questions about commissions",
		}

		gt.NoError(t, repo.Agent().Put(ctx, agent)).Required()

		retrieved, err := repo.Agent().Get(ctx, agentID)
		gt.NoError(t, err).Required()

		gt.Value(t, retrieved.ID).Equal(agentID)
		gt.Value(t, retrieved.OwnerID).Equal(agent.OwnerID)
		gt.Value(t, retrieved.Name).Equal(agent.Name)
		gt.Value(t, retrieved.Persona).Equal(agent.Persona)
		gt.Bool(t, retrieved.CreatedAt.IsZero()).False()
		gt.Bool(t, retrieved.UpdatedAt.IsZero()).False()
	})

	t.Run("Put replaces existing agent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("kenji")
		gt.NoError(t, repo.Agent().Put(ctx, &model.Agent{
			ID:      agentID,
			OwnerID: "owner-2",
			Name:    "Kenji",
		})).Required()

		gt.NoError(t, repo.Agent().Put(ctx, &model.Agent{
			ID:      agentID,
			OwnerID: "owner-2",
			Name:    "Kenji Renamed",
			Persona: "Updated persona",
		})).Required()

		retrieved, err := repo.Agent().Get(ctx, agentID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Name).Equal("Kenji Renamed")
		gt.Value(t, retrieved.Persona).Equal("Updated persona")
	})

	t.Run("Get returns error for non-existent agent", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Agent().Get(ctx, uniqueAgentID("ghost"))
		if err == nil {
			t.Fatal("expected error for non-existent agent")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("List includes stored agents", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		id1 := uniqueAgentID("list-a")
		id2 := uniqueAgentID("list-b")
		for _, id := range []types.AgentID{id1, id2} {
			gt.NoError(t, repo.Agent().Put(ctx, &model.Agent{ID: id, OwnerID: "owner-3", Name: string(id)})).Required()
		}

		agents, err := repo.Agent().List(ctx)
		gt.NoError(t, err).Required()

		found1, found2 := false, false
		for _, a := range agents {
			if a.ID == id1 {
				found1 = true
			}
			if a.ID == id2 {
				found2 = true
			}
		}
		gt.Bool(t, found1 && found2).True()
	})

	t.Run("GetConfig returns error before PutConfig", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Agent().GetConfig(ctx, uniqueAgentID("noconf"))
		if err == nil {
			t.Fatal("expected error for missing config")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("PutConfig and GetConfig roundtrip", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("conf")
		config := model.DefaultAgentConfig(agentID)
		config.ConfidenceThreshold = 80
		config.BlockedTopics = []string{"politics", "home address"}
		config.AllowedTiers = []types.ViewerTier{types.TierFollower, types.TierPaid}

		gt.NoError(t, repo.Agent().PutConfig(ctx, config)).Required()

		retrieved, err := repo.Agent().GetConfig(ctx, agentID)
		gt.NoError(t, err).Required()

		gt.Value(t, retrieved.AgentID).Equal(agentID)
		gt.Number(t, retrieved.ConfidenceThreshold).Equal(80)
		gt.Value(t, retrieved.ReuseThreshold).Equal(config.ReuseThreshold)
		gt.Array(t, retrieved.BlockedTopics).Length(2)
		gt.Array(t, retrieved.AllowedTiers).Length(2)
	})

	t.Run("PutConfig with empty lists", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("conf-empty")
		config := model.DefaultAgentConfig(agentID)
		config.BlockedTopics = nil
		config.AllowedTiers = nil

		gt.NoError(t, repo.Agent().PutConfig(ctx, config)).Required()

		retrieved, err := repo.Agent().GetConfig(ctx, agentID)
		gt.NoError(t, err).Required()
		gt.Array(t, retrieved.BlockedTopics).Length(0)
		gt.Array(t, retrieved.AllowedTiers).Length(0)
	})

	t.Run("PutConfig replaces existing config", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("conf-replace")
		config := model.DefaultAgentConfig(agentID)
		gt.NoError(t, repo.Agent().PutConfig(ctx, config)).Required()

		config.AnswerEnabled = false
		config.EscalationDailyCap = 2
		gt.NoError(t, repo.Agent().PutConfig(ctx, config)).Required()

		retrieved, err := repo.Agent().GetConfig(ctx, agentID)
		gt.NoError(t, err).Required()
		gt.Bool(t, retrieved.AnswerEnabled).False()
		gt.Number(t, retrieved.EscalationDailyCap).Equal(2)
	})
}

func TestMemoryAgentRepository(t *testing.T) {
	runAgentRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteAgentRepository(t *testing.T) {
	runAgentRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreAgentRepository(t *testing.T) {
	runAgentRepositoryTest(t, newFirestoreRepository)
}
