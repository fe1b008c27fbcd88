package repository_test

import (
	"context"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/gt"
)

func runMemoryRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put assigns ID and roundtrips fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("mem")
		mem := &model.Memory{
			AgentID:         agentID,
			Kind:            types.MemoryPreference,
			Content:         "Viewer alice prefers watercolor over oil",
			Confidence:      85,
			Layer:           types.LayerFriends,
			SourceMessageID: model.NewMessageID(),
			Embedding:       []float32{0.2, 0.4, 0.6},
		}

		gt.NoError(t, repo.Memory().Put(ctx, mem)).Required()
		gt.String(t, string(mem.ID)).NotEqual("")

		retrieved, err := repo.Memory().Get(ctx, agentID, mem.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Kind).Equal(types.MemoryPreference)
		gt.Value(t, retrieved.Content).Equal(mem.Content)
		gt.Number(t, retrieved.Confidence).Equal(85)
		gt.Value(t, retrieved.Layer).Equal(types.LayerFriends)
		gt.Value(t, retrieved.SourceMessageID).Equal(mem.SourceMessageID)
		gt.Array(t, retrieved.Embedding).Length(3)
	})

	t.Run("Get returns error for non-existent memory", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Memory().Get(ctx, uniqueAgentID("mem"), "non-existent-id")
		if err == nil {
			t.Fatal("expected error for non-existent memory")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListLive excludes superseded memories", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("mem-live")
		m1 := &model.Memory{AgentID: agentID, Kind: types.MemoryFact, Content: "keeps a cat", Confidence: 70, Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		m2 := &model.Memory{AgentID: agentID, Kind: types.MemoryFact, Content: "keeps two cats", Confidence: 90, Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		for _, m := range []*model.Memory{m1, m2} {
			gt.NoError(t, repo.Memory().Put(ctx, m)).Required()
		}

		gt.NoError(t, repo.Memory().Supersede(ctx, agentID, m1.ID, m2.ID)).Required()

		live, err := repo.Memory().ListLive(ctx, agentID)
		gt.NoError(t, err).Required()
		gt.Array(t, live).Length(1)
		gt.Value(t, live[0].ID).Equal(m2.ID)

		// The superseded memory is kept, not deleted
		old, err := repo.Memory().Get(ctx, agentID, m1.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, old.SupersededBy).Equal(m2.ID)
		gt.Bool(t, old.Live()).False()
	})

	t.Run("FindNearest filters layers before ranking", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("mem-layer")
		intimate := &model.Memory{AgentID: agentID, Kind: types.MemoryRelationship, Content: "private", Confidence: 95, Layer: types.LayerIntimate, Embedding: []float32{1, 0, 0}}
		public := &model.Memory{AgentID: agentID, Kind: types.MemoryFact, Content: "public", Confidence: 60, Layer: types.LayerPublic, Embedding: []float32{0.5, 0.5, 0}}
		for _, m := range []*model.Memory{intimate, public} {
			gt.NoError(t, repo.Memory().Put(ctx, m)).Required()
		}

		hits, err := repo.Memory().FindNearest(ctx, agentID, types.LayerPublic, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Memory.ID).Equal(public.ID)

		hits, err = repo.Memory().FindNearest(ctx, agentID, types.LayerIntimate, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)
		gt.Value(t, hits[0].Memory.ID).Equal(intimate.ID)
	})

	t.Run("FindNearest excludes superseded memories", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("mem-dead")
		old := &model.Memory{AgentID: agentID, Kind: types.MemoryEvent, Content: "old", Confidence: 50, Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		winner := &model.Memory{AgentID: agentID, Kind: types.MemoryEvent, Content: "new", Confidence: 80, Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		for _, m := range []*model.Memory{old, winner} {
			gt.NoError(t, repo.Memory().Put(ctx, m)).Required()
		}
		gt.NoError(t, repo.Memory().Supersede(ctx, agentID, old.ID, winner.ID)).Required()

		hits, err := repo.Memory().FindNearest(ctx, agentID, types.LayerIntimate, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		for _, h := range hits {
			if h.Memory.ID == old.ID {
				t.Error("superseded memory appeared in retrieval")
			}
		}
	})
}

func TestMemoryMemoryRepository(t *testing.T) {
	runMemoryRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteMemoryRepository(t *testing.T) {
	runMemoryRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreMemoryRepository(t *testing.T) {
	runMemoryRepositoryTest(t, newFirestoreRepository)
}
