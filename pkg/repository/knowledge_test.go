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

func runKnowledgeRepositoryTest(t *testing.T, newRepo func(t *testing.T) interfaces.Repository) {
	t.Helper()

	t.Run("Put assigns ID and CreatedAt", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk")
		chunk := &model.KnowledgeChunk{
			AgentID:   agentID,
			Text:      "Commission slots open every first Monday of the month",
			Embedding: []float32{0.1, 0.2, 0.3},
			Layer:     types.LayerPublic,
			Source:    "faq.md",
		}

		gt.NoError(t, repo.Knowledge().Put(ctx, chunk)).Required()
		gt.String(t, string(chunk.ID)).NotEqual("")

		retrieved, err := repo.Knowledge().Get(ctx, agentID, chunk.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, retrieved.Text).Equal(chunk.Text)
		gt.Value(t, retrieved.Layer).Equal(types.LayerPublic)
		gt.Value(t, retrieved.Source).Equal("faq.md")
		gt.Array(t, retrieved.Embedding).Length(3)
		gt.Bool(t, retrieved.CreatedAt.IsZero()).False()
		gt.Bool(t, retrieved.Live()).True()
	})

	t.Run("Get returns error for non-existent chunk", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Knowledge().Get(ctx, uniqueAgentID("chunk"), "non-existent-id")
		if err == nil {
			t.Fatal("expected error for non-existent chunk")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("ListBySource returns only live chunks of the source", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk-src")
		c1 := &model.KnowledgeChunk{AgentID: agentID, Text: "one", Layer: types.LayerPublic, Source: "notes.md", Embedding: []float32{1, 0, 0}}
		c2 := &model.KnowledgeChunk{AgentID: agentID, Text: "two", Layer: types.LayerPublic, Source: "notes.md", Embedding: []float32{0, 1, 0}}
		c3 := &model.KnowledgeChunk{AgentID: agentID, Text: "other", Layer: types.LayerPublic, Source: "faq.md", Embedding: []float32{0, 0, 1}}
		for _, c := range []*model.KnowledgeChunk{c1, c2, c3} {
			gt.NoError(t, repo.Knowledge().Put(ctx, c)).Required()
		}

		gt.NoError(t, repo.Knowledge().Supersede(ctx, agentID, c2.ID, c1.ID)).Required()

		chunks, err := repo.Knowledge().ListBySource(ctx, agentID, "notes.md")
		gt.NoError(t, err).Required()
		gt.Array(t, chunks).Length(1)
		gt.Value(t, chunks[0].ID).Equal(c1.ID)
	})

	t.Run("Supersede returns error for non-existent chunk", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		err := repo.Knowledge().Supersede(ctx, uniqueAgentID("chunk"), "missing", "by")
		if err == nil {
			t.Fatal("expected error for non-existent chunk")
		}
		if !isNotFound(err) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("FindNearest orders by similarity", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk-rank")
		exact := &model.KnowledgeChunk{AgentID: agentID, Text: "exact", Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		near := &model.KnowledgeChunk{AgentID: agentID, Text: "near", Layer: types.LayerPublic, Embedding: []float32{0.9, 0.1, 0}}
		far := &model.KnowledgeChunk{AgentID: agentID, Text: "far", Layer: types.LayerPublic, Embedding: []float32{0, 1, 0}}
		for _, c := range []*model.KnowledgeChunk{far, near, exact} {
			gt.NoError(t, repo.Knowledge().Put(ctx, c)).Required()
		}

		hits, err := repo.Knowledge().FindNearest(ctx, agentID, types.LayerPublic, []float32{1, 0, 0}, 3)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(3)
		gt.Value(t, hits[0].Chunk.ID).Equal(exact.ID)
		gt.Value(t, hits[1].Chunk.ID).Equal(near.ID)
		if hits[0].Similarity < hits[1].Similarity || hits[1].Similarity < hits[2].Similarity {
			t.Errorf("expected descending similarity, got %f %f %f",
				hits[0].Similarity, hits[1].Similarity, hits[2].Similarity)
		}
	})

	t.Run("FindNearest filters layers before ranking", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk-layer")
		// The intimate chunk matches the query exactly. At maxLayer public it
		// must not appear even when the limit is not reached.
		intimate := &model.KnowledgeChunk{AgentID: agentID, Text: "secret", Layer: types.LayerIntimate, Embedding: []float32{1, 0, 0}}
		friends := &model.KnowledgeChunk{AgentID: agentID, Text: "friends", Layer: types.LayerFriends, Embedding: []float32{0.9, 0.1, 0}}
		public := &model.KnowledgeChunk{AgentID: agentID, Text: "public", Layer: types.LayerPublic, Embedding: []float32{0.5, 0.5, 0}}
		for _, c := range []*model.KnowledgeChunk{intimate, friends, public} {
			gt.NoError(t, repo.Knowledge().Put(ctx, c)).Required()
		}

		hits, err := repo.Knowledge().FindNearest(ctx, agentID, types.LayerPublic, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1)
		gt.Value(t, hits[0].Chunk.ID).Equal(public.ID)

		hits, err = repo.Knowledge().FindNearest(ctx, agentID, types.LayerFriends, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)
		for _, h := range hits {
			if h.Chunk.Layer == types.LayerIntimate {
				t.Error("intimate chunk leaked into friends-level retrieval")
			}
		}

		hits, err = repo.Knowledge().FindNearest(ctx, agentID, types.LayerIntimate, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(3)
		gt.Value(t, hits[0].Chunk.ID).Equal(intimate.ID)
	})

	t.Run("FindNearest excludes superseded chunks", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk-dead")
		old := &model.KnowledgeChunk{AgentID: agentID, Text: "old", Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		replacement := &model.KnowledgeChunk{AgentID: agentID, Text: "new", Layer: types.LayerPublic, Embedding: []float32{1, 0, 0}}
		for _, c := range []*model.KnowledgeChunk{old, replacement} {
			gt.NoError(t, repo.Knowledge().Put(ctx, c)).Required()
		}
		gt.NoError(t, repo.Knowledge().Supersede(ctx, agentID, old.ID, replacement.ID)).Required()

		hits, err := repo.Knowledge().FindNearest(ctx, agentID, types.LayerIntimate, []float32{1, 0, 0}, 10)
		gt.NoError(t, err).Required()
		for _, h := range hits {
			if h.Chunk.ID == old.ID {
				t.Error("superseded chunk appeared in retrieval")
			}
		}
	})

	t.Run("FindNearest respects limit", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		agentID := uniqueAgentID("chunk-limit")
		for i := 0; i < 5; i++ {
			c := &model.KnowledgeChunk{
				AgentID:   agentID,
				Text:      "chunk",
				Layer:     types.LayerPublic,
				Embedding: []float32{1, float32(i) * 0.1, 0},
				CreatedAt: time.Now().Add(time.Duration(-i) * time.Minute).UTC(),
			}
			gt.NoError(t, repo.Knowledge().Put(ctx, c)).Required()
		}

		hits, err := repo.Knowledge().FindNearest(ctx, agentID, types.LayerPublic, []float32{1, 0, 0}, 2)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)
	})
}

func TestMemoryKnowledgeRepository(t *testing.T) {
	runKnowledgeRepositoryTest(t, newMemoryRepository)
}

func TestSQLiteKnowledgeRepository(t *testing.T) {
	runKnowledgeRepositoryTest(t, newSQLiteRepository)
}

func TestFirestoreKnowledgeRepository(t *testing.T) {
	runKnowledgeRepositoryTest(t, newFirestoreRepository)
}
