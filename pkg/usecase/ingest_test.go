package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/m-mizutani/gt"
)

func TestIngestUseCase_IngestKnowledge(t *testing.T) {
	t.Run("stores an embedded chunk", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		client := &mockLLMClient{
			embedFn: func(text string) []float64 { return unitVec(1) },
		}
		uc := usecase.NewIngestUseCase(repo, client)
		seedAgent(t, repo, "mirei")

		chunk, err := uc.IngestKnowledge(ctx, "mirei", "I live in Paris", types.LayerPublic, "bio")
		gt.NoError(t, err).Required()

		gt.Bool(t, chunk.ID != "").True()
		gt.Value(t, chunk.Layer).Equal(types.LayerPublic)
		gt.Value(t, chunk.Source).Equal("bio")
		gt.Number(t, len(chunk.Embedding)).Equal(model.EmbeddingDimension)

		hits, err := repo.Knowledge().FindNearest(ctx, "mirei", types.LayerPublic, unitVec32(1), 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1).Required()
		gt.Value(t, hits[0].Chunk.Text).Equal("I live in Paris")
	})

	t.Run("re-ingesting a source supersedes the old chunks", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		client := &mockLLMClient{
			embedFn: func(text string) []float64 { return unitVec(1) },
		}
		uc := usecase.NewIngestUseCase(repo, client)
		seedAgent(t, repo, "mirei")

		old, err := uc.IngestKnowledge(ctx, "mirei", "I live in Paris", types.LayerPublic, "bio")
		gt.NoError(t, err).Required()

		replacement, err := uc.IngestKnowledge(ctx, "mirei", "I live in Lisbon now", types.LayerPublic, "bio")
		gt.NoError(t, err).Required()

		hits, err := repo.Knowledge().FindNearest(ctx, "mirei", types.LayerPublic, unitVec32(1), 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(1).Required()
		gt.Value(t, hits[0].Chunk.ID).Equal(replacement.ID)

		stored, err := repo.Knowledge().Get(ctx, "mirei", old.ID)
		gt.NoError(t, err).Required()
		gt.Value(t, stored.SupersededBy).Equal(replacement.ID)
	})

	t.Run("chunks without a source accumulate", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		client := &mockLLMClient{
			embedFn: func(text string) []float64 { return unitVec(1) },
		}
		uc := usecase.NewIngestUseCase(repo, client)
		seedAgent(t, repo, "mirei")

		_, err := uc.IngestKnowledge(ctx, "mirei", "I like gouache", types.LayerPublic, "")
		gt.NoError(t, err).Required()
		_, err = uc.IngestKnowledge(ctx, "mirei", "I like ink as well", types.LayerPublic, "")
		gt.NoError(t, err).Required()

		hits, err := repo.Knowledge().FindNearest(ctx, "mirei", types.LayerPublic, unitVec32(1), 5)
		gt.NoError(t, err).Required()
		gt.Array(t, hits).Length(2)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		client := &mockLLMClient{}
		uc := usecase.NewIngestUseCase(repo, client)
		seedAgent(t, repo, "mirei")

		_, err := uc.IngestKnowledge(ctx, "mirei", "   ", types.LayerPublic, "bio")
		gt.Error(t, err)

		_, err = uc.IngestKnowledge(ctx, "mirei", "some text", "classified", "bio")
		gt.Error(t, err)

		_, err = uc.IngestKnowledge(ctx, "no-such-agent", "some text", types.LayerPublic, "bio")
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, usecase.ErrAgentNotFound)).True()
	})

	t.Run("requires an LLM client", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewIngestUseCase(repo, nil)
		seedAgent(t, repo, "mirei")

		_, err := uc.IngestKnowledge(ctx, "mirei", "I live in Paris", types.LayerPublic, "bio")
		gt.Error(t, err)
	})
}
