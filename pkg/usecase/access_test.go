package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/m-mizutani/gt"
)

func TestAccessUseCase_Resolve(t *testing.T) {
	t.Run("owner always reads intimate", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		agent := seedAgent(t, repo, "mirei")

		layer, err := uc.Resolve(ctx, agent.OwnerID, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(types.LayerIntimate)
	})

	t.Run("stranger reads public", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		seedAgent(t, repo, "mirei")

		layer, err := uc.Resolve(ctx, "stranger-1", "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(types.LayerPublic)
	})

	t.Run("grant raises the layer", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		seedAgent(t, repo, "mirei")

		_, err := uc.SetGrant(ctx, "mirei", "close-friend", types.LayerFriends)
		gt.NoError(t, err).Required()

		layer, err := uc.Resolve(ctx, "close-friend", "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(types.LayerFriends)

		// Other viewers are unaffected
		layer, err = uc.Resolve(ctx, "someone-else", "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(types.LayerPublic)
	})

	t.Run("a grant can be raised and lowered", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		seedAgent(t, repo, "mirei")

		_, err := uc.SetGrant(ctx, "mirei", "close-friend", types.LayerIntimate)
		gt.NoError(t, err).Required()
		_, err = uc.SetGrant(ctx, "mirei", "close-friend", types.LayerPublic)
		gt.NoError(t, err).Required()

		layer, err := uc.Resolve(ctx, "close-friend", "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(types.LayerPublic)
	})

	t.Run("unknown agent never falls back to public", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)

		_, err := uc.Resolve(ctx, "viewer-9", "no-such-agent")
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, usecase.ErrAgentNotFound)).True()
	})
}

func TestAccessUseCase_SetGrant(t *testing.T) {
	t.Run("rejects an invalid layer", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		seedAgent(t, repo, "mirei")

		_, err := uc.SetGrant(ctx, "mirei", "close-friend", "secret")
		gt.Error(t, err)
	})

	t.Run("rejects an unknown agent", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)

		_, err := uc.SetGrant(ctx, "no-such-agent", "close-friend", types.LayerFriends)
		gt.Error(t, err)
		gt.Bool(t, errors.Is(err, usecase.ErrAgentNotFound)).True()
	})

	t.Run("grant returns the stored assignment", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewAccessUseCase(repo)
		seedAgent(t, repo, "mirei")

		grant, err := uc.SetGrant(ctx, "mirei", "close-friend", types.LayerFriends)
		gt.NoError(t, err).Required()
		gt.Value(t, grant.AgentID).Equal(types.AgentID("mirei"))
		gt.Value(t, grant.ViewerID).Equal(types.ViewerID("close-friend"))
		gt.Value(t, grant.Layer).Equal(types.LayerFriends)

		stored, err := repo.Grant().Get(ctx, "mirei", "close-friend")
		gt.NoError(t, err).Required()
		gt.Value(t, stored.Layer).Equal(types.LayerFriends)
	})
}

func TestModelViewerLayerMatrix(t *testing.T) {
	// Every grant combination resolves to exactly the granted layer, the
	// owner is pinned to intimate, everyone else to public
	repo := memory.New()
	ctx := context.Background()
	uc := usecase.NewAccessUseCase(repo)
	agent := seedAgent(t, repo, "mirei")

	for _, granted := range types.AllKnowledgeLayers() {
		viewerID := types.ViewerID("viewer-" + granted.String())
		_, err := uc.SetGrant(ctx, "mirei", viewerID, granted)
		gt.NoError(t, err).Required()

		layer, err := uc.Resolve(ctx, viewerID, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, layer).Equal(granted)
	}

	layer, err := uc.Resolve(ctx, agent.OwnerID, "mirei")
	gt.NoError(t, err).Required()
	gt.Value(t, layer).Equal(types.LayerIntimate)

	layer, err = uc.Resolve(ctx, "anonymous", "mirei")
	gt.NoError(t, err).Required()
	gt.Value(t, layer).Equal(types.LayerPublic)
}
