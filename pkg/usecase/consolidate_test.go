package usecase_test

import (
	"context"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/doppel-lab/keryx/pkg/usecase"
	"github.com/m-mizutani/gt"
)

// stubRecallService returns a fixed extraction result
type stubRecallService struct {
	memories []*model.Memory
	calls    int
}

func (s *stubRecallService) Extract(ctx context.Context, input recall.Input) ([]*model.Memory, error) {
	s.calls++
	return s.memories, nil
}

func seedMemory(t *testing.T, repo interfaces.Repository, agentID types.AgentID, kind types.MemoryKind, content string, confidence int, layer types.KnowledgeLayer, embedding []float32, createdAt time.Time) *model.Memory {
	t.Helper()
	mem := &model.Memory{
		ID:         model.NewMemoryID(),
		AgentID:    agentID,
		Kind:       kind,
		Content:    content,
		Confidence: confidence,
		Layer:      layer,
		Embedding:  embedding,
		CreatedAt:  createdAt,
	}
	gt.NoError(t, repo.Memory().Put(context.Background(), mem)).Required()
	return mem
}

func TestConsolidateUseCase_CaptureTurn(t *testing.T) {
	t.Run("stores every extracted memory", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()

		stub := &stubRecallService{
			memories: []*model.Memory{
				{AgentID: "mirei", Kind: types.MemoryFact, Content: "Viewer moved to Lisbon", Confidence: 80, Layer: types.LayerFriends},
				{AgentID: "mirei", Kind: types.MemoryPreference, Content: "Viewer prefers watercolor", Confidence: 65, Layer: types.LayerPublic},
			},
		}
		uc := usecase.NewConsolidateUseCase(repo, stub)
		agent := seedAgent(t, repo, "mirei")

		err := uc.CaptureTurn(ctx, agent, []*model.Message{
			{ID: model.NewMessageID(), Role: types.RoleViewer, Text: "I moved to Lisbon!"},
		})
		gt.NoError(t, err).Required()
		gt.Value(t, stub.calls).Equal(1)

		live, err := repo.Memory().ListLive(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Array(t, live).Length(2)
		for _, m := range live {
			gt.Bool(t, m.ID != "").True()
			gt.Bool(t, m.CreatedAt.IsZero()).False()
		}
	})

	t.Run("no recall service means no capture", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewConsolidateUseCase(repo, nil)
		agent := seedAgent(t, repo, "mirei")

		err := uc.CaptureTurn(ctx, agent, []*model.Message{
			{ID: model.NewMessageID(), Role: types.RoleViewer, Text: "I moved to Lisbon!"},
		})
		gt.NoError(t, err).Required()

		live, err := repo.Memory().ListLive(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Array(t, live).Length(0)
	})
}

func TestConsolidateUseCase_Consolidate(t *testing.T) {
	t.Run("merges near-duplicates of the same kind", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewConsolidateUseCase(repo, nil)
		seedAgent(t, repo, "mirei")

		base := time.Now().Add(-time.Hour)
		older := seedMemory(t, repo, "mirei", types.MemoryFact, "Fan lives in Lisbon",
			60, types.LayerIntimate, unitVec32(1), base)
		newer := seedMemory(t, repo, "mirei", types.MemoryFact, "The fan moved to Lisbon in March",
			80, types.LayerPublic, unitVec32(1), base.Add(time.Minute))
		distinct := seedMemory(t, repo, "mirei", types.MemoryFact, "Fan collects art books",
			70, types.LayerPublic, unitVec32(2), base.Add(2*time.Minute))

		merged, err := uc.Consolidate(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, merged).Equal(2)

		live, err := repo.Memory().ListLive(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Array(t, live).Length(2).Required()

		var mergedMem *model.Memory
		for _, m := range live {
			if m.ID != distinct.ID {
				mergedMem = m
			}
		}
		if mergedMem == nil {
			t.Fatal("merged memory not found among live memories")
		}
		// The more confident memory's content wins, the cluster's most
		// restrictive layer and highest confidence survive
		gt.Value(t, mergedMem.Content).Equal(newer.Content)
		gt.Value(t, mergedMem.Confidence).Equal(80)
		gt.Value(t, mergedMem.Layer).Equal(types.LayerIntimate)

		for _, victim := range []*model.Memory{older, newer} {
			stored, err := repo.Memory().Get(ctx, "mirei", victim.ID)
			gt.NoError(t, err).Required()
			gt.Value(t, stored.SupersededBy).Equal(mergedMem.ID)
		}

		// Nothing left to merge on a second pass
		merged, err = uc.Consolidate(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, merged).Equal(0)
	})

	t.Run("different kinds never merge", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewConsolidateUseCase(repo, nil)
		seedAgent(t, repo, "mirei")

		now := time.Now()
		seedMemory(t, repo, "mirei", types.MemoryFact, "Fan lives in Lisbon",
			60, types.LayerPublic, unitVec32(1), now)
		seedMemory(t, repo, "mirei", types.MemoryPreference, "Fan likes Lisbon",
			70, types.LayerPublic, unitVec32(1), now)

		merged, err := uc.Consolidate(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, merged).Equal(0)

		live, err := repo.Memory().ListLive(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Array(t, live).Length(2)
	})

	t.Run("distant memories of one kind stay separate", func(t *testing.T) {
		repo := memory.New()
		ctx := context.Background()
		uc := usecase.NewConsolidateUseCase(repo, nil)
		seedAgent(t, repo, "mirei")

		now := time.Now()
		seedMemory(t, repo, "mirei", types.MemoryFact, "Fan lives in Lisbon",
			60, types.LayerPublic, unitVec32(1), now)
		seedMemory(t, repo, "mirei", types.MemoryFact, "Fan works as a nurse",
			70, types.LayerPublic, unitVec32(2), now)

		merged, err := uc.Consolidate(ctx, "mirei")
		gt.NoError(t, err).Required()
		gt.Value(t, merged).Equal(0)
	})
}

func TestClusterBySimilarity(t *testing.T) {
	now := time.Now()
	near1 := &model.Memory{ID: "m-1", Embedding: unitVec32(1), CreatedAt: now}
	near2 := &model.Memory{ID: "m-2", Embedding: unitVec32(1), CreatedAt: now.Add(time.Second)}
	far := &model.Memory{ID: "m-3", Embedding: unitVec32(2), CreatedAt: now.Add(2 * time.Second)}

	clusters := usecase.ClusterBySimilarity([]*model.Memory{far, near2, near1}, 0.9)
	gt.Array(t, clusters).Length(2).Required()

	var sizes []int
	for _, c := range clusters {
		sizes = append(sizes, len(c))
	}
	gt.Value(t, sizes).Equal([]int{2, 1})
}
