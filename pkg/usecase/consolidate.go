package usecase

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/service/recall"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// ConsolidateUseCase extracts memories from finished turns and merges
// near-duplicates so an agent's memory stays compact
type ConsolidateUseCase struct {
	repo          interfaces.Repository
	recallService recall.Service
}

// NewConsolidateUseCase creates a new ConsolidateUseCase instance
func NewConsolidateUseCase(repo interfaces.Repository, recallService recall.Service) *ConsolidateUseCase {
	return &ConsolidateUseCase{
		repo:          repo,
		recallService: recallService,
	}
}

// CaptureTurn extracts memories from one conversation turn and stores
// them. Best-effort: without a recall service it is a no-op, and an
// extraction failure never affects the already-delivered answer.
func (uc *ConsolidateUseCase) CaptureTurn(ctx context.Context, agent *model.Agent, messages []*model.Message) error {
	if uc.recallService == nil {
		return nil
	}

	memories, err := uc.recallService.Extract(ctx, recall.Input{
		Agent:    agent,
		Messages: messages,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to extract memories",
			goerr.V(AgentIDKey, agent.ID))
	}

	for _, memory := range memories {
		if memory.ID == "" {
			memory.ID = model.NewMemoryID()
		}
		if memory.CreatedAt.IsZero() {
			memory.CreatedAt = time.Now()
		}
		if err := uc.repo.Memory().Put(ctx, memory); err != nil {
			return goerr.Wrap(err, "failed to store memory",
				goerr.V(AgentIDKey, agent.ID))
		}
	}

	if len(memories) > 0 {
		logging.From(ctx).Debug("captured memories from turn",
			"agent_id", agent.ID, "count", len(memories))
	}

	return nil
}

// Consolidate merges live same-kind memories whose embeddings are closer
// than the agent's merge threshold. Each merge creates one fresh memory
// and flags every member of the cluster as superseded by it. Returns the
// number of memories merged away.
func (uc *ConsolidateUseCase) Consolidate(ctx context.Context, agentID types.AgentID) (int, error) {
	config := effectiveConfig(ctx, uc.repo, agentID)

	live, err := uc.repo.Memory().ListLive(ctx, agentID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list memories",
			goerr.V(AgentIDKey, agentID))
	}

	byKind := make(map[types.MemoryKind][]*model.Memory)
	for _, m := range live {
		if len(m.Embedding) == 0 {
			continue
		}
		byKind[m.Kind] = append(byKind[m.Kind], m)
	}

	merged := 0
	for _, group := range byKind {
		for _, cluster := range clusterBySimilarity(group, config.MergeThreshold) {
			if len(cluster) < 2 {
				continue
			}
			if err := uc.mergeCluster(ctx, agentID, cluster); err != nil {
				return merged, err
			}
			merged += len(cluster)
		}
	}

	if merged > 0 {
		logging.From(ctx).Info("consolidated memories",
			"agent_id", agentID, "merged", merged)
	}

	return merged, nil
}

// clusterBySimilarity groups memories around seeds: each unvisited memory
// opens a cluster and pulls in every later memory within the threshold.
// Input is sorted by age first so the clustering is deterministic.
func clusterBySimilarity(memories []*model.Memory, threshold float64) [][]*model.Memory {
	sorted := make([]*model.Memory, len(memories))
	copy(sorted, memories)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	var clusters [][]*model.Memory
	visited := make(map[model.MemoryID]bool)
	for i, seed := range sorted {
		if visited[seed.ID] {
			continue
		}
		visited[seed.ID] = true
		cluster := []*model.Memory{seed}
		for _, candidate := range sorted[i+1:] {
			if visited[candidate.ID] {
				continue
			}
			if memoryCosine(seed.Embedding, candidate.Embedding) >= threshold {
				visited[candidate.ID] = true
				cluster = append(cluster, candidate)
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// mergeCluster creates the merged memory and retires the cluster. The
// winner's content survives; layer and confidence take the most
// restrictive and the highest value seen in the cluster.
func (uc *ConsolidateUseCase) mergeCluster(ctx context.Context, agentID types.AgentID, cluster []*model.Memory) error {
	winner := cluster[0]
	maxLayer := winner.Layer
	maxConfidence := winner.Confidence
	for _, m := range cluster[1:] {
		if m.Confidence > winner.Confidence ||
			(m.Confidence == winner.Confidence && m.CreatedAt.After(winner.CreatedAt)) {
			winner = m
		}
		if m.Layer.Rank() > maxLayer.Rank() {
			maxLayer = m.Layer
		}
		if m.Confidence > maxConfidence {
			maxConfidence = m.Confidence
		}
	}

	mergedMemory := &model.Memory{
		ID:              model.NewMemoryID(),
		AgentID:         agentID,
		Kind:            winner.Kind,
		Content:         winner.Content,
		Confidence:      maxConfidence,
		Layer:           maxLayer,
		SourceMessageID: winner.SourceMessageID,
		Embedding:       winner.Embedding,
		CreatedAt:       time.Now(),
	}
	if err := uc.repo.Memory().Put(ctx, mergedMemory); err != nil {
		return goerr.Wrap(err, "failed to store merged memory",
			goerr.V(AgentIDKey, agentID))
	}

	for _, m := range cluster {
		if err := uc.repo.Memory().Supersede(ctx, agentID, m.ID, mergedMemory.ID); err != nil {
			return goerr.Wrap(err, "failed to supersede merged memory",
				goerr.V(AgentIDKey, agentID), goerr.V("memory_id", m.ID))
		}
	}

	return nil
}

func memoryCosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}
