package memory

import (
	"context"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
)

type ledgerKey struct {
	agentID types.AgentID
	bucket  string
}

type ledgerRepository struct {
	mu      sync.Mutex
	buckets map[ledgerKey]*model.LedgerBucket
}

func newLedgerRepository() *ledgerRepository {
	return &ledgerRepository{
		buckets: make(map[ledgerKey]*model.LedgerBucket),
	}
}

func (r *ledgerRepository) get(agentID types.AgentID, bucket string) *model.LedgerBucket {
	key := ledgerKey{agentID: agentID, bucket: bucket}
	b, exists := r.buckets[key]
	if !exists {
		b = &model.LedgerBucket{AgentID: agentID, Bucket: bucket}
		r.buckets[key] = b
	}
	return b
}

// Consume checks and increments both buckets under one lock so that
// concurrent callers can never push a count past its cap.
func (r *ledgerRepository) Consume(ctx context.Context, agentID types.AgentID, day, week string, dailyCap, weeklyCap int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	daily := r.get(agentID, day)
	weekly := r.get(agentID, week)

	if daily.Count >= dailyCap || weekly.Count >= weeklyCap {
		return false, nil
	}

	now := time.Now().UTC()
	daily.Count++
	daily.UpdatedAt = now
	weekly.Count++
	weekly.UpdatedAt = now

	return true, nil
}

func (r *ledgerRepository) Count(ctx context.Context, agentID types.AgentID, bucket string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, exists := r.buckets[ledgerKey{agentID: agentID, bucket: bucket}]
	if !exists {
		return 0, nil
	}
	return b.Count, nil
}
