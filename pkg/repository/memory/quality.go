package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type qualityRepository struct {
	mu      sync.RWMutex
	records map[model.MessageID]*model.QualityRecord
}

func newQualityRepository() *qualityRepository {
	return &qualityRepository{
		records: make(map[model.MessageID]*model.QualityRecord),
	}
}

func copyQualityRecord(q *model.QualityRecord) *model.QualityRecord {
	copied := *q
	if q.Issues != nil {
		copied.Issues = make([]string, len(q.Issues))
		copy(copied.Issues, q.Issues)
	}
	return &copied
}

func (r *qualityRepository) Put(ctx context.Context, rec *model.QualityRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := copyQualityRecord(rec)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	r.records[stored.MessageID] = stored
	return nil
}

func (r *qualityRepository) Get(ctx context.Context, msgID model.MessageID) (*model.QualityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, exists := r.records[msgID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "quality record not found", goerr.V("message_id", msgID))
	}

	return copyQualityRecord(rec), nil
}

func (r *qualityRepository) ListByAgentSince(ctx context.Context, agentID types.AgentID, since time.Time) ([]*model.QualityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.QualityRecord
	for _, rec := range r.records {
		if rec.AgentID != agentID || rec.CreatedAt.Before(since) {
			continue
		}
		result = append(result, copyQualityRecord(rec))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}
