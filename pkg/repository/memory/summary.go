package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
)

type summaryRepository struct {
	mu        sync.RWMutex
	summaries map[model.ConversationID][]*model.ConversationSummary
}

func newSummaryRepository() *summaryRepository {
	return &summaryRepository{
		summaries: make(map[model.ConversationID][]*model.ConversationSummary),
	}
}

func copySummary(s *model.ConversationSummary) *model.ConversationSummary {
	copied := *s
	return &copied
}

func (r *summaryRepository) Put(ctx context.Context, summary *model.ConversationSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if summary.ID == "" {
		summary.ID = model.NewSummaryID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}
	stored := copySummary(summary)

	r.summaries[stored.ConversationID] = append(r.summaries[stored.ConversationID], stored)
	return nil
}

func (r *summaryRepository) ListByConversation(ctx context.Context, convID model.ConversationID) ([]*model.ConversationSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.summaries[convID]
	result := make([]*model.ConversationSummary, 0, len(entries))
	for _, s := range entries {
		result = append(result, copySummary(s))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FromSeq < result[j].FromSeq
	})

	return result, nil
}

func (r *summaryRepository) LastToSeq(ctx context.Context, convID model.ConversationID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var last int64
	for _, s := range r.summaries[convID] {
		if s.ToSeq > last {
			last = s.ToSeq
		}
	}

	return last, nil
}
