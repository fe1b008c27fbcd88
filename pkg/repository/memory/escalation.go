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

type escalationRepository struct {
	mu      sync.RWMutex
	tickets map[types.AgentID]map[model.EscalationID]*model.Escalation
}

func newEscalationRepository() *escalationRepository {
	return &escalationRepository{
		tickets: make(map[types.AgentID]map[model.EscalationID]*model.Escalation),
	}
}

func copyEscalation(e *model.Escalation) *model.Escalation {
	copied := *e
	return &copied
}

func (r *escalationRepository) Put(ctx context.Context, esc *model.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if esc.ID == "" {
		esc.ID = model.NewEscalationID()
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}
	if esc.Status == "" {
		esc.Status = types.EscalationPending
	}
	stored := copyEscalation(esc)

	if _, exists := r.tickets[stored.AgentID]; !exists {
		r.tickets[stored.AgentID] = make(map[model.EscalationID]*model.Escalation)
	}
	r.tickets[stored.AgentID][stored.ID] = stored
	return nil
}

func (r *escalationRepository) Get(ctx context.Context, agentID types.AgentID, id model.EscalationID) (*model.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bucket, exists := r.tickets[agentID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", id))
	}

	esc, exists := bucket[id]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", id))
	}

	return copyEscalation(esc), nil
}

func (r *escalationRepository) ListByAgent(ctx context.Context, agentID types.AgentID, status types.EscalationStatus) ([]*model.Escalation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*model.Escalation
	for _, e := range r.tickets[agentID] {
		if status != "" && e.Status != status {
			continue
		}
		result = append(result, copyEscalation(e))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (r *escalationRepository) Update(ctx context.Context, esc *model.Escalation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.tickets[esc.AgentID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", esc.ID))
	}

	if _, exists := bucket[esc.ID]; !exists {
		return goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", esc.ID))
	}

	bucket[esc.ID] = copyEscalation(esc)
	return nil
}
