package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/repository/memory"
	"github.com/doppel-lab/keryx/pkg/service/worker"
	"github.com/m-mizutani/goerr/v2"
)

// mockConsolidator is a mock implementation of worker.Consolidator for testing
type mockConsolidator struct {
	mu     sync.Mutex
	calls  map[types.AgentID]int
	errFor types.AgentID
}

func newMockConsolidator() *mockConsolidator {
	return &mockConsolidator{
		calls: make(map[types.AgentID]int),
	}
}

func (m *mockConsolidator) Consolidate(ctx context.Context, agentID types.AgentID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[agentID]++
	if m.errFor != "" && m.errFor == agentID {
		return 0, goerr.New("consolidation failed")
	}
	return 1, nil
}

func (m *mockConsolidator) callCount(agentID types.AgentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[agentID]
}

// mockExpirer is a mock implementation of worker.Expirer for testing
type mockExpirer struct {
	mu        sync.Mutex
	calls     map[types.AgentID]int
	olderThan time.Duration
}

func newMockExpirer() *mockExpirer {
	return &mockExpirer{
		calls: make(map[types.AgentID]int),
	}
}

func (m *mockExpirer) ExpireStale(ctx context.Context, agentID types.AgentID, olderThan time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls[agentID]++
	m.olderThan = olderThan
	return 1, nil
}

func (m *mockExpirer) callCount(agentID types.AgentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[agentID]
}

func TestMaintenanceWorker_PeriodicSweep(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	consolidator := newMockConsolidator()

	agentA := types.AgentID("worker-agent-a")
	agentB := types.AgentID("worker-agent-b")
	for _, id := range []types.AgentID{agentA, agentB} {
		if err := repo.Agent().Put(ctx, &model.Agent{ID: id, Name: string(id)}); err != nil {
			t.Fatalf("failed to put agent: %v", err)
		}
	}

	w := worker.NewMaintenanceWorker(repo, consolidator, 20*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	// Let at least one tick fire
	time.Sleep(70 * time.Millisecond)
	w.Stop()

	if consolidator.callCount(agentA) == 0 {
		t.Error("expected consolidation to run for agent A")
	}
	if consolidator.callCount(agentB) == 0 {
		t.Error("expected consolidation to run for agent B")
	}
}

func TestMaintenanceWorker_ExpiresEscalations(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	consolidator := newMockConsolidator()
	expirer := newMockExpirer()

	agentID := types.AgentID("worker-expiry")
	if err := repo.Agent().Put(ctx, &model.Agent{ID: agentID, Name: "expiry"}); err != nil {
		t.Fatalf("failed to put agent: %v", err)
	}

	w := worker.NewMaintenanceWorker(repo, consolidator, 20*time.Millisecond,
		worker.WithEscalationExpiry(expirer, 72*time.Hour))
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	time.Sleep(70 * time.Millisecond)
	w.Stop()

	if expirer.callCount(agentID) == 0 {
		t.Error("expected escalation expiry to run")
	}
	expirer.mu.Lock()
	olderThan := expirer.olderThan
	expirer.mu.Unlock()
	if olderThan != 72*time.Hour {
		t.Errorf("expected the configured cutoff to be passed through, got %v", olderThan)
	}
}

func TestMaintenanceWorker_ContinuesAfterAgentFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	consolidator := newMockConsolidator()

	failing := types.AgentID("worker-failing")
	healthy := types.AgentID("worker-healthy")
	consolidator.errFor = failing

	// The failing agent sorts first so a sweep reaches it before the healthy one
	for _, id := range []types.AgentID{failing, healthy} {
		if err := repo.Agent().Put(ctx, &model.Agent{ID: id, Name: string(id)}); err != nil {
			t.Fatalf("failed to put agent: %v", err)
		}
	}

	w := worker.NewMaintenanceWorker(repo, consolidator, 20*time.Millisecond)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	time.Sleep(70 * time.Millisecond)
	w.Stop()

	if consolidator.callCount(failing) == 0 {
		t.Error("expected the failing agent to be attempted")
	}
	if consolidator.callCount(healthy) == 0 {
		t.Error("expected the sweep to continue past the failing agent")
	}
}

func TestMaintenanceWorker_StopBeforeFirstTick(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	consolidator := newMockConsolidator()

	agentID := types.AgentID("worker-stopped")
	if err := repo.Agent().Put(ctx, &model.Agent{ID: agentID, Name: "stopped"}); err != nil {
		t.Fatalf("failed to put agent: %v", err)
	}

	w := worker.NewMaintenanceWorker(repo, consolidator, time.Hour)
	if err := w.Start(ctx); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}

	// Stop must return promptly even though no tick ever fired
	done := make(chan struct{})
	go func() {
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}

	if consolidator.callCount(agentID) != 0 {
		t.Error("expected no consolidation before the first tick")
	}
}
