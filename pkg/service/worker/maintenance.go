package worker

import (
	"context"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/doppel-lab/keryx/pkg/utils/logging"
)

// Consolidator merges near-duplicate memories of one agent
type Consolidator interface {
	Consolidate(ctx context.Context, agentID types.AgentID) (int, error)
}

// Expirer closes pending escalation tickets older than a cutoff
type Expirer interface {
	ExpireStale(ctx context.Context, agentID types.AgentID, olderThan time.Duration) (int, error)
}

// MaintenanceWorker runs memory consolidation for every agent on a schedule.
// Post-turn consolidation catches most duplicates; the periodic sweep picks
// up what concurrent turns raced past.
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - For future horizontal scaling, implement distributed locking or leader election
type MaintenanceWorker struct {
	repo        interfaces.Repository
	consolidate Consolidator
	expire      Expirer
	expireAfter time.Duration
	interval    time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// WorkerOption configures optional maintenance tasks
type WorkerOption func(*MaintenanceWorker)

// WithEscalationExpiry adds escalation expiry to each sweep. Pending
// tickets older than olderThan are marked expired.
func WithEscalationExpiry(expire Expirer, olderThan time.Duration) WorkerOption {
	return func(w *MaintenanceWorker) {
		w.expire = expire
		w.expireAfter = olderThan
	}
}

// NewMaintenanceWorker creates a new worker for periodic memory consolidation
func NewMaintenanceWorker(repo interfaces.Repository, consolidate Consolidator, interval time.Duration, opts ...WorkerOption) *MaintenanceWorker {
	w := &MaintenanceWorker{
		repo:        repo,
		consolidate: consolidate,
		interval:    interval,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins the background maintenance loop. It does not block server
// startup; the first sweep waits one full interval.
func (w *MaintenanceWorker) Start(ctx context.Context) error {
	logging.Default().Info("Maintenance worker starting",
		"interval", w.interval.String())

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *MaintenanceWorker) Stop() {
	logging.Default().Info("Maintenance worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("Maintenance worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *MaintenanceWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.sweep(ctx); err != nil {
				// Log error but continue worker
				logging.Default().Error("Maintenance sweep failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.Default().Info("Maintenance worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Maintenance worker context cancelled")
			return
		}
	}
}

// sweep runs one consolidation pass over all agents. A failure on one
// agent does not stop the rest of the sweep.
func (w *MaintenanceWorker) sweep(ctx context.Context) error {
	startTime := time.Now()

	agents, err := w.repo.Agent().List(ctx)
	if err != nil {
		return err
	}

	merged := 0
	expired := 0
	for _, agent := range agents {
		select {
		case <-w.stopCh:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := w.consolidate.Consolidate(ctx, agent.ID)
		if err != nil {
			logging.Default().Error("Memory consolidation failed",
				"agent_id", agent.ID, "error", err.Error())
			continue
		}
		merged += n

		if w.expire != nil {
			n, err := w.expire.ExpireStale(ctx, agent.ID, w.expireAfter)
			if err != nil {
				logging.Default().Error("Escalation expiry failed",
					"agent_id", agent.ID, "error", err.Error())
				continue
			}
			expired += n
		}
	}

	logging.Default().Info("Maintenance sweep completed",
		"agents", len(agents),
		"merged", merged,
		"expired", expired,
		"duration", time.Since(startTime).String())

	return nil
}
