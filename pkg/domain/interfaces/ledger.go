package interfaces

import (
	"context"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

// LedgerRepository defines the interface for the escalation ledger.
// The ledger is the only piece of shared state that multiple concurrent
// message turns write, so Consume must be atomic in every backend.
type LedgerRepository interface {
	// Consume checks both the daily and the weekly bucket of an agent and,
	// when neither is at its cap, increments both and returns true. When
	// either bucket is full nothing is incremented and false is returned.
	// Concurrent calls never overshoot a cap.
	Consume(ctx context.Context, agentID types.AgentID, day, week string, dailyCap, weeklyCap int) (bool, error)

	// Count returns the current count of a bucket, 0 when it does not exist
	Count(ctx context.Context, agentID types.AgentID, bucket string) (int, error)
}
