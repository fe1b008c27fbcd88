package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type ledgerRepository struct {
	db *sql.DB
}

// Consume increments the day and week buckets together, or neither. The
// guarded UPDATE checks both caps inside a single statement so two
// concurrent callers cannot both slip past the last remaining slot.
func (r *ledgerRepository) Consume(ctx context.Context, agentID types.AgentID, day, week string, dailyCap, weeklyCap int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, goerr.Wrap(err, "failed to begin ledger tx")
	}
	defer func() { _ = tx.Rollback() }()

	now := encodeTime(time.Now().UTC())
	for _, bucket := range []string{day, week} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO escalation_ledger (agent_id, bucket, count, updated_at)
			 VALUES (?, ?, 0, ?)
			 ON CONFLICT (agent_id, bucket) DO NOTHING`,
			agentID.String(), bucket, now)
		if err != nil {
			return false, goerr.Wrap(err, "failed to ensure ledger bucket", goerr.V("bucket", bucket))
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE escalation_ledger SET count = count + 1, updated_at = ?
		 WHERE agent_id = ? AND bucket IN (?, ?)
		   AND (SELECT COUNT(*) FROM escalation_ledger
		        WHERE agent_id = ?
		          AND ((bucket = ? AND count < ?) OR (bucket = ? AND count < ?))) = 2`,
		now, agentID.String(), day, week,
		agentID.String(), day, dailyCap, week, weeklyCap)
	if err != nil {
		return false, goerr.Wrap(err, "failed to consume ledger slot", goerr.V("agent_id", agentID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, goerr.Wrap(err, "failed to check ledger update")
	}
	if affected != 2 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, goerr.Wrap(err, "failed to commit ledger tx")
	}
	return true, nil
}

func (r *ledgerRepository) Count(ctx context.Context, agentID types.AgentID, bucket string) (int, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT count FROM escalation_ledger WHERE agent_id = ? AND bucket = ?`,
		agentID.String(), bucket)

	var count int
	err := row.Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count ledger bucket",
			goerr.V("agent_id", agentID), goerr.V("bucket", bucket))
	}
	return count, nil
}
