package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/doppel-lab/keryx/pkg/domain/types"
)

type ledgerRepository struct {
	client           *firestore.Client
	collectionPrefix string
}

func (r *ledgerRepository) agentsCollection() string {
	if r.collectionPrefix != "" {
		return r.collectionPrefix + "_agents"
	}
	return "agents"
}

func (r *ledgerRepository) bucketRef(agentID types.AgentID, bucket string) *firestore.DocumentRef {
	return r.client.Collection(r.agentsCollection()).Doc(agentID.String()).Collection("ledger").Doc(bucket)
}

func bucketCount(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	doc, err := tx.Get(ref)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, goerr.Wrap(err, "failed to get ledger bucket")
	}

	v, err := doc.DataAt("Count")
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read bucket count")
	}
	count, ok := v.(int64)
	if !ok {
		return 0, goerr.New("bucket count is not of type int64", goerr.V("value", v))
	}
	return count, nil
}

// Consume runs a transaction over both bucket documents. All reads happen
// before writes as Firestore transactions require. A full bucket ends the
// transaction without writes, so denied calls never consume a slot.
func (r *ledgerRepository) Consume(ctx context.Context, agentID types.AgentID, day, week string, dailyCap, weeklyCap int) (bool, error) {
	dayRef := r.bucketRef(agentID, day)
	weekRef := r.bucketRef(agentID, week)

	var granted bool
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		granted = false

		dayCount, err := bucketCount(tx, dayRef)
		if err != nil {
			return err
		}
		weekCount, err := bucketCount(tx, weekRef)
		if err != nil {
			return err
		}

		if dayCount >= int64(dailyCap) || weekCount >= int64(weeklyCap) {
			return nil
		}

		now := time.Now().UTC()
		if err := tx.Set(dayRef, map[string]interface{}{
			"Count":     dayCount + 1,
			"UpdatedAt": now,
		}); err != nil {
			return goerr.Wrap(err, "failed to update day bucket", goerr.V("bucket", day))
		}
		if err := tx.Set(weekRef, map[string]interface{}{
			"Count":     weekCount + 1,
			"UpdatedAt": now,
		}); err != nil {
			return goerr.Wrap(err, "failed to update week bucket", goerr.V("bucket", week))
		}

		granted = true
		return nil
	})
	if err != nil {
		return false, goerr.Wrap(err, "failed to consume ledger slot", goerr.V("agentID", agentID))
	}

	return granted, nil
}

func (r *ledgerRepository) Count(ctx context.Context, agentID types.AgentID, bucket string) (int, error) {
	doc, err := r.bucketRef(agentID, bucket).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return 0, nil
		}
		return 0, goerr.Wrap(err, "failed to get ledger bucket",
			goerr.V("agentID", agentID), goerr.V("bucket", bucket))
	}

	v, err := doc.DataAt("Count")
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read bucket count")
	}
	count, ok := v.(int64)
	if !ok {
		return 0, goerr.New("bucket count is not of type int64", goerr.V("value", v))
	}
	return int(count), nil
}
