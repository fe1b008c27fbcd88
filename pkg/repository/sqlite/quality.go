package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type qualityRepository struct {
	db *sql.DB
}

const qualityColumns = `message_id, conversation_id, agent_id, outcome, confidence, novelty, relevance, engagement, grounding, issues, created_at`

func (r *qualityRepository) Put(ctx context.Context, record *model.QualityRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	issues, err := encodeStrings(record.Issues)
	if err != nil {
		return goerr.Wrap(err, "failed to encode quality issues", goerr.V("message_id", record.MessageID))
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO quality_records (`+qualityColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (message_id) DO UPDATE SET
		   outcome = excluded.outcome,
		   confidence = excluded.confidence,
		   novelty = excluded.novelty,
		   relevance = excluded.relevance,
		   engagement = excluded.engagement,
		   grounding = excluded.grounding,
		   issues = excluded.issues`,
		string(record.MessageID), string(record.ConversationID), record.AgentID.String(),
		record.Outcome.String(), record.Confidence, record.Novelty,
		record.Relevance, record.Engagement, record.Grounding,
		issues, encodeTime(createdAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put quality record", goerr.V("message_id", record.MessageID))
	}
	return nil
}

func scanQuality(row interface{ Scan(...any) error }) (*model.QualityRecord, error) {
	var q model.QualityRecord
	var issues sql.NullString
	var createdAt int64

	err := row.Scan(&q.MessageID, &q.ConversationID, &q.AgentID, &q.Outcome,
		&q.Confidence, &q.Novelty, &q.Relevance, &q.Engagement, &q.Grounding,
		&issues, &createdAt)
	if err != nil {
		return nil, err
	}

	if issues.Valid && issues.String != "" {
		if err := json.Unmarshal([]byte(issues.String), &q.Issues); err != nil {
			return nil, goerr.Wrap(err, "failed to decode quality issues")
		}
	}
	q.CreatedAt = decodeTime(createdAt)
	return &q, nil
}

func (r *qualityRepository) Get(ctx context.Context, messageID model.MessageID) (*model.QualityRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+qualityColumns+` FROM quality_records WHERE message_id = ?`,
		string(messageID))

	record, err := scanQuality(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "quality record not found", goerr.V("message_id", messageID))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get quality record", goerr.V("message_id", messageID))
	}
	return record, nil
}

func (r *qualityRepository) ListByAgentSince(ctx context.Context, agentID types.AgentID, since time.Time) ([]*model.QualityRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+qualityColumns+` FROM quality_records
		 WHERE agent_id = ? AND created_at >= ?
		 ORDER BY created_at DESC`,
		agentID.String(), encodeTime(since))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query quality records", goerr.V("agent_id", agentID))
	}
	defer rows.Close()

	var records []*model.QualityRecord
	for rows.Next() {
		record, err := scanQuality(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan quality record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate quality records")
	}
	return records, nil
}
