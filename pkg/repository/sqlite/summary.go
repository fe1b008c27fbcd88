package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/m-mizutani/goerr/v2"
)

type summaryRepository struct {
	db *sql.DB
}

func (r *summaryRepository) Put(ctx context.Context, summary *model.ConversationSummary) error {
	if summary.ID == "" {
		summary.ID = model.NewSummaryID()
	}
	if summary.CreatedAt.IsZero() {
		summary.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO summaries (id, conversation_id, content, messages_included, from_seq, to_seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(summary.ID), string(summary.ConversationID), summary.Content,
		summary.MessagesIncluded, summary.FromSeq, summary.ToSeq, encodeTime(summary.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put summary", goerr.V("id", summary.ID))
	}
	return nil
}

func (r *summaryRepository) ListByConversation(ctx context.Context, convID model.ConversationID) ([]*model.ConversationSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, conversation_id, content, messages_included, from_seq, to_seq, created_at
		 FROM summaries WHERE conversation_id = ?
		 ORDER BY from_seq`,
		string(convID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list summaries", goerr.V("id", convID))
	}
	defer rows.Close()

	var result []*model.ConversationSummary
	for rows.Next() {
		var s model.ConversationSummary
		var createdAt int64
		if err := rows.Scan(&s.ID, &s.ConversationID, &s.Content, &s.MessagesIncluded,
			&s.FromSeq, &s.ToSeq, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan summary")
		}
		s.CreatedAt = decodeTime(createdAt)
		result = append(result, &s)
	}

	return result, rows.Err()
}

func (r *summaryRepository) LastToSeq(ctx context.Context, convID model.ConversationID) (int64, error) {
	var last int64
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(to_seq), 0) FROM summaries WHERE conversation_id = ?`,
		string(convID)).Scan(&last)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get last summarized seq", goerr.V("id", convID))
	}
	return last, nil
}
