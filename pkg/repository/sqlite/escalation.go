package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type escalationRepository struct {
	db *sql.DB
}

const escalationColumns = `id, agent_id, conversation_id, message_id, question, status, answer, created_at, answered_at`

func (r *escalationRepository) Put(ctx context.Context, esc *model.Escalation) error {
	if esc.ID == "" {
		esc.ID = model.NewEscalationID()
	}
	if esc.Status == "" {
		esc.Status = types.EscalationPending
	}
	if esc.CreatedAt.IsZero() {
		esc.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO escalations (`+escalationColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(esc.ID), esc.AgentID.String(), string(esc.ConversationID), string(esc.MessageID),
		esc.Question, esc.Status.String(), esc.Answer,
		encodeTime(esc.CreatedAt), encodeTime(esc.AnsweredAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put escalation", goerr.V("id", esc.ID))
	}
	return nil
}

func scanEscalation(row interface{ Scan(...any) error }) (*model.Escalation, error) {
	var e model.Escalation
	var createdAt, answeredAt int64

	err := row.Scan(&e.ID, &e.AgentID, &e.ConversationID, &e.MessageID,
		&e.Question, &e.Status, &e.Answer, &createdAt, &answeredAt)
	if err != nil {
		return nil, err
	}

	e.CreatedAt = decodeTime(createdAt)
	e.AnsweredAt = decodeTime(answeredAt)
	return &e, nil
}

func (r *escalationRepository) Get(ctx context.Context, agentID types.AgentID, id model.EscalationID) (*model.Escalation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+escalationColumns+` FROM escalations WHERE agent_id = ? AND id = ?`,
		agentID.String(), string(id))

	esc, err := scanEscalation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get escalation", goerr.V("id", id))
	}
	return esc, nil
}

func (r *escalationRepository) ListByAgent(ctx context.Context, agentID types.AgentID, status types.EscalationStatus) ([]*model.Escalation, error) {
	query := `SELECT ` + escalationColumns + ` FROM escalations WHERE agent_id = ?`
	args := []any{agentID.String()}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status.String())
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query escalations", goerr.V("agent_id", agentID))
	}
	defer rows.Close()

	var escalations []*model.Escalation
	for rows.Next() {
		esc, err := scanEscalation(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan escalation")
		}
		escalations = append(escalations, esc)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate escalations")
	}
	return escalations, nil
}

func (r *escalationRepository) Update(ctx context.Context, esc *model.Escalation) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE escalations SET status = ?, answer = ?, answered_at = ? WHERE agent_id = ? AND id = ?`,
		esc.Status.String(), esc.Answer, encodeTime(esc.AnsweredAt),
		esc.AgentID.String(), string(esc.ID))
	if err != nil {
		return goerr.Wrap(err, "failed to update escalation", goerr.V("id", esc.ID))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check escalation update", goerr.V("id", esc.ID))
	}
	if affected == 0 {
		return goerr.Wrap(ErrNotFound, "escalation not found", goerr.V("id", esc.ID))
	}
	return nil
}
