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

type conversationRepository struct {
	db *sql.DB
}

func (r *conversationRepository) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == "" {
		conv.ID = model.NewConversationID()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.LastMessageAt.IsZero() {
		conv.LastMessageAt = conv.CreatedAt
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO conversations (id, agent_id, viewer_id, viewer_tier, created_at, last_message_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(conv.ID), conv.AgentID.String(), conv.ViewerID.String(), conv.ViewerTier.String(),
		encodeTime(conv.CreatedAt), encodeTime(conv.LastMessageAt))
	if err != nil {
		return goerr.Wrap(err, "failed to create conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func scanConversation(row interface{ Scan(...any) error }) (*model.Conversation, error) {
	var c model.Conversation
	var createdAt, lastMessageAt int64

	err := row.Scan(&c.ID, &c.AgentID, &c.ViewerID, &c.ViewerTier, &createdAt, &lastMessageAt)
	if err != nil {
		return nil, err
	}

	c.CreatedAt = decodeTime(createdAt)
	c.LastMessageAt = decodeTime(lastMessageAt)
	return &c, nil
}

func (r *conversationRepository) Get(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, agent_id, viewer_id, viewer_tier, created_at, last_message_at
		 FROM conversations WHERE id = ?`,
		string(id))

	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}
	return conv, nil
}

func (r *conversationRepository) ListByAgent(ctx context.Context, agentID types.AgentID) ([]*model.Conversation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, agent_id, viewer_id, viewer_tier, created_at, last_message_at
		 FROM conversations WHERE agent_id = ?
		 ORDER BY last_message_at DESC`,
		agentID.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	var result []*model.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan conversation")
		}
		result = append(result, conv)
	}

	return result, rows.Err()
}

func (r *conversationRepository) AppendMessage(ctx context.Context, msg *model.Message) (*model.Message, error) {
	id := msg.ID
	if id == "" {
		id = model.NewMessageID()
	}
	createdAt := msg.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to begin tx")
	}
	defer func() { _ = tx.Rollback() }()

	// The update doubles as the existence check and takes the write lock
	// before the seq read, so concurrent appends serialize.
	res, err := tx.ExecContext(ctx,
		`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
		encodeTime(createdAt), string(msg.ConversationID))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to touch conversation", goerr.V("id", msg.ConversationID))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check touch result")
	}
	if affected == 0 {
		return nil, goerr.Wrap(ErrNotFound, "conversation not found", goerr.V("id", msg.ConversationID))
	}

	var seq int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM messages WHERE conversation_id = ?`,
		string(msg.ConversationID)).Scan(&seq); err != nil {
		return nil, goerr.Wrap(err, "failed to assign seq", goerr.V("id", msg.ConversationID))
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages (id, conversation_id, seq, role, text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		string(id), string(msg.ConversationID), seq, msg.Role.String(), msg.Text,
		encodeTime(createdAt)); err != nil {
		return nil, goerr.Wrap(err, "failed to insert message", goerr.V("id", id))
	}

	if err := tx.Commit(); err != nil {
		return nil, goerr.Wrap(err, "failed to commit message", goerr.V("id", id))
	}

	stored := *msg
	stored.ID = id
	stored.Seq = seq
	stored.CreatedAt = createdAt
	return &stored, nil
}

func scanMessage(row interface{ Scan(...any) error }) (*model.Message, error) {
	var m model.Message
	var createdAt int64

	err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.Role, &m.Text, &createdAt)
	if err != nil {
		return nil, err
	}

	m.CreatedAt = decodeTime(createdAt)
	return &m, nil
}

func (r *conversationRepository) ListMessagesAfter(ctx context.Context, convID model.ConversationID, afterSeq int64, limit int) ([]*model.Message, error) {
	query := `SELECT id, conversation_id, seq, role, text, created_at
	          FROM messages WHERE conversation_id = ? AND seq > ?
	          ORDER BY seq`
	args := []any{string(convID), afterSeq}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list messages", goerr.V("id", convID))
	}
	defer rows.Close()

	var result []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		result = append(result, msg)
	}

	return result, rows.Err()
}

func (r *conversationRepository) ListRecentMessages(ctx context.Context, convID model.ConversationID, n int) ([]*model.Message, error) {
	query := `SELECT id, conversation_id, seq, role, text, created_at
	          FROM messages WHERE conversation_id = ?
	          ORDER BY seq DESC`
	args := []any{string(convID)}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list recent messages", goerr.V("id", convID))
	}
	defer rows.Close()

	var result []*model.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan message")
		}
		result = append(result, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Flip to ascending seq order
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}

	return result, nil
}
