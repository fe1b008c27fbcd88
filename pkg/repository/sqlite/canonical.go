package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type canonicalRepository struct {
	db *sql.DB
}

const canonicalColumns = `id, agent_id, question, embedding, answer, confidence, reuse_count, created_at, last_reused_at`

func (r *canonicalRepository) Put(ctx context.Context, answer *model.CanonicalAnswer) error {
	if answer.ID == "" {
		answer.ID = model.NewCanonicalID()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO canonical_answers (`+canonicalColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(answer.ID), answer.AgentID.String(), answer.Question, encodeEmbedding(answer.Embedding),
		answer.Answer, answer.Confidence, answer.ReuseCount,
		encodeTime(answer.CreatedAt), encodeTime(answer.LastReusedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put canonical answer", goerr.V("id", answer.ID))
	}
	return nil
}

func scanCanonical(row interface{ Scan(...any) error }) (*model.CanonicalAnswer, error) {
	var a model.CanonicalAnswer
	var embedding []byte
	var createdAt, lastReusedAt int64

	err := row.Scan(&a.ID, &a.AgentID, &a.Question, &embedding, &a.Answer,
		&a.Confidence, &a.ReuseCount, &createdAt, &lastReusedAt)
	if err != nil {
		return nil, err
	}

	a.Embedding = decodeEmbedding(embedding)
	a.CreatedAt = decodeTime(createdAt)
	a.LastReusedAt = decodeTime(lastReusedAt)
	return &a, nil
}

func (r *canonicalRepository) Get(ctx context.Context, agentID types.AgentID, id model.CanonicalID) (*model.CanonicalAnswer, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_answers WHERE agent_id = ? AND id = ?`,
		agentID.String(), string(id))

	answer, err := scanCanonical(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get canonical answer", goerr.V("id", id))
	}
	return answer, nil
}

func (r *canonicalRepository) FindNearest(ctx context.Context, agentID types.AgentID, embedding []float32, limit int) ([]*interfaces.ScoredCanonical, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+canonicalColumns+` FROM canonical_answers
		 WHERE agent_id = ? AND embedding IS NOT NULL`,
		agentID.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query canonical answers")
	}
	defer rows.Close()

	var candidates []*interfaces.ScoredCanonical
	for rows.Next() {
		answer, err := scanCanonical(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan canonical answer")
		}
		candidates = append(candidates, &interfaces.ScoredCanonical{
			Answer:     answer,
			Similarity: cosineSimilarity(embedding, answer.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate canonical answers")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Answer.CreatedAt.After(candidates[j].Answer.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}

func (r *canonicalRepository) IncrementReuse(ctx context.Context, agentID types.AgentID, id model.CanonicalID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE canonical_answers SET reuse_count = reuse_count + 1, last_reused_at = ?
		 WHERE agent_id = ? AND id = ?`,
		encodeTime(time.Now().UTC()), agentID.String(), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to increment reuse", goerr.V("id", id))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check reuse result", goerr.V("id", id))
	}
	if affected == 0 {
		return goerr.Wrap(ErrNotFound, "canonical answer not found", goerr.V("id", id))
	}
	return nil
}
