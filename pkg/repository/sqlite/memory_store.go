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

type memoryRepository struct {
	db *sql.DB
}

const memoryColumns = `id, agent_id, kind, content, confidence, layer, source_message_id, embedding, superseded_by, created_at`

func (r *memoryRepository) Put(ctx context.Context, mem *model.Memory) error {
	if mem.ID == "" {
		mem.ID = model.NewMemoryID()
	}
	if mem.CreatedAt.IsZero() {
		mem.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO memories (`+memoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(mem.ID), mem.AgentID.String(), mem.Kind.String(), mem.Content, mem.Confidence,
		mem.Layer.String(), string(mem.SourceMessageID), encodeEmbedding(mem.Embedding),
		string(mem.SupersededBy), encodeTime(mem.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put memory", goerr.V("id", mem.ID))
	}
	return nil
}

func scanMemory(row interface{ Scan(...any) error }) (*model.Memory, error) {
	var m model.Memory
	var embedding []byte
	var createdAt int64

	err := row.Scan(&m.ID, &m.AgentID, &m.Kind, &m.Content, &m.Confidence, &m.Layer,
		&m.SourceMessageID, &embedding, &m.SupersededBy, &createdAt)
	if err != nil {
		return nil, err
	}

	m.Embedding = decodeEmbedding(embedding)
	m.CreatedAt = decodeTime(createdAt)
	return &m, nil
}

func (r *memoryRepository) Get(ctx context.Context, agentID types.AgentID, id model.MemoryID) (*model.Memory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE agent_id = ? AND id = ?`,
		agentID.String(), string(id))

	mem, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get memory", goerr.V("id", id))
	}
	return mem, nil
}

func (r *memoryRepository) ListLive(ctx context.Context, agentID types.AgentID) ([]*model.Memory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE agent_id = ? AND superseded_by = ''
		 ORDER BY created_at DESC`,
		agentID.String())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories")
	}
	defer rows.Close()

	var result []*model.Memory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory")
		}
		result = append(result, mem)
	}

	return result, rows.Err()
}

func (r *memoryRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.MemoryID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE memories SET superseded_by = ? WHERE agent_id = ? AND id = ?`,
		string(by), agentID.String(), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to supersede memory", goerr.V("id", id))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check supersede result", goerr.V("id", id))
	}
	if affected == 0 {
		return goerr.Wrap(ErrNotFound, "memory not found", goerr.V("id", id))
	}
	return nil
}

func (r *memoryRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredMemory, error) {
	marks, layerArgs := layerPlaceholders(maxLayer)
	if len(layerArgs) == 0 {
		return nil, nil
	}

	// The layer filter runs in SQL, before any similarity ranking
	args := append([]any{agentID.String()}, layerArgs...)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories
		 WHERE agent_id = ? AND superseded_by = '' AND embedding IS NOT NULL
		   AND layer IN (`+marks+`)`,
		args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query memories")
	}
	defer rows.Close()

	var candidates []*interfaces.ScoredMemory
	for rows.Next() {
		mem, err := scanMemory(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory")
		}
		candidates = append(candidates, &interfaces.ScoredMemory{
			Memory:     mem,
			Similarity: cosineSimilarity(embedding, mem.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memories")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Memory.CreatedAt.After(candidates[j].Memory.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}
