package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
	"github.com/doppel-lab/keryx/pkg/domain/model"
	"github.com/doppel-lab/keryx/pkg/domain/types"
	"github.com/m-mizutani/goerr/v2"
)

type knowledgeRepository struct {
	db *sql.DB
}

func (r *knowledgeRepository) Put(ctx context.Context, chunk *model.KnowledgeChunk) error {
	if chunk.ID == "" {
		chunk.ID = model.NewChunkID()
	}
	if chunk.CreatedAt.IsZero() {
		chunk.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO knowledge_chunks (id, agent_id, text, embedding, layer, source, superseded_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		string(chunk.ID), chunk.AgentID.String(), chunk.Text, encodeEmbedding(chunk.Embedding),
		chunk.Layer.String(), chunk.Source, string(chunk.SupersededBy), encodeTime(chunk.CreatedAt))
	if err != nil {
		return goerr.Wrap(err, "failed to put chunk", goerr.V("id", chunk.ID))
	}
	return nil
}

func scanChunk(row interface{ Scan(...any) error }) (*model.KnowledgeChunk, error) {
	var c model.KnowledgeChunk
	var embedding []byte
	var createdAt int64

	err := row.Scan(&c.ID, &c.AgentID, &c.Text, &embedding, &c.Layer, &c.Source, &c.SupersededBy, &createdAt)
	if err != nil {
		return nil, err
	}

	c.Embedding = decodeEmbedding(embedding)
	c.CreatedAt = decodeTime(createdAt)
	return &c, nil
}

const chunkColumns = `id, agent_id, text, embedding, layer, source, superseded_by, created_at`

func (r *knowledgeRepository) Get(ctx context.Context, agentID types.AgentID, id model.ChunkID) (*model.KnowledgeChunk, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks WHERE agent_id = ? AND id = ?`,
		agentID.String(), string(id))

	chunk, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get chunk", goerr.V("id", id))
	}
	return chunk, nil
}

func (r *knowledgeRepository) ListBySource(ctx context.Context, agentID types.AgentID, source string) ([]*model.KnowledgeChunk, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 WHERE agent_id = ? AND source = ? AND superseded_by = ''
		 ORDER BY created_at DESC`,
		agentID.String(), source)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list chunks by source", goerr.V("source", source))
	}
	defer rows.Close()

	var result []*model.KnowledgeChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk")
		}
		result = append(result, chunk)
	}

	return result, rows.Err()
}

func (r *knowledgeRepository) Supersede(ctx context.Context, agentID types.AgentID, id, by model.ChunkID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE knowledge_chunks SET superseded_by = ? WHERE agent_id = ? AND id = ?`,
		string(by), agentID.String(), string(id))
	if err != nil {
		return goerr.Wrap(err, "failed to supersede chunk", goerr.V("id", id))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return goerr.Wrap(err, "failed to check supersede result", goerr.V("id", id))
	}
	if affected == 0 {
		return goerr.Wrap(ErrNotFound, "chunk not found", goerr.V("id", id))
	}
	return nil
}

// layerPlaceholders builds the IN clause arguments for the readable layers
func layerPlaceholders(maxLayer types.KnowledgeLayer) (string, []any) {
	layers := types.LayersUpTo(maxLayer)
	marks := make([]string, len(layers))
	args := make([]any, len(layers))
	for i, l := range layers {
		marks[i] = "?"
		args[i] = l.String()
	}
	return strings.Join(marks, ", "), args
}

func (r *knowledgeRepository) FindNearest(ctx context.Context, agentID types.AgentID, maxLayer types.KnowledgeLayer, embedding []float32, limit int) ([]*interfaces.ScoredChunk, error) {
	marks, layerArgs := layerPlaceholders(maxLayer)
	if len(layerArgs) == 0 {
		return nil, nil
	}

	// The layer filter runs in SQL, before any similarity ranking
	args := append([]any{agentID.String()}, layerArgs...)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM knowledge_chunks
		 WHERE agent_id = ? AND superseded_by = '' AND embedding IS NOT NULL
		   AND layer IN (`+marks+`)`,
		args...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query chunks")
	}
	defer rows.Close()

	var candidates []*interfaces.ScoredChunk
	for rows.Next() {
		chunk, err := scanChunk(rows)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk")
		}
		candidates = append(candidates, &interfaces.ScoredChunk{
			Chunk:      chunk,
			Similarity: cosineSimilarity(embedding, chunk.Embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate chunks")
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Similarity != candidates[j].Similarity {
			return candidates[i].Similarity > candidates[j].Similarity
		}
		return candidates[i].Chunk.CreatedAt.After(candidates[j].Chunk.CreatedAt)
	})

	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	return candidates, nil
}
