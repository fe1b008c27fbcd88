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

type agentRepository struct {
	db *sql.DB
}

func (r *agentRepository) Put(ctx context.Context, agent *model.Agent) error {
	now := time.Now().UTC()
	createdAt := agent.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (id, owner_id, name, persona, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   owner_id = excluded.owner_id,
		   name = excluded.name,
		   persona = excluded.persona,
		   updated_at = excluded.updated_at`,
		agent.ID.String(), agent.OwnerID.String(), agent.Name, agent.Persona,
		encodeTime(createdAt), encodeTime(now))
	if err != nil {
		return goerr.Wrap(err, "failed to put agent", goerr.V("id", agent.ID))
	}
	return nil
}

func (r *agentRepository) Get(ctx context.Context, id types.AgentID) (*model.Agent, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, persona, created_at, updated_at FROM agents WHERE id = ?`,
		id.String())

	var agent model.Agent
	var createdAt, updatedAt int64
	err := row.Scan(&agent.ID, &agent.OwnerID, &agent.Name, &agent.Persona, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "agent not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get agent", goerr.V("id", id))
	}

	agent.CreatedAt = decodeTime(createdAt)
	agent.UpdatedAt = decodeTime(updatedAt)
	return &agent, nil
}

func (r *agentRepository) List(ctx context.Context) ([]*model.Agent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, name, persona, created_at, updated_at FROM agents ORDER BY id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list agents")
	}
	defer rows.Close()

	var result []*model.Agent
	for rows.Next() {
		var agent model.Agent
		var createdAt, updatedAt int64
		if err := rows.Scan(&agent.ID, &agent.OwnerID, &agent.Name, &agent.Persona, &createdAt, &updatedAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan agent")
		}
		agent.CreatedAt = decodeTime(createdAt)
		agent.UpdatedAt = decodeTime(updatedAt)
		result = append(result, &agent)
	}

	return result, rows.Err()
}

func (r *agentRepository) GetConfig(ctx context.Context, id types.AgentID) (*model.AgentConfig, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT agent_id, answer_enabled, confidence_threshold, reuse_threshold, merge_threshold,
		        clarification_enabled, escalation_enabled, escalation_daily_cap, escalation_weekly_cap,
		        blocked_topics, allowed_tiers, updated_at
		 FROM agent_configs WHERE agent_id = ?`,
		id.String())

	var cfg model.AgentConfig
	var blockedJSON, tiersJSON sql.NullString
	var updatedAt int64
	err := row.Scan(&cfg.AgentID, &cfg.AnswerEnabled, &cfg.ConfidenceThreshold,
		&cfg.ReuseThreshold, &cfg.MergeThreshold, &cfg.ClarificationEnabled,
		&cfg.EscalationEnabled, &cfg.EscalationDailyCap, &cfg.EscalationWeeklyCap,
		&blockedJSON, &tiersJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, goerr.Wrap(ErrNotFound, "agent config not found", goerr.V("id", id))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get agent config", goerr.V("id", id))
	}

	if blockedJSON.Valid {
		if err := json.Unmarshal([]byte(blockedJSON.String), &cfg.BlockedTopics); err != nil {
			return nil, goerr.Wrap(err, "failed to decode blocked topics", goerr.V("id", id))
		}
	}
	if tiersJSON.Valid {
		if err := json.Unmarshal([]byte(tiersJSON.String), &cfg.AllowedTiers); err != nil {
			return nil, goerr.Wrap(err, "failed to decode allowed tiers", goerr.V("id", id))
		}
	}
	cfg.UpdatedAt = decodeTime(updatedAt)
	return &cfg, nil
}

func (r *agentRepository) PutConfig(ctx context.Context, config *model.AgentConfig) error {
	var blockedJSON, tiersJSON *string
	if len(config.BlockedTopics) > 0 {
		b, err := json.Marshal(config.BlockedTopics)
		if err != nil {
			return goerr.Wrap(err, "failed to encode blocked topics")
		}
		s := string(b)
		blockedJSON = &s
	}
	if len(config.AllowedTiers) > 0 {
		b, err := json.Marshal(config.AllowedTiers)
		if err != nil {
			return goerr.Wrap(err, "failed to encode allowed tiers")
		}
		s := string(b)
		tiersJSON = &s
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agent_configs (agent_id, answer_enabled, confidence_threshold, reuse_threshold,
		                            merge_threshold, clarification_enabled, escalation_enabled,
		                            escalation_daily_cap, escalation_weekly_cap, blocked_topics,
		                            allowed_tiers, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (agent_id) DO UPDATE SET
		   answer_enabled = excluded.answer_enabled,
		   confidence_threshold = excluded.confidence_threshold,
		   reuse_threshold = excluded.reuse_threshold,
		   merge_threshold = excluded.merge_threshold,
		   clarification_enabled = excluded.clarification_enabled,
		   escalation_enabled = excluded.escalation_enabled,
		   escalation_daily_cap = excluded.escalation_daily_cap,
		   escalation_weekly_cap = excluded.escalation_weekly_cap,
		   blocked_topics = excluded.blocked_topics,
		   allowed_tiers = excluded.allowed_tiers,
		   updated_at = excluded.updated_at`,
		config.AgentID.String(), config.AnswerEnabled, config.ConfidenceThreshold,
		config.ReuseThreshold, config.MergeThreshold, config.ClarificationEnabled,
		config.EscalationEnabled, config.EscalationDailyCap, config.EscalationWeeklyCap,
		blockedJSON, tiersJSON, encodeTime(time.Now().UTC()))
	if err != nil {
		return goerr.Wrap(err, "failed to put agent config", goerr.V("id", config.AgentID))
	}
	return nil
}
