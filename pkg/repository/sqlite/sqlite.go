package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/doppel-lab/keryx/pkg/domain/interfaces"
)

// SQLite is the single-node durable repository backend
type SQLite struct {
	db           *sql.DB
	agent        *agentRepository
	knowledge    *knowledgeRepository
	memoryStore  *memoryRepository
	conversation *conversationRepository
	summary      *summaryRepository
	canonical    *canonicalRepository
	grant        *grantRepository
	ledger       *ledgerRepository
	escalation   *escalationRepository
	quality      *qualityRepository
}

var _ interfaces.Repository = &SQLite{}

// New opens or creates a SQLite database at the given path
func New(dbPath string) (*SQLite, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, goerr.Wrap(err, "failed to create db dir", goerr.V("path", dbPath))
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open db", goerr.V("path", dbPath))
	}

	s := &SQLite{
		db:           db,
		agent:        &agentRepository{db: db},
		knowledge:    &knowledgeRepository{db: db},
		memoryStore:  &memoryRepository{db: db},
		conversation: &conversationRepository{db: db},
		summary:      &summaryRepository{db: db},
		canonical:    &canonicalRepository{db: db},
		grant:        &grantRepository{db: db},
		ledger:       &ledgerRepository{db: db},
		escalation:   &escalationRepository{db: db},
		quality:      &qualityRepository{db: db},
	}

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, goerr.Wrap(err, "failed to migrate schema", goerr.V("path", dbPath))
	}

	return s, nil
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id         TEXT PRIMARY KEY,
		owner_id   TEXT NOT NULL,
		name       TEXT NOT NULL,
		persona    TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agent_configs (
		agent_id              TEXT PRIMARY KEY,
		answer_enabled        INTEGER NOT NULL,
		confidence_threshold  INTEGER NOT NULL,
		reuse_threshold       REAL NOT NULL,
		merge_threshold       REAL NOT NULL,
		clarification_enabled INTEGER NOT NULL,
		escalation_enabled    INTEGER NOT NULL,
		escalation_daily_cap  INTEGER NOT NULL,
		escalation_weekly_cap INTEGER NOT NULL,
		blocked_topics        TEXT,
		allowed_tiers         TEXT,
		updated_at            INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id            TEXT PRIMARY KEY,
		agent_id      TEXT NOT NULL,
		text          TEXT NOT NULL,
		embedding     BLOB,
		layer         TEXT NOT NULL,
		source        TEXT NOT NULL DEFAULT '',
		superseded_by TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent_layer ON knowledge_chunks(agent_id, layer);
	CREATE INDEX IF NOT EXISTS idx_chunks_agent_source ON knowledge_chunks(agent_id, source);

	CREATE TABLE IF NOT EXISTS memories (
		id                TEXT PRIMARY KEY,
		agent_id          TEXT NOT NULL,
		kind              TEXT NOT NULL,
		content           TEXT NOT NULL,
		confidence        INTEGER NOT NULL,
		layer             TEXT NOT NULL,
		source_message_id TEXT NOT NULL DEFAULT '',
		embedding         BLOB,
		superseded_by     TEXT NOT NULL DEFAULT '',
		created_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_memories_agent ON memories(agent_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id              TEXT PRIMARY KEY,
		agent_id        TEXT NOT NULL,
		viewer_id       TEXT NOT NULL,
		viewer_tier     TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		last_message_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_agent ON conversations(agent_id, last_message_at DESC);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id),
		seq             INTEGER NOT NULL,
		role            TEXT NOT NULL,
		text            TEXT NOT NULL,
		created_at      INTEGER NOT NULL,
		UNIQUE (conversation_id, seq)
	);

	CREATE TABLE IF NOT EXISTS summaries (
		id                TEXT PRIMARY KEY,
		conversation_id   TEXT NOT NULL,
		content           TEXT NOT NULL,
		messages_included INTEGER NOT NULL,
		from_seq          INTEGER NOT NULL,
		to_seq            INTEGER NOT NULL,
		created_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_summaries_conversation ON summaries(conversation_id, from_seq);

	CREATE TABLE IF NOT EXISTS canonical_answers (
		id             TEXT PRIMARY KEY,
		agent_id       TEXT NOT NULL,
		question       TEXT NOT NULL,
		embedding      BLOB,
		answer         TEXT NOT NULL,
		confidence     INTEGER NOT NULL,
		reuse_count    INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL,
		last_reused_at INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_canonical_agent ON canonical_answers(agent_id);

	CREATE TABLE IF NOT EXISTS access_grants (
		agent_id   TEXT NOT NULL,
		viewer_id  TEXT NOT NULL,
		layer      TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (agent_id, viewer_id)
	);

	CREATE TABLE IF NOT EXISTS escalation_ledger (
		agent_id   TEXT NOT NULL,
		bucket     TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (agent_id, bucket)
	);

	CREATE TABLE IF NOT EXISTS escalations (
		id              TEXT PRIMARY KEY,
		agent_id        TEXT NOT NULL,
		conversation_id TEXT NOT NULL,
		message_id      TEXT NOT NULL,
		question        TEXT NOT NULL,
		status          TEXT NOT NULL,
		answer          TEXT NOT NULL DEFAULT '',
		created_at      INTEGER NOT NULL,
		answered_at     INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_escalations_agent_status ON escalations(agent_id, status, created_at DESC);

	CREATE TABLE IF NOT EXISTS quality_records (
		message_id      TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		agent_id        TEXT NOT NULL,
		outcome         TEXT NOT NULL,
		confidence      INTEGER NOT NULL,
		novelty         INTEGER NOT NULL,
		relevance       INTEGER NOT NULL DEFAULT 0,
		engagement      INTEGER NOT NULL DEFAULT 0,
		grounding       INTEGER NOT NULL DEFAULT 0,
		issues          TEXT,
		created_at      INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_quality_agent_created ON quality_records(agent_id, created_at DESC);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLite) Agent() interfaces.AgentRepository {
	return s.agent
}

func (s *SQLite) Knowledge() interfaces.KnowledgeRepository {
	return s.knowledge
}

func (s *SQLite) Memory() interfaces.MemoryRepository {
	return s.memoryStore
}

func (s *SQLite) Conversation() interfaces.ConversationRepository {
	return s.conversation
}

func (s *SQLite) Summary() interfaces.SummaryRepository {
	return s.summary
}

func (s *SQLite) Canonical() interfaces.CanonicalRepository {
	return s.canonical
}

func (s *SQLite) Grant() interfaces.GrantRepository {
	return s.grant
}

func (s *SQLite) Ledger() interfaces.LedgerRepository {
	return s.ledger
}

func (s *SQLite) Escalation() interfaces.EscalationRepository {
	return s.escalation
}

func (s *SQLite) Quality() interfaces.QualityRepository {
	return s.quality
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
