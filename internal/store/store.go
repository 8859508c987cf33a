// Package store provides SQLite-backed persistence for the flowchart
// execution engine: Flowchart/FlowchartNode/FlowchartConnector/
// FlowchartRun/NodeRun/NodeArtifact, the Agent/Script/MCPServer/
// RAGCollection registries, ChatThread/ChatMessage, and the persisted
// idempotent-dispatch registry.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Store wraps a SQLite connection pool.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS flowcharts (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS flowchart_nodes (
	id TEXT PRIMARY KEY,
	flowchart_id TEXT NOT NULL REFERENCES flowcharts(id),
	node_type TEXT NOT NULL,
	ref_id TEXT NOT NULL DEFAULT '',
	config TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS flowchart_connectors (
	id TEXT PRIMARY KEY,
	flowchart_id TEXT NOT NULL REFERENCES flowcharts(id),
	from_node TEXT NOT NULL,
	to_node TEXT NOT NULL,
	connector_id TEXT NOT NULL DEFAULT '',
	condition_text TEXT NOT NULL DEFAULT '',
	iteration_limit INTEGER
);

CREATE TABLE IF NOT EXISTS flowchart_runs (
	id TEXT PRIMARY KEY,
	flowchart_id TEXT NOT NULL REFERENCES flowcharts(id),
	status TEXT NOT NULL DEFAULT 'queued',
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME,
	initiator TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS node_runs (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES flowchart_runs(id),
	node_id TEXT NOT NULL,
	execution_index INTEGER NOT NULL,
	status TEXT NOT NULL DEFAULT 'queued',
	stdout TEXT NOT NULL DEFAULT '',
	stderr TEXT NOT NULL DEFAULT '',
	exit_code INTEGER NOT NULL DEFAULT 0,
	started_at DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at DATETIME,
	error_code TEXT NOT NULL DEFAULT '',
	error_message TEXT NOT NULL DEFAULT '',
	error_retryable BOOLEAN NOT NULL DEFAULT 0,
	provider_metadata TEXT NOT NULL DEFAULT '{}',
	routing_state TEXT NOT NULL DEFAULT '{}',
	degraded BOOLEAN NOT NULL DEFAULT 0,
	degraded_reason TEXT NOT NULL DEFAULT '',
	cancelled_during_flight BOOLEAN NOT NULL DEFAULT 0,
	UNIQUE(run_id, node_id, execution_index)
);

CREATE TABLE IF NOT EXISTS node_artifacts (
	id TEXT PRIMARY KEY,
	node_run_id TEXT NOT NULL REFERENCES node_runs(id),
	artifact_type TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	idempotency_key TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS agents (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	markdown TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS scripts (
	id TEXT PRIMARY KEY,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	content_type TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS mcp_servers (
	server_key TEXT PRIMARY KEY,
	config_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS rag_collections (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	vector_backend TEXT NOT NULL DEFAULT '',
	health TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chat_threads (
	id TEXT PRIMARY KEY,
	context_window_tokens INTEGER NOT NULL DEFAULT 16000,
	history_compaction_summary TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	thread_id TEXT NOT NULL REFERENCES chat_threads(id),
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(thread_id, seq)
);

CREATE TABLE IF NOT EXISTS integration_settings (
	provider TEXT NOT NULL,
	key TEXT NOT NULL,
	value TEXT NOT NULL DEFAULT '',
	PRIMARY KEY(provider, key)
);

CREATE TABLE IF NOT EXISTS dispatch_registry (
	execution_id TEXT NOT NULL,
	dispatch_id TEXT NOT NULL,
	first_seen_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY(execution_id, dispatch_id)
);

CREATE INDEX IF NOT EXISTS idx_node_runs_run ON node_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_node_artifacts_node_run ON node_artifacts(node_run_id);
CREATE INDEX IF NOT EXISTS idx_chat_messages_thread ON chat_messages(thread_id);
`

// Open creates (if needed) and opens the SQLite database at dbPath,
// enabling WAL mode and a busy timeout so concurrent scheduler workers
// don't trip SQLITE_BUSY under normal load.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying *sql.DB for callers that need raw access
// (migration tooling, diagnostics).
func (s *Store) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside one transaction, committing on a nil return and
// rolling back otherwise. This is the store's execute_atomic: every
// multi-row write surrounding a NodeRun transition (inserting the
// NodeRun, its NodeArtifacts, and updating FlowchartRun aggregates) must
// go through this so a crash never leaves a run half-written.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: tx failed: %w (rollback also failed: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tx: %w", err)
	}
	return nil
}
