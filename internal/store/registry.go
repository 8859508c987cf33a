package store

import (
	"context"
	"database/sql"
	"fmt"
)

// UpsertAgent inserts or replaces an Agent/Role row.
func (s *Store) UpsertAgent(ctx context.Context, a Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, name, description, markdown) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description, markdown = excluded.markdown`,
		a.ID, a.Name, a.Description, a.Markdown,
	)
	if err != nil {
		return fmt.Errorf("store: upsert agent: %w", err)
	}
	return nil
}

// GetAgent returns an Agent by id, or nil if not found.
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	var a Agent
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, markdown FROM agents WHERE id = ?`, id,
	).Scan(&a.ID, &a.Name, &a.Description, &a.Markdown)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get agent %s: %w", id, err)
	}
	return &a, nil
}

// UpsertScript inserts or replaces a Script/Attachment row.
func (s *Store) UpsertScript(ctx context.Context, sc Script) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scripts (id, file_name, file_path, content_type, content_hash) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_name = excluded.file_name, file_path = excluded.file_path,
			content_type = excluded.content_type, content_hash = excluded.content_hash`,
		sc.ID, sc.FileName, sc.FilePath, sc.ContentType, sc.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("store: upsert script: %w", err)
	}
	return nil
}

// GetScript returns a Script by id, or nil if not found.
func (s *Store) GetScript(ctx context.Context, id string) (*Script, error) {
	var sc Script
	err := s.db.QueryRowContext(ctx,
		`SELECT id, file_name, file_path, content_type, content_hash FROM scripts WHERE id = ?`, id,
	).Scan(&sc.ID, &sc.FileName, &sc.FilePath, &sc.ContentType, &sc.ContentHash)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get script %s: %w", id, err)
	}
	return &sc, nil
}

// UpsertMCPServer stores a server's raw JSON launch config under its key.
// config_json is opaque to the store — internal/mcpconfig owns parsing.
func (s *Store) UpsertMCPServer(ctx context.Context, row MCPServerRow) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mcp_servers (server_key, config_json) VALUES (?, ?)
		 ON CONFLICT(server_key) DO UPDATE SET config_json = excluded.config_json`,
		row.ServerKey, row.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("store: upsert mcp server: %w", err)
	}
	return nil
}

// GetMCPServer returns an MCP server config by key, or nil if not found.
func (s *Store) GetMCPServer(ctx context.Context, key string) (*MCPServerRow, error) {
	var row MCPServerRow
	err := s.db.QueryRowContext(ctx,
		`SELECT server_key, config_json FROM mcp_servers WHERE server_key = ?`, key,
	).Scan(&row.ServerKey, &row.ConfigJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get mcp server %s: %w", key, err)
	}
	return &row, nil
}

// ListMCPServers returns every registered MCP server config.
func (s *Store) ListMCPServers(ctx context.Context) ([]MCPServerRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT server_key, config_json FROM mcp_servers ORDER BY server_key ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list mcp servers: %w", err)
	}
	defer rows.Close()

	var out []MCPServerRow
	for rows.Next() {
		var row MCPServerRow
		if err := rows.Scan(&row.ServerKey, &row.ConfigJSON); err != nil {
			return nil, fmt.Errorf("store: scan mcp server: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// UpsertRAGCollection inserts or replaces a RAGCollection row.
func (s *Store) UpsertRAGCollection(ctx context.Context, c RAGCollection) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rag_collections (id, name, vector_backend, health) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, vector_backend = excluded.vector_backend, health = excluded.health`,
		c.ID, c.Name, c.VectorBackend, c.Health,
	)
	if err != nil {
		return fmt.Errorf("store: upsert rag collection: %w", err)
	}
	return nil
}

// GetRAGCollection returns a RAGCollection by id, or nil if not found.
func (s *Store) GetRAGCollection(ctx context.Context, id string) (*RAGCollection, error) {
	var c RAGCollection
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, vector_backend, health FROM rag_collections WHERE id = ?`, id,
	).Scan(&c.ID, &c.Name, &c.VectorBackend, &c.Health)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get rag collection %s: %w", id, err)
	}
	return &c, nil
}

// CreateChatThread inserts a new chat thread.
func (s *Store) CreateChatThread(ctx context.Context, t ChatThread) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_threads (id, context_window_tokens, history_compaction_summary) VALUES (?, ?, ?)`,
		t.ID, t.ContextWindowTokens, t.HistoryCompactionSummary,
	)
	if err != nil {
		return fmt.Errorf("store: create chat thread: %w", err)
	}
	return nil
}

// GetChatThread returns a chat thread by id, or nil if not found.
func (s *Store) GetChatThread(ctx context.Context, id string) (*ChatThread, error) {
	var t ChatThread
	err := s.db.QueryRowContext(ctx,
		`SELECT id, context_window_tokens, history_compaction_summary FROM chat_threads WHERE id = ?`, id,
	).Scan(&t.ID, &t.ContextWindowTokens, &t.HistoryCompactionSummary)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: get chat thread %s: %w", id, err)
	}
	return &t, nil
}

// SetChatThreadCompactionSummary updates a thread's compaction summary
// after the Context Budgeter compacts older history (spec §4.7).
func (s *Store) SetChatThreadCompactionSummary(ctx context.Context, id, summary string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chat_threads SET history_compaction_summary = ? WHERE id = ?`, summary, id,
	)
	if err != nil {
		return fmt.Errorf("store: set chat thread compaction summary: %w", err)
	}
	return nil
}

// AppendChatMessage appends a message at the next sequence number within
// its thread, preserving the insertion-order invariant of spec §5.
func (s *Store) AppendChatMessage(ctx context.Context, m ChatMessage) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		var maxSeq sql.NullInt64
		if err := tx.QueryRow(`SELECT MAX(seq) FROM chat_messages WHERE thread_id = ?`, m.ThreadID).Scan(&maxSeq); err != nil {
			return fmt.Errorf("store: next chat message seq: %w", err)
		}
		seq := 1
		if maxSeq.Valid {
			seq = int(maxSeq.Int64) + 1
		}
		if _, err := tx.Exec(
			`INSERT INTO chat_messages (id, thread_id, seq, role, content) VALUES (?, ?, ?, ?, ?)`,
			m.ID, m.ThreadID, seq, m.Role, m.Content,
		); err != nil {
			return fmt.Errorf("store: append chat message: %w", err)
		}
		return nil
	})
}

// ListChatMessages returns a thread's messages in insertion order.
func (s *Store) ListChatMessages(ctx context.Context, threadID string) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, seq, role, content, created_at FROM chat_messages WHERE thread_id = ? ORDER BY seq ASC`,
		threadID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list chat messages: %w", err)
	}
	defer rows.Close()

	var out []ChatMessage
	for rows.Next() {
		var m ChatMessage
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Seq, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan chat message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetIntegrationSetting upserts a provider-scoped setting value.
func (s *Store) SetIntegrationSetting(ctx context.Context, st IntegrationSetting) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO integration_settings (provider, key, value) VALUES (?, ?, ?)
		 ON CONFLICT(provider, key) DO UPDATE SET value = excluded.value`,
		st.Provider, st.Key, st.Value,
	)
	if err != nil {
		return fmt.Errorf("store: set integration setting: %w", err)
	}
	return nil
}

// GetIntegrationSetting returns a setting value, or "", false if unset.
func (s *Store) GetIntegrationSetting(ctx context.Context, provider, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM integration_settings WHERE provider = ? AND key = ?`, provider, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: get integration setting: %w", err)
	}
	return value, true, nil
}
