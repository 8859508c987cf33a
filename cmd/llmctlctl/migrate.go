package main

import (
	"context"
	"fmt"

	"github.com/nodadyoushutup/llmctl-engine/internal/mcpconfig"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// runMigrateFlowchartRuntimeSchema opens the store (which brings the table
// schema up to date itself via CREATE TABLE IF NOT EXISTS on every Open)
// and then runs the one-shot legacy MCP config upgrade: every MCPServer
// row's config_json is re-parsed through mcpconfig.Parse, falling back to
// mcpconfig.ParseLegacyTOML for rows still holding the pre-JSON TOML
// format, then re-rendered and written back under --apply. A row neither
// path can parse is a compatibility gate failure: the command reports it
// and exits 2 without touching any other row.
func runMigrateFlowchartRuntimeSchema(args []string) (int, error) {
	fs := newFlagSet("migrate-flowchart-runtime-schema")
	dbPath := fs.String("db", "llmctl.db", "path to the engine's SQLite database")
	apply := fs.Bool("apply", false, "write upgraded configs back to the store (default dry-run)")
	if err := fs.Parse(args); err != nil {
		return 1, err
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	rows, err := st.ListMCPServers(ctx)
	if err != nil {
		return 1, fmt.Errorf("list mcp servers: %w", err)
	}

	var (
		upgraded []string
		blocked  []string
		pending  []store.MCPServerRow
	)
	for _, row := range rows {
		parsed, parseErr := mcpconfig.Parse(row.ConfigJSON, row.ServerKey)
		if parseErr != nil {
			parsed, parseErr = mcpconfig.ParseLegacyTOML(row.ConfigJSON, row.ServerKey)
		}
		if parseErr != nil {
			blocked = append(blocked, row.ServerKey)
			continue
		}

		rendered, err := mcpconfig.Render(row.ServerKey, parsed)
		if err != nil {
			blocked = append(blocked, row.ServerKey)
			continue
		}
		if rendered == row.ConfigJSON {
			continue
		}

		upgraded = append(upgraded, row.ServerKey)
		pending = append(pending, store.MCPServerRow{ServerKey: row.ServerKey, ConfigJSON: rendered})
	}

	if len(blocked) > 0 {
		printEnvelope(false, map[string]any{
			"upgraded":        upgraded,
			"blocked_servers": blocked,
			"applied":         false,
		}, fmt.Errorf("compatibility_blocked: %d server config(s) could not be parsed", len(blocked)))
		return 2, nil
	}

	if *apply {
		for _, r := range pending {
			if err := st.UpsertMCPServer(ctx, r); err != nil {
				return 1, fmt.Errorf("upsert mcp server %s: %w", r.ServerKey, err)
			}
		}
	}

	printEnvelope(true, map[string]any{
		"upgraded": upgraded,
		"applied":  *apply,
	}, nil)
	return 0, nil
}
