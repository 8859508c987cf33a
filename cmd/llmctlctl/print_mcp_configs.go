package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nodadyoushutup/llmctl-engine/internal/mcpconfig"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// runPrintMCPConfigs mirrors scripts/print_mcp_configs.py: list every
// MCPServer row (or just --server keys if given), parse each one's
// stored config, and print a {server_key: parsed_config} map. A single
// server's parse failure is recorded as {"error": "..."} for that key
// rather than aborting the whole command, matching the original
// script's per-row try/except.
func runPrintMCPConfigs(args []string) (int, error) {
	fs := newFlagSet("print-mcp-configs")
	dbPath := fs.String("db", "llmctl.db", "path to the engine's SQLite database")
	var servers stringSlice
	fs.Var(&servers, "server", "limit to a specific server key (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1, err
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	rows, err := st.ListMCPServers(context.Background())
	if err != nil {
		return 1, fmt.Errorf("list mcp servers: %w", err)
	}

	wanted := map[string]bool{}
	for _, s := range servers {
		wanted[s] = true
	}

	payload := map[string]any{}
	for _, row := range rows {
		if len(wanted) > 0 && !wanted[row.ServerKey] {
			continue
		}
		parsed, err := mcpconfig.Parse(row.ConfigJSON, row.ServerKey)
		if err != nil {
			payload[row.ServerKey] = map[string]any{"error": err.Error()}
			continue
		}
		payload[row.ServerKey] = parsed
	}

	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return 1, fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(b))
	return 0, nil
}

// stringSlice implements flag.Value for a repeatable string flag.
type stringSlice []string

func (s *stringSlice) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringSlice) Set(v string) error {
	*s = append(*s, v)
	return nil
}
