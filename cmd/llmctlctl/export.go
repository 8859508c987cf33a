package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// skillPackage is the bundle format exported/imported by this pair of
// commands: an Agent, the Scripts it uses, and the MCP server configs it
// depends on, addressed by the exact ids/keys the caller names on the
// command line (the store has no Agent-Script-MCPServer join table, so
// the caller enumerates the bundle's membership explicitly).
type skillPackage struct {
	Agent        store.Agent          `json:"agent"`
	Scripts      []store.Script       `json:"scripts"`
	MCPServers   []store.MCPServerRow `json:"mcp_servers"`
	ManifestHash string               `json:"manifest_hash"`
}

// runExportSkillPackage mirrors scripts/export_skill_package.py: resolve
// an Agent plus the Scripts and MCP servers named on the command line,
// hash the manifest the way internal/instructions/compile.go hashes its
// own manifest, and write the bundle to --output as JSON.
func runExportSkillPackage(args []string) (int, error) {
	fs := newFlagSet("export-skill-package")
	dbPath := fs.String("db", "llmctl.db", "path to the engine's SQLite database")
	agentID := fs.String("agent-id", "", "id of the Agent to export (required)")
	output := fs.String("output", "", "path to write the skill package bundle to (required)")
	var scriptIDs, mcpServerKeys stringSlice
	fs.Var(&scriptIDs, "script-id", "id of a Script bound to this skill (repeatable)")
	fs.Var(&mcpServerKeys, "mcp-server", "server_key of an MCP server bound to this skill (repeatable)")
	if err := fs.Parse(args); err != nil {
		return 1, err
	}
	if *agentID == "" {
		return 1, fmt.Errorf("validation_error: --agent-id is required")
	}
	if *output == "" {
		return 1, fmt.Errorf("validation_error: --output is required")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	agent, err := st.GetAgent(ctx, *agentID)
	if err != nil {
		return 1, fmt.Errorf("validation_error: agent %s: %w", *agentID, err)
	}
	if agent == nil {
		return 1, fmt.Errorf("validation_error: agent %s not found", *agentID)
	}

	scripts := make([]store.Script, 0, len(scriptIDs))
	for _, id := range scriptIDs {
		sc, err := st.GetScript(ctx, id)
		if err != nil {
			return 1, fmt.Errorf("validation_error: script %s: %w", id, err)
		}
		if sc == nil {
			return 1, fmt.Errorf("validation_error: script %s not found", id)
		}
		scripts = append(scripts, *sc)
	}

	servers := make([]store.MCPServerRow, 0, len(mcpServerKeys))
	for _, key := range mcpServerKeys {
		row, err := st.GetMCPServer(ctx, key)
		if err != nil {
			return 1, fmt.Errorf("validation_error: mcp server %s: %w", key, err)
		}
		if row == nil {
			return 1, fmt.Errorf("validation_error: mcp server %s not found", key)
		}
		servers = append(servers, *row)
	}

	pkg := skillPackage{Agent: *agent, Scripts: scripts, MCPServers: servers}
	hash, err := manifestHash(pkg)
	if err != nil {
		return 1, fmt.Errorf("hash manifest: %w", err)
	}
	pkg.ManifestHash = hash

	b, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return 1, fmt.Errorf("marshal package: %w", err)
	}
	if err := os.WriteFile(*output, b, 0o644); err != nil {
		return 1, fmt.Errorf("write %s: %w", *output, err)
	}

	printEnvelope(true, map[string]any{
		"output":        *output,
		"skill":         agent.Name,
		"manifest_hash": hash,
		"file_count":    len(scripts),
	}, nil)
	return 0, nil
}

// manifestHash mirrors instructions.hashManifest: marshal to JSON (whose
// encoder sorts map keys, giving a deterministic byte sequence) and sha256
// the result.
func manifestHash(pkg skillPackage) (string, error) {
	pkg.ManifestHash = ""
	b, err := json.Marshal(pkg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
