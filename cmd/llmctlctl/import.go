package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// runImportSkillPackage mirrors scripts/import_skill_package.py: read a
// bundle written by export-skill-package, validate its manifest_hash
// still matches its contents, and, under --apply, upsert the Agent plus
// its Scripts and MCP servers. Without --apply this only validates and
// reports what would be written (dry-run), matching the original
// script's default.
func runImportSkillPackage(args []string) (int, error) {
	fs := newFlagSet("import-skill-package")
	dbPath := fs.String("db", "llmctl.db", "path to the engine's SQLite database")
	bundlePath := fs.String("bundle", "", "path to a skill package bundle written by export-skill-package (required)")
	apply := fs.Bool("apply", false, "write the bundle's contents to the store (default dry-run)")
	if err := fs.Parse(args); err != nil {
		return 1, err
	}
	if *bundlePath == "" {
		return 1, fmt.Errorf("validation_error: --bundle is required")
	}

	raw, err := os.ReadFile(*bundlePath)
	if err != nil {
		return 1, fmt.Errorf("read %s: %w", *bundlePath, err)
	}

	var pkg skillPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return 1, fmt.Errorf("validation_error: parse bundle: %w", err)
	}

	wantHash, err := manifestHash(pkg)
	if err != nil {
		return 1, fmt.Errorf("hash manifest: %w", err)
	}
	if pkg.ManifestHash != wantHash {
		return 1, fmt.Errorf("validation_error: manifest_hash mismatch, bundle is corrupt or was hand-edited")
	}
	if pkg.Agent.ID == "" {
		return 1, fmt.Errorf("validation_error: bundle carries no agent")
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		return 1, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()
	if *apply {
		if err := st.UpsertAgent(ctx, pkg.Agent); err != nil {
			return 1, fmt.Errorf("upsert agent: %w", err)
		}
		for _, sc := range pkg.Scripts {
			if err := st.UpsertScript(ctx, sc); err != nil {
				return 1, fmt.Errorf("upsert script %s: %w", sc.ID, err)
			}
		}
		for _, row := range pkg.MCPServers {
			if err := st.UpsertMCPServer(ctx, row); err != nil {
				return 1, fmt.Errorf("upsert mcp server %s: %w", row.ServerKey, err)
			}
		}
	}

	printEnvelope(true, map[string]any{
		"applied":    *apply,
		"skill_id":   pkg.Agent.ID,
		"skill_name": pkg.Agent.Name,
		"file_count": len(pkg.Scripts),
	}, nil)
	return 0, nil
}
