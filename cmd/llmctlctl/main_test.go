package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "llmctl.db")
}

func seedAgent(t *testing.T, dbPath string) store.Agent {
	t.Helper()
	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	agent := store.Agent{ID: "agent-1", Name: "reviewer", Description: "reviews PRs", Markdown: "# Reviewer"}
	if err := st.UpsertAgent(context.Background(), agent); err != nil {
		t.Fatalf("upsert agent: %v", err)
	}
	script := store.Script{ID: "script-1", FileName: "lint.sh", FilePath: "scripts/lint.sh", ContentType: "text/x-sh", ContentHash: "abc123"}
	if err := st.UpsertScript(context.Background(), script); err != nil {
		t.Fatalf("upsert script: %v", err)
	}
	row := store.MCPServerRow{ServerKey: "filesystem", ConfigJSON: `{"command":"npx","args":["mcp-filesystem"]}`}
	if err := st.UpsertMCPServer(context.Background(), row); err != nil {
		t.Fatalf("upsert mcp server: %v", err)
	}
	return agent
}

func TestExportSkillPackageRequiresAgentID(t *testing.T) {
	dbPath := tempDBPath(t)
	code, err := runExportSkillPackage([]string{"--db", dbPath, "--output", filepath.Join(t.TempDir(), "out.json")})
	if code != 1 || err == nil {
		t.Fatalf("expected exit 1 with error, got code=%d err=%v", code, err)
	}
}

func TestExportThenImportSkillPackageRoundTrips(t *testing.T) {
	dbPath := tempDBPath(t)
	seedAgent(t, dbPath)

	bundlePath := filepath.Join(t.TempDir(), "bundle.json")
	code, err := runExportSkillPackage([]string{
		"--db", dbPath,
		"--agent-id", "agent-1",
		"--script-id", "script-1",
		"--mcp-server", "filesystem",
		"--output", bundlePath,
	})
	if err != nil || code != 0 {
		t.Fatalf("export failed: code=%d err=%v", code, err)
	}

	raw, err := os.ReadFile(bundlePath)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	var pkg skillPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	if pkg.Agent.ID != "agent-1" || len(pkg.Scripts) != 1 || len(pkg.MCPServers) != 1 {
		t.Fatalf("unexpected bundle contents: %+v", pkg)
	}
	if pkg.ManifestHash == "" {
		t.Fatal("expected a non-empty manifest_hash")
	}

	freshDB := tempDBPath(t)
	code, err = runImportSkillPackage([]string{"--db", freshDB, "--bundle", bundlePath, "--apply"})
	if err != nil || code != 0 {
		t.Fatalf("import failed: code=%d err=%v", code, err)
	}

	st, err := store.Open(freshDB)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	got, err := st.GetAgent(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil || got.Name != "reviewer" {
		t.Fatalf("expected imported agent to be persisted, got %+v", got)
	}
}

func TestImportSkillPackageRejectsTamperedManifest(t *testing.T) {
	dbPath := tempDBPath(t)
	seedAgent(t, dbPath)

	bundlePath := filepath.Join(t.TempDir(), "bundle.json")
	if _, err := runExportSkillPackage([]string{
		"--db", dbPath,
		"--agent-id", "agent-1",
		"--output", bundlePath,
	}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	raw, err := os.ReadFile(bundlePath)
	if err != nil {
		t.Fatalf("read bundle: %v", err)
	}
	var pkg skillPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		t.Fatalf("unmarshal bundle: %v", err)
	}
	pkg.Agent.Markdown = "# Tampered"
	tampered, err := json.Marshal(pkg)
	if err != nil {
		t.Fatalf("marshal tampered bundle: %v", err)
	}
	if err := os.WriteFile(bundlePath, tampered, 0o644); err != nil {
		t.Fatalf("write tampered bundle: %v", err)
	}

	code, err := runImportSkillPackage([]string{"--db", tempDBPath(t), "--bundle", bundlePath, "--apply"})
	if err == nil || code != 1 {
		t.Fatalf("expected manifest mismatch to fail import, got code=%d err=%v", code, err)
	}
}

func TestImportSkillPackageDryRunDoesNotWrite(t *testing.T) {
	dbPath := tempDBPath(t)
	seedAgent(t, dbPath)

	bundlePath := filepath.Join(t.TempDir(), "bundle.json")
	if _, err := runExportSkillPackage([]string{
		"--db", dbPath,
		"--agent-id", "agent-1",
		"--output", bundlePath,
	}); err != nil {
		t.Fatalf("export failed: %v", err)
	}

	freshDB := tempDBPath(t)
	code, err := runImportSkillPackage([]string{"--db", freshDB, "--bundle", bundlePath})
	if err != nil || code != 0 {
		t.Fatalf("dry-run import failed: code=%d err=%v", code, err)
	}

	st, err := store.Open(freshDB)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()
	got, err := st.GetAgent(context.Background(), "agent-1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got != nil {
		t.Fatal("expected dry-run import to leave the store untouched")
	}
}

func TestPrintMCPConfigsFiltersByServer(t *testing.T) {
	dbPath := tempDBPath(t)
	seedAgent(t, dbPath)

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := st.UpsertMCPServer(context.Background(), store.MCPServerRow{ServerKey: "broken", ConfigJSON: "not json"}); err != nil {
		t.Fatalf("seed broken server: %v", err)
	}
	st.Close()

	code, err := runPrintMCPConfigs([]string{"--db", dbPath, "--server", "filesystem"})
	if err != nil || code != 0 {
		t.Fatalf("expected success, got code=%d err=%v", code, err)
	}
}

func TestMigrateFlowchartRuntimeSchemaDryRunByDefault(t *testing.T) {
	dbPath := tempDBPath(t)
	seedAgent(t, dbPath)

	code, err := runMigrateFlowchartRuntimeSchema([]string{"--db", dbPath})
	if err != nil || code != 0 {
		t.Fatalf("expected success, got code=%d err=%v", code, err)
	}
}
