package instructions

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMaterializeWritesArtifactsAndManifest(t *testing.T) {
	workspace := t.TempDir()
	compiled, err := Compile(Input{AgentMarkdown: map[string]string{"reviewer": "review the diff"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	got, err := Materialize(workspace, compiled)
	if err != nil {
		t.Fatalf("materialize: %v", err)
	}

	instructionsPath := filepath.Join(workspace, ".llmctl", "instructions", InstructionsFilename)
	b, err := os.ReadFile(instructionsPath)
	if err != nil {
		t.Fatalf("read instructions file: %v", err)
	}
	if string(b) != compiled.Artifacts[InstructionsFilename] {
		t.Fatal("materialized instructions content does not match compiled artifact")
	}

	manifestPath := filepath.Join(workspace, ".llmctl", "instructions", ManifestFilename)
	if _, err := os.Stat(manifestPath); err != nil {
		t.Fatalf("expected manifest file to exist: %v", err)
	}

	if got.ManifestHash != compiled.ManifestHash {
		t.Fatal("expected materialized manifest hash to match compiled hash")
	}
	if len(got.MaterializedPaths) != len(compiled.Artifacts)+1 {
		t.Fatalf("expected %d materialized paths, got %d", len(compiled.Artifacts)+1, len(got.MaterializedPaths))
	}
}

func TestMaterializeReplacesExistingPackage(t *testing.T) {
	workspace := t.TempDir()
	stalePath := filepath.Join(workspace, ".llmctl", "instructions", "stale.txt")
	if err := os.MkdirAll(filepath.Dir(stalePath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(stalePath, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	compiled, err := Compile(Input{AgentMarkdown: map[string]string{"a": "content"}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if _, err := Materialize(workspace, compiled); err != nil {
		t.Fatalf("materialize: %v", err)
	}

	if _, err := os.Stat(stalePath); !os.IsNotExist(err) {
		t.Fatal("expected stale file to be removed when the package is re-materialized")
	}
}
