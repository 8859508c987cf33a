package instructions

import "testing"

func TestCompileIsDeterministic(t *testing.T) {
	input := Input{
		AgentMarkdown: map[string]string{
			"reviewer": "# Reviewer\n\nReview the diff.",
			"planner":  "# Planner\n\nWrite a plan.",
		},
		Scripts: []ScriptRef{
			{FileName: "deploy.sh", Content: "#!/bin/sh\necho deploy\n"},
		},
		MCPServerConfigs: map[string]string{"filesystem": `{"command":"mcp-fs"}`},
	}

	a, err := Compile(input)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := Compile(input)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a.ManifestHash != b.ManifestHash {
		t.Fatalf("expected identical input to produce identical manifest_hash, got %q vs %q", a.ManifestHash, b.ManifestHash)
	}
	if a.Artifacts[InstructionsFilename] != b.Artifacts[InstructionsFilename] {
		t.Fatal("expected identical instructions markdown")
	}
}

func TestCompileOrdersAgentsAlphabetically(t *testing.T) {
	input := Input{
		AgentMarkdown: map[string]string{
			"zeta":  "content z",
			"alpha": "content a",
		},
	}
	compiled, err := Compile(input)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	md := compiled.Artifacts[InstructionsFilename]
	alphaIdx := indexOfSubstring(md, "## alpha")
	zetaIdx := indexOfSubstring(md, "## zeta")
	if alphaIdx < 0 || zetaIdx < 0 || alphaIdx > zetaIdx {
		t.Fatalf("expected alpha section before zeta section, got:\n%s", md)
	}
}

func TestCompileRejectsScriptNameCollidingWithReservedArtifact(t *testing.T) {
	input := Input{
		Scripts: []ScriptRef{{FileName: ManifestFilename, Content: "x"}},
	}
	if _, err := Compile(input); err == nil {
		t.Fatal("expected collision with manifest.json to be rejected")
	}
}

func TestCompileManifestRecordsFileHashes(t *testing.T) {
	input := Input{AgentMarkdown: map[string]string{"a": "hello"}}
	compiled, err := Compile(input)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	files, ok := compiled.Manifest["files"].(map[string]string)
	if !ok {
		t.Fatalf("expected manifest files map, got %T", compiled.Manifest["files"])
	}
	if _, ok := files[InstructionsFilename]; !ok {
		t.Fatalf("expected manifest to record a hash for %s", InstructionsFilename)
	}
}

func indexOfSubstring(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
