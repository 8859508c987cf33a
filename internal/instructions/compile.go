// Package instructions compiles the agent roles, scripts, and MCP server
// configs bound to a flowchart node into a deterministic, content-hashed
// artifact bundle, then materializes that bundle onto a node's workspace
// directory for the provider adapter to read.
package instructions

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// InstructionsFilename is the compiled markdown artifact every package
// carries.
const InstructionsFilename = "INSTRUCTIONS.md"

// ManifestFilename is the content-hash manifest every package carries.
const ManifestFilename = "manifest.json"

// ScriptRef is one attachment bound into the package, keyed by the file
// name it is written under.
type ScriptRef struct {
	FileName string
	Content  string
}

// Input is everything Compile needs to build a package for one node's
// dispatch.
type Input struct {
	// AgentMarkdown maps agent name to its role markdown, per agent bound
	// to the node.
	AgentMarkdown map[string]string
	Scripts       []ScriptRef
	// MCPServerConfigs maps server_key to its rendered JSON config, used
	// only to record which servers the package expects at dispatch time.
	MCPServerConfigs map[string]string
}

// CompiledPackage is the deterministic output of Compile: a set of named
// artifacts (always including InstructionsFilename), a manifest recording
// each artifact's content hash, and the manifest's own hash.
type CompiledPackage struct {
	Artifacts    map[string]string
	Manifest     map[string]any
	ManifestHash string
}

// Compile builds a CompiledPackage from Input. Compilation is pure and
// deterministic: the same Input always produces the same artifacts and
// manifest_hash, regardless of map iteration order.
func Compile(input Input) (CompiledPackage, error) {
	artifacts := make(map[string]string, len(input.Scripts)+1)
	artifacts[InstructionsFilename] = renderInstructionsMarkdown(input.AgentMarkdown)

	for _, s := range input.Scripts {
		name := strings.TrimSpace(s.FileName)
		if name == "" {
			return CompiledPackage{}, fmt.Errorf("instructions: script is missing a file name")
		}
		if name == InstructionsFilename || name == ManifestFilename {
			return CompiledPackage{}, fmt.Errorf("instructions: script file name %q collides with a reserved artifact", name)
		}
		artifacts[name] = s.Content
	}

	files := make(map[string]string, len(artifacts))
	for name, content := range artifacts {
		files[name] = contentHash(content)
	}

	manifest := map[string]any{
		"files":           files,
		"agent_names":     sortedKeys(input.AgentMarkdown),
		"mcp_server_keys": sortedKeys(input.MCPServerConfigs),
	}

	manifestHash, err := hashManifest(manifest)
	if err != nil {
		return CompiledPackage{}, err
	}
	manifest["manifest_hash"] = manifestHash

	return CompiledPackage{
		Artifacts:    artifacts,
		Manifest:     manifest,
		ManifestHash: manifestHash,
	}, nil
}

func renderInstructionsMarkdown(agentMarkdown map[string]string) string {
	names := sortedKeys(agentMarkdown)
	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "## %s\n\n", name)
		b.WriteString(strings.TrimRight(agentMarkdown[name], "\n"))
		b.WriteString("\n")
	}
	return b.String()
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func hashManifest(manifest map[string]any) (string, error) {
	// encoding/json sorts map[string]any keys alphabetically, giving a
	// deterministic byte sequence to hash regardless of how the manifest
	// map was built.
	b, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("instructions: marshal manifest: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
