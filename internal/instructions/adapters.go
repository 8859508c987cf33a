package instructions

import (
	"fmt"
	"regexp"
	"strings"
)

// frontierInstructionFilenames fixes the markdown filename each frontier
// provider's CLI expects at the workspace root, verbatim from the
// original instruction-adapter naming table.
var frontierInstructionFilenames = map[string]string{
	"codex":  "AGENTS.md",
	"gemini": "GEMINI.md",
	"claude": "CLAUDE.md",
}

// NonFrontierDefaultFilename is used when a non-frontier provider has no
// configured instruction filename.
const NonFrontierDefaultFilename = "AGENT.md"

var markdownFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// IsFrontierProvider reports whether provider has a fixed instruction
// filename.
func IsFrontierProvider(provider string) bool {
	_, ok := frontierInstructionFilenames[strings.ToLower(strings.TrimSpace(provider))]
	return ok
}

// ValidateAgentMarkdownFilename checks a configured non-frontier
// instruction filename against the same rule config.Validate enforces at
// load time: no leading dot, a .md suffix, and only
// [A-Za-z0-9._-] characters.
func ValidateAgentMarkdownFilename(value string) (string, error) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return "", fmt.Errorf("instructions: markdown filename is required")
	}
	if strings.HasPrefix(cleaned, ".") {
		return "", fmt.Errorf("instructions: markdown filename cannot start with '.'")
	}
	if !strings.HasSuffix(cleaned, ".md") {
		return "", fmt.Errorf("instructions: markdown filename must end with '.md'")
	}
	if !markdownFilenamePattern.MatchString(cleaned) {
		return "", fmt.Errorf("instructions: markdown filename may only contain A-Z, a-z, 0-9, '.', '_', and '-'")
	}
	return cleaned, nil
}

// ResolveAgentMarkdownFilename returns the instruction markdown filename
// to materialize at the workspace root for provider: the fixed frontier
// name when one applies, otherwise the configured non-frontier filename
// (validated) or NonFrontierDefaultFilename.
func ResolveAgentMarkdownFilename(provider, configuredFilename string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if fixed, ok := frontierInstructionFilenames[normalized]; ok {
		return fixed, nil
	}
	candidate := strings.TrimSpace(configuredFilename)
	if candidate == "" {
		return NonFrontierDefaultFilename, nil
	}
	return ValidateAgentMarkdownFilename(candidate)
}
