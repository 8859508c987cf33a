package provider

import "strings"

// forbiddenArgvHeads are the frontier CLI binaries the engine must never
// shell out to (spec §6 guardrail): dispatch always goes through an SDK
// Adapter, never a subprocess wrapping one of these tools, which is what
// distinguishes this engine from the teacher's headless-CLI dispatch
// backend (internal/dispatch/headless.go).
var forbiddenArgvHeads = map[string]bool{
	"codex":  true,
	"gemini": true,
	"claude": true,
}

// ErrForbiddenArgvHead is returned by CheckArgv when argv shells out to a
// forbidden frontier CLI binary.
type ErrForbiddenArgvHead struct {
	Head string
}

func (e *ErrForbiddenArgvHead) Error() string {
	return "provider: refusing to shell out to forbidden binary " + e.Head
}

// CheckArgv validates that argv does not shell out to a forbidden
// frontier CLI binary, by basename, ignoring any directory prefix. Every
// code path that might construct an exec.Cmd for a provider call must
// run its argv through this check first.
func CheckArgv(argv []string) error {
	if len(argv) == 0 {
		return nil
	}
	head := argv[0]
	if idx := strings.LastIndexByte(head, '/'); idx >= 0 {
		head = head[idx+1:]
	}
	head = strings.TrimSuffix(head, ".exe")
	if forbiddenArgvHeads[strings.ToLower(head)] {
		return &ErrForbiddenArgvHead{Head: head}
	}
	return nil
}
