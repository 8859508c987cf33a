// Package provider adapts LLM families behind a single Adapter
// interface, generalized from the teacher's dispatch.Backend interface
// shape (internal/dispatch/backend.go) from CLI-process dispatch to
// direct SDK calls.
package provider

import "context"

// Message is one turn in a prompt, mirroring the Request.Messages shape
// the anthropic/openai/bedrock SDKs all converge on.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Request is one node dispatch's prompt, independent of provider family.
type Request struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

// Result is a provider's response to a Request.
type Result struct {
	Content    string
	StopReason string
	Usage      Usage

	// FallbackAttempted/FallbackReason mirror spec §4.3 step 2 and §7's
	// degraded marker: set by Router.Execute when a classified
	// {timeout, provider_unavailable, auth} error triggered a same-
	// provider retry, regardless of whether that retry went on to
	// succeed or fail.
	FallbackAttempted bool
	FallbackReason    string
}

// Usage reports token accounting for a dispatch, persisted onto the
// NodeRun row for cost tracking.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Adapter executes one Request against a single LLM family. Generalized
// from dispatch.Backend: Dispatch+Status+CaptureOutput collapse into a
// single synchronous Execute call since SDK calls, unlike CLI dispatch,
// don't need out-of-band polling.
type Adapter interface {
	// Execute runs req against the provider and returns its Result.
	Execute(ctx context.Context, req Request) (Result, error)

	// Name identifies the adapter for logging/config (e.g. "anthropic").
	Name() string
}
