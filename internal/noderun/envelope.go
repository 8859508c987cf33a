// Package noderun is the per-node worker: it builds the prompt envelope,
// materializes instructions, invokes a Provider Adapter, and persists the
// resulting NodeRun and NodeArtifacts in one store transaction. Grounded
// on original_source's core/prompt_envelope.py (envelope shape) and
// services/execution/idempotency.py (dispatch dedupe).
package noderun

import (
	"encoding/json"
	"strings"
)

// EnvelopeTopLevelKeys are the five fixed keys of a prompt envelope,
// ported from prompt_envelope.py's PROMPT_ENVELOPE_TOP_LEVEL_KEYS.
var EnvelopeTopLevelKeys = [5]string{
	"system_contract",
	"agent_profile",
	"task_context",
	"user_request",
	"output_contract",
}

// Envelope is the five-key prompt envelope sent to a Provider Adapter.
type Envelope struct {
	SystemContract map[string]any `json:"system_contract"`
	AgentProfile   map[string]any `json:"agent_profile"`
	TaskContext    map[string]any `json:"task_context"`
	UserRequest    string         `json:"user_request"`
	OutputContract map[string]any `json:"output_contract"`
}

// BuildOptions carries the inputs BuildEnvelope folds together, mirroring
// build_prompt_envelope's keyword arguments.
type BuildOptions struct {
	UserRequest    string
	SystemContract map[string]any
	AgentProfile   map[string]any
	TaskContext    map[string]any
	OutputContract map[string]any
	// SourcePayload is an existing envelope (re-dispatch) or an arbitrary
	// JSON payload (first dispatch from a non-envelope trigger) to fold
	// in before the explicit fields above override it.
	SourcePayload map[string]any
}

// IsEnvelope reports whether payload already has the shape of a prompt
// envelope (all five top-level keys present). Mirrors
// prompt_envelope.py's is_prompt_envelope.
func IsEnvelope(payload map[string]any) bool {
	if payload == nil {
		return false
	}
	for _, key := range EnvelopeTopLevelKeys {
		if _, ok := payload[key]; !ok {
			return false
		}
	}
	return true
}

// ExtractUserRequest pulls a user-facing request string out of an
// arbitrary payload, checking "user_request" then "prompt". Mirrors
// prompt_envelope.py's extract_user_request.
func ExtractUserRequest(payload map[string]any) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload["user_request"].(string); ok {
		return v
	}
	if v, ok := payload["prompt"].(string); ok {
		return v
	}
	return ""
}

// BuildEnvelope folds opts.SourcePayload (an existing envelope's sections,
// or an arbitrary JSON payload nested under task_context.input_payload)
// together with the explicit override fields, producing a well-formed
// five-key Envelope. Mirrors prompt_envelope.py's build_prompt_envelope.
func BuildEnvelope(opts BuildOptions) Envelope {
	env := Envelope{
		SystemContract: map[string]any{},
		AgentProfile:   map[string]any{},
		TaskContext:    map[string]any{},
		OutputContract: map[string]any{},
	}
	userRequest := opts.UserRequest

	if IsEnvelope(opts.SourcePayload) {
		if m, ok := opts.SourcePayload["system_contract"].(map[string]any); ok {
			mergeInto(env.SystemContract, m)
		}
		if m, ok := opts.SourcePayload["agent_profile"].(map[string]any); ok {
			mergeInto(env.AgentProfile, m)
		}
		if m, ok := opts.SourcePayload["task_context"].(map[string]any); ok {
			mergeInto(env.TaskContext, m)
		}
		if m, ok := opts.SourcePayload["output_contract"].(map[string]any); ok {
			mergeInto(env.OutputContract, m)
		}
		if existing, ok := opts.SourcePayload["user_request"].(string); ok && userRequest == "" {
			userRequest = existing
		}
	} else if opts.SourcePayload != nil {
		env.TaskContext["input_payload"] = opts.SourcePayload
	}

	mergeInto(env.SystemContract, opts.SystemContract)
	mergeInto(env.AgentProfile, opts.AgentProfile)
	mergeInto(env.TaskContext, opts.TaskContext)
	mergeInto(env.OutputContract, opts.OutputContract)

	env.UserRequest = userRequest
	return env
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}

// Serialize renders an Envelope as sorted-key, 2-space-indent JSON,
// mirroring prompt_envelope.py's serialize_prompt_envelope
// (json.dumps(..., indent=2, sort_keys=True)). Go's encoding/json
// sorts map[string]any keys on marshal, so the five top-level keys are
// put into a map as well rather than following the struct's field
// order, and the nested sections need no manual sorting.
func Serialize(env Envelope) (string, error) {
	top := map[string]any{
		"system_contract": env.SystemContract,
		"agent_profile":   env.AgentProfile,
		"task_context":    env.TaskContext,
		"user_request":    env.UserRequest,
		"output_contract": env.OutputContract,
	}
	b, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ParsePromptInput mirrors prompt_envelope.py's parse_prompt_input: a
// raw trigger prompt is either plain text (returned as the user
// request with no structured payload) or a JSON object, in which case
// the user request is extracted from it and the object is returned as
// the source payload for BuildEnvelope.
func ParsePromptInput(raw string) (userRequest string, sourcePayload map[string]any) {
	stripped := strings.TrimSpace(raw)
	if stripped == "" {
		return "", nil
	}
	if !strings.HasPrefix(stripped, "{") {
		return raw, nil
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return raw, nil
	}
	return ExtractUserRequest(payload), payload
}
