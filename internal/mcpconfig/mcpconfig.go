// Package mcpconfig parses and renders the JSON launch-config shape stored
// opaquely in a Persistent Store MCPServerRow: either a bare JSON object or
// a {mcp_servers:{key:{...}}} wrapper. Live read/write paths only ever
// accept JSON; a pre-cutover TOML form is supported for one-shot migration
// only, in legacy.go.
package mcpconfig

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Parse decodes a stored MCP server config, which may be a JSON string, a
// []byte of JSON, or an already-decoded map[string]any, into its validated
// form. If the payload is wrapped in {mcp_servers:{serverKey:{...}}}, the
// wrapper is unwound and only the serverKey entry is returned.
func Parse(raw any, serverKey string) (map[string]any, error) {
	switch v := raw.(type) {
	case string:
		return parseJSONString(v, serverKey)
	case []byte:
		return parseJSONString(string(v), serverKey)
	case map[string]any:
		return parseMap(v, serverKey)
	default:
		return nil, fmt.Errorf("mcpconfig: unsupported config type %T for %q", raw, serverKey)
	}
}

// Render validates config and serializes it to a canonical JSON string
// suitable for storing in MCPServerRow.ConfigJSON. Render never mutates
// the caller's map.
func Render(serverKey string, config map[string]any) (string, error) {
	validated, err := validate(config, serverKey)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(validated)
	if err != nil {
		return "", fmt.Errorf("mcpconfig: render %q: %w", serverKey, err)
	}
	return string(b), nil
}

func parseJSONString(raw, serverKey string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("mcpconfig: empty config for %q", serverKey)
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return nil, fmt.Errorf("mcpconfig: invalid JSON for %q: %w", serverKey, err)
	}
	m, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcpconfig: config for %q must be a JSON object", serverKey)
	}
	return parseMap(m, serverKey)
}

func parseMap(m map[string]any, serverKey string) (map[string]any, error) {
	if wrapper, ok := m["mcp_servers"]; ok {
		servers, ok := wrapper.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mcpconfig: mcp_servers wrapper must be an object")
		}
		inner, ok := servers[serverKey]
		if !ok {
			return nil, fmt.Errorf("mcpconfig: mcp_servers wrapper has no entry for %q", serverKey)
		}
		innerMap, ok := inner.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("mcpconfig: mcp_servers[%q] must be an object", serverKey)
		}
		return validate(innerMap, serverKey)
	}
	return validate(m, serverKey)
}

// validate checks the {command, args[], env{}, transport?, url?} shape
// spec §6 names and returns a deep copy so the caller's map can't be
// mutated through the result.
func validate(m map[string]any, serverKey string) (map[string]any, error) {
	_, hasCommand := m["command"]
	_, hasURL := m["url"]
	if !hasCommand && !hasURL {
		return nil, fmt.Errorf("mcpconfig: %q config must set command or url", serverKey)
	}
	if hasCommand {
		if _, ok := m["command"].(string); !ok {
			return nil, fmt.Errorf("mcpconfig: %q command must be a string", serverKey)
		}
	}
	if args, ok := m["args"]; ok {
		if _, ok := args.([]any); !ok {
			return nil, fmt.Errorf("mcpconfig: %q args must be an array", serverKey)
		}
	}
	if env, ok := m["env"]; ok {
		if _, ok := env.(map[string]any); !ok {
			return nil, fmt.Errorf("mcpconfig: %q env must be an object", serverKey)
		}
	}
	return deepCopyMap(m)
}

func deepCopyMap(m map[string]any) (map[string]any, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("mcpconfig: copy config: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("mcpconfig: copy config: %w", err)
	}
	return out, nil
}
