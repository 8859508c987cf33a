package mcpconfig

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// ParseLegacyTOML decodes a pre-cutover TOML-formatted MCP server config —
// a `[mcp_servers.<key>]` table, or a bare table at the document root. Only
// the migrate-flowchart-runtime-schema CLI command should call this; every
// live read/write path accepts JSON only (Parse/Render).
func ParseLegacyTOML(raw string, serverKey string) (map[string]any, error) {
	var root map[string]any
	if _, err := toml.Decode(raw, &root); err != nil {
		return nil, fmt.Errorf("mcpconfig: legacy TOML decode for %q: %w", serverKey, err)
	}

	wrapper, ok := root["mcp_servers"]
	if !ok {
		return validate(root, serverKey)
	}
	servers, ok := wrapper.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcpconfig: legacy mcp_servers must be a table")
	}
	inner, ok := servers[serverKey]
	if !ok {
		return nil, fmt.Errorf("mcpconfig: legacy config has no [mcp_servers.%s] table", serverKey)
	}
	innerMap, ok := inner.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("mcpconfig: legacy [mcp_servers.%s] must be a table", serverKey)
	}
	return validate(innerMap, serverKey)
}
