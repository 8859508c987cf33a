package mcpconfig

import "testing"

func TestParseLegacyTOMLAcceptsMCPServersTable(t *testing.T) {
	raw := "[mcp_servers.github]\ncommand = \"mcp-server-github\"\nargs = [\"--stdio\"]\n"
	parsed, err := ParseLegacyTOML(raw, "github")
	if err != nil {
		t.Fatalf("parse legacy toml: %v", err)
	}
	if parsed["command"] != "mcp-server-github" {
		t.Fatalf("unexpected command: %+v", parsed)
	}
}

func TestParseLegacyTOMLRejectsInvalidPayload(t *testing.T) {
	_, err := ParseLegacyTOML("not-toml-and-not-json", "github")
	if err == nil {
		t.Fatal("expected invalid payload to be rejected")
	}
}

func TestParseLegacyTOMLRejectsMissingServerKey(t *testing.T) {
	raw := "[mcp_servers.other]\ncommand = \"x\"\n"
	_, err := ParseLegacyTOML(raw, "github")
	if err == nil {
		t.Fatal("expected missing server key to be rejected")
	}
}

func TestParseLegacyTOMLAcceptsBareTable(t *testing.T) {
	raw := "command = \"mcp-server-github\"\n"
	parsed, err := ParseLegacyTOML(raw, "github")
	if err != nil {
		t.Fatalf("parse legacy toml: %v", err)
	}
	if parsed["command"] != "mcp-server-github" {
		t.Fatalf("unexpected command: %+v", parsed)
	}
}
