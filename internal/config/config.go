// Package config loads and validates the llmctl engine's TOML
// configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// instructionFilenamePattern matches the non-frontier instruction filename
// rule from original_source's instruction_adapters/base.py: letters,
// digits, dot, underscore, dash, ending in ".md".
var instructionFilenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+\.md$`)

// Duration is a time.Duration that unmarshals from TOML strings like
// "60s" or "2m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the top-level engine configuration.
type Config struct {
	General   General              `toml:"general"`
	Store     Store                `toml:"store"`
	Queue     Queue                `toml:"queue"`
	Workspace Workspace            `toml:"workspace"`
	Providers map[string]Provider  `toml:"providers"`
	Budget    Budget               `toml:"budget"`
	Retrieval Retrieval            `toml:"retrieval"`
	MCP       map[string]MCPServer `toml:"mcp"`
}

// General holds scheduler-wide tunables.
type General struct {
	TickInterval             Duration `toml:"tick_interval"`
	MaxConcurrentRuns        int      `toml:"max_concurrent_runs"`
	MaxConcurrentNodesPerRun int      `toml:"max_concurrent_nodes_per_run"`
	MaxPerTick               int      `toml:"max_per_tick"`
	DefaultNodeTimeout       Duration `toml:"default_node_timeout"`
	ForceKillGrace           Duration `toml:"force_kill_grace"`
	MaxRetries               int      `toml:"max_retries"`
	LogLevel                 string   `toml:"log_level"`
	WorkspaceSweepInterval   Duration `toml:"workspace_sweep_interval"`
	WorkspaceRetention       Duration `toml:"workspace_retention"`
}

// Store configures the persistent store backend.
type Store struct {
	DSN string `toml:"dsn"`
}

// Queue configures the task queue backend (Temporal).
type Queue struct {
	HostPort          string `toml:"host_port"`
	Namespace         string `toml:"namespace"`
	DefaultTaskQueue  string `toml:"default_task_queue"`
	RAGIndexQueue     string `toml:"rag_index_queue"`
	RAGGitQueue       string `toml:"rag_git_queue"`
	RAGDriveQueue     string `toml:"rag_drive_queue"`
}

// Workspace configures the per-run working directory root.
type Workspace struct {
	Root string `toml:"root"`

	// ContainerImage is the image the docker execution provider
	// (EXECUTION_PROVIDER_DOCKER) runs a node's command in. Empty
	// disables the provider: a node configured to use it then fails with
	// a dispatch_error instead of silently falling back to the in-process
	// provider.
	ContainerImage string `toml:"container_image"`
}

// Provider configures a single LLM provider adapter.
type Provider struct {
	Kind                string   `toml:"kind"` // "anthropic", "openai", "bedrock"
	Model               string   `toml:"model"`
	Frontier            bool     `toml:"frontier"`
	InstructionFilename string   `toml:"instruction_filename"` // non-frontier override, defaults to AGENT.md
	Timeout             Duration `toml:"timeout"`
}

// Budget holds Context Budgeter defaults (spec §4.7).
type Budget struct {
	HistoryPercent             int `toml:"history_percent"`
	RAGPercent                 int `toml:"rag_percent"`
	MCPPercent                 int `toml:"mcp_percent"`
	CompactionTriggerPercent   int `toml:"compaction_trigger_percent"`
	CompactionTargetPercent    int `toml:"compaction_target_percent"`
	PreserveRecentTurns        int `toml:"preserve_recent_turns"`
	RAGTopK                    int `toml:"rag_top_k"`
	DefaultContextWindowTokens int `toml:"default_context_window_tokens"`
	MaxCompactionSummaryChars  int `toml:"max_compaction_summary_chars"`
}

// Retrieval configures the vector retrieval wrapper.
type Retrieval struct {
	SnippetChars  int `toml:"snippet_chars"`
	QueryMaxChars int `toml:"query_max_chars"`
}

// MCPServer is a named MCP server launch config entry.
type MCPServer struct {
	Command   string            `toml:"command"`
	Args      []string          `toml:"args"`
	Env       map[string]string `toml:"env"`
	Transport string            `toml:"transport"`
	URL       string            `toml:"url"`
}

// Defaults returns a Config populated with spec-mandated defaults
// (spec §4.7 budget defaults, spec §5 timeouts).
func Defaults() *Config {
	return &Config{
		General: General{
			TickInterval:             Duration{5 * time.Second},
			MaxConcurrentRuns:        10,
			MaxConcurrentNodesPerRun: 3,
			MaxPerTick:               5,
			DefaultNodeTimeout:       Duration{10 * time.Minute},
			ForceKillGrace:           Duration{10 * time.Second},
			MaxRetries:               3,
			LogLevel:                 "info",
			WorkspaceSweepInterval:   Duration{10 * time.Minute},
			WorkspaceRetention:       Duration{24 * time.Hour},
		},
		Queue: Queue{
			DefaultTaskQueue: "studio.default",
			RAGIndexQueue:    "rag.index",
			RAGGitQueue:      "rag.git",
			RAGDriveQueue:    "rag.drive",
		},
		Budget: Budget{
			HistoryPercent:             60,
			RAGPercent:                 25,
			MCPPercent:                 15,
			CompactionTriggerPercent:   100,
			CompactionTargetPercent:    85,
			PreserveRecentTurns:        4,
			RAGTopK:                    5,
			DefaultContextWindowTokens: 16000,
			MaxCompactionSummaryChars:  2400,
		},
		Retrieval: Retrieval{
			SnippetChars:  400,
			QueryMaxChars: 800,
		},
	}
}

// Load reads and parses a TOML config file, applying defaults for any
// zero-valued fields by starting from Defaults() and decoding on top.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// validProviderKinds are the provider adapter kinds the router knows how
// to construct (spec §4.3).
var validProviderKinds = map[string]bool{
	"anthropic": true,
	"openai":    true,
	"bedrock":   true,
}

// Validate checks cross-field invariants that TOML decoding alone can't
// enforce: known provider kinds, a sane budget split, and non-dotted
// instruction filenames for non-frontier providers (an empty filename is
// accepted and not checked).
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		if !validProviderKinds[p.Kind] {
			return fmt.Errorf("provider %q: invalid kind %q (want anthropic, openai, or bedrock)", name, p.Kind)
		}
		if !p.Frontier && p.InstructionFilename != "" {
			if strings.HasPrefix(p.InstructionFilename, ".") {
				return fmt.Errorf("provider %q: instruction_filename %q must not start with '.'", name, p.InstructionFilename)
			}
			if !instructionFilenamePattern.MatchString(p.InstructionFilename) {
				return fmt.Errorf("provider %q: instruction_filename %q contains invalid characters", name, p.InstructionFilename)
			}
		}
	}
	sum := c.Budget.HistoryPercent + c.Budget.RAGPercent + c.Budget.MCPPercent
	if sum != 0 && sum != 100 {
		return fmt.Errorf("budget: history_percent + rag_percent + mcp_percent must sum to 100, got %d", sum)
	}
	if c.Budget.CompactionTargetPercent > c.Budget.CompactionTriggerPercent {
		return fmt.Errorf("budget: compaction_target_percent (%d) must not exceed compaction_trigger_percent (%d)", c.Budget.CompactionTargetPercent, c.Budget.CompactionTriggerPercent)
	}
	return nil
}

// Clone returns a deep-enough copy of cfg for safe concurrent reads.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Providers = make(map[string]Provider, len(c.Providers))
	for k, v := range c.Providers {
		clone.Providers[k] = v
	}
	clone.MCP = make(map[string]MCPServer, len(c.MCP))
	for k, v := range c.MCP {
		clone.MCP[k] = v
	}
	return &clone
}

// ExpandHome expands a leading "~" to the user's home directory.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
