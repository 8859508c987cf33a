// Package budget implements the Context Budgeter: deterministic
// normalization of the chat_runtime split between history, RAG, and MCP
// context share, plus compaction trigger/target bounds. Ported in spirit
// from original_source's chat/settings.py (_normalized_settings_values).
package budget

import (
	"strconv"
	"strings"
)

// Defaults mirror chat/settings.py's CHAT_RUNTIME_DEFAULTS.
const (
	DefaultHistoryPercent            = 60
	DefaultRAGPercent                = 25
	DefaultMCPPercent                = 15
	DefaultCompactionTriggerPercent  = 100
	DefaultCompactionTargetPercent   = 85
	DefaultPreserveRecentTurns       = 4
	DefaultRAGTopK                   = 5
	DefaultContextWindowTokens       = 16000
	DefaultMaxCompactionSummaryChars = 2400
)

// Settings is the normalized chat_runtime context budget, equivalent to
// the Python ChatRuntimeSettings dataclass.
type Settings struct {
	HistoryPercent             int
	RAGPercent                 int
	MCPPercent                 int
	CompactionTriggerPercent   int
	CompactionTargetPercent    int
	PreserveRecentTurns        int
	RAGTopK                    int
	DefaultContextWindowTokens int
	MaxCompactionSummaryChars  int
}

// RawSettings is the unnormalized, string-valued form persisted in
// IntegrationSetting rows (provider "chat_runtime"), mirroring the
// Python dict[str, str] payload shape.
type RawSettings map[string]string

// asIntRange parses value as an int, falling back to def on any parse
// failure, and clamps the result to [min, max]. Mirrors
// chat/settings.py's _as_int_range.
func asIntRange(value string, def, min, max int) int {
	trimmed := strings.TrimSpace(value)
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return def
	}
	if parsed < min {
		return min
	}
	if parsed > max {
		return max
	}
	return parsed
}

// Normalize applies chat/settings.py's _normalized_settings_values rules
// to raw overrides layered on top of the CHAT_RUNTIME_DEFAULTS: history
// clamps to [10,90], rag clamps to [0,80], history+rag is capped at 95
// (rag gives way), mcp is the 100-complement, compaction_trigger clamps
// to [70,100], compaction_target clamps to [40,99] and is forced below
// trigger.
func Normalize(raw RawSettings) Settings {
	history := asIntRange(raw["history_budget_percent"], DefaultHistoryPercent, 10, 90)
	rag := asIntRange(raw["rag_budget_percent"], DefaultRAGPercent, 0, 80)
	if history+rag > 95 {
		rag = max(0, 95-history)
	}
	mcp := max(0, 100-history-rag)

	trigger := asIntRange(raw["compaction_trigger_percent"], DefaultCompactionTriggerPercent, 70, 100)
	target := asIntRange(raw["compaction_target_percent"], DefaultCompactionTargetPercent, 40, 99)
	if target >= trigger {
		target = max(40, trigger-1)
	}

	return Settings{
		HistoryPercent:           history,
		RAGPercent:               rag,
		MCPPercent:               mcp,
		CompactionTriggerPercent: trigger,
		CompactionTargetPercent:  target,
		PreserveRecentTurns: asIntRange(
			raw["preserve_recent_turns"], DefaultPreserveRecentTurns, 1, 20,
		),
		RAGTopK: asIntRange(
			raw["rag_top_k"], DefaultRAGTopK, 1, 50,
		),
		DefaultContextWindowTokens: asIntRange(
			raw["default_context_window_tokens"], DefaultContextWindowTokens, 1024, 1000000,
		),
		MaxCompactionSummaryChars: asIntRange(
			raw["max_compaction_summary_chars"], DefaultMaxCompactionSummaryChars, 200, 10000,
		),
	}
}

// Payload serializes Settings back to the string-valued form persisted
// in IntegrationSetting rows.
func (s Settings) Payload() RawSettings {
	return RawSettings{
		"history_budget_percent":        strconv.Itoa(s.HistoryPercent),
		"rag_budget_percent":            strconv.Itoa(s.RAGPercent),
		"mcp_budget_percent":            strconv.Itoa(s.MCPPercent),
		"compaction_trigger_percent":    strconv.Itoa(s.CompactionTriggerPercent),
		"compaction_target_percent":     strconv.Itoa(s.CompactionTargetPercent),
		"preserve_recent_turns":         strconv.Itoa(s.PreserveRecentTurns),
		"rag_top_k":                     strconv.Itoa(s.RAGTopK),
		"default_context_window_tokens": strconv.Itoa(s.DefaultContextWindowTokens),
		"max_compaction_summary_chars":  strconv.Itoa(s.MaxCompactionSummaryChars),
	}
}

// HistoryTokenBudget returns the token share of a context window
// reserved for chat history, given Settings and a window size.
func (s Settings) HistoryTokenBudget(contextWindowTokens int) int {
	return contextWindowTokens * s.HistoryPercent / 100
}

// RAGTokenBudget returns the token share of a context window reserved
// for retrieved RAG context.
func (s Settings) RAGTokenBudget(contextWindowTokens int) int {
	return contextWindowTokens * s.RAGPercent / 100
}

// MCPTokenBudget returns the token share of a context window reserved
// for MCP tool/resource payloads.
func (s Settings) MCPTokenBudget(contextWindowTokens int) int {
	return contextWindowTokens * s.MCPPercent / 100
}

// CompactionTriggerTokens returns the token count at which compaction
// should begin for a given context window.
func (s Settings) CompactionTriggerTokens(contextWindowTokens int) int {
	return contextWindowTokens * s.CompactionTriggerPercent / 100
}

// CompactionTargetTokens returns the token count compaction should
// reduce usage back down to.
func (s Settings) CompactionTargetTokens(contextWindowTokens int) int {
	return contextWindowTokens * s.CompactionTargetPercent / 100
}
