package budget

import "testing"

func TestNormalizeDefaults(t *testing.T) {
	got := Normalize(RawSettings{})
	want := Settings{
		HistoryPercent:             DefaultHistoryPercent,
		RAGPercent:                 DefaultRAGPercent,
		MCPPercent:                 DefaultMCPPercent,
		CompactionTriggerPercent:   DefaultCompactionTriggerPercent,
		CompactionTargetPercent:    DefaultCompactionTargetPercent,
		PreserveRecentTurns:        DefaultPreserveRecentTurns,
		RAGTopK:                    DefaultRAGTopK,
		DefaultContextWindowTokens: DefaultContextWindowTokens,
		MaxCompactionSummaryChars:  DefaultMaxCompactionSummaryChars,
	}
	if got != want {
		t.Fatalf("Normalize(empty) = %+v, want %+v", got, want)
	}
}

func TestNormalizeClampsOutOfRangeValues(t *testing.T) {
	got := Normalize(RawSettings{
		"history_budget_percent": "5",
		"rag_budget_percent":     "95",
	})
	if got.HistoryPercent != 10 {
		t.Fatalf("history = %d, want clamped to 10", got.HistoryPercent)
	}
	if got.RAGPercent != 80 {
		t.Fatalf("rag = %d, want clamped to 80", got.RAGPercent)
	}
}

func TestNormalizeCapsHistoryPlusRagAt95(t *testing.T) {
	got := Normalize(RawSettings{
		"history_budget_percent": "90",
		"rag_budget_percent":     "80",
	})
	if got.HistoryPercent != 90 {
		t.Fatalf("history = %d, want 90", got.HistoryPercent)
	}
	if got.RAGPercent != 5 {
		t.Fatalf("rag = %d, want reduced to 5 (95-90)", got.RAGPercent)
	}
	if got.MCPPercent != 5 {
		t.Fatalf("mcp = %d, want 100-90-5=5", got.MCPPercent)
	}
}

func TestNormalizeMCPIsHundredComplement(t *testing.T) {
	got := Normalize(RawSettings{
		"history_budget_percent": "60",
		"rag_budget_percent":     "25",
	})
	if got.MCPPercent != 15 {
		t.Fatalf("mcp = %d, want 15", got.MCPPercent)
	}
}

func TestNormalizeForcesTargetBelowTrigger(t *testing.T) {
	got := Normalize(RawSettings{
		"compaction_trigger_percent": "80",
		"compaction_target_percent":  "90",
	})
	if got.CompactionTriggerPercent != 80 {
		t.Fatalf("trigger = %d, want 80", got.CompactionTriggerPercent)
	}
	if got.CompactionTargetPercent != 79 {
		t.Fatalf("target = %d, want clamped below trigger to 79", got.CompactionTargetPercent)
	}
}

func TestNormalizeFallsBackOnUnparsableValues(t *testing.T) {
	got := Normalize(RawSettings{"rag_top_k": "not-a-number"})
	if got.RAGTopK != DefaultRAGTopK {
		t.Fatalf("rag_top_k = %d, want default %d", got.RAGTopK, DefaultRAGTopK)
	}
}

func TestSettingsPayloadRoundTrip(t *testing.T) {
	s := Normalize(RawSettings{"history_budget_percent": "70"})
	payload := s.Payload()
	again := Normalize(payload)
	if again != s {
		t.Fatalf("round trip mismatch: %+v != %+v", again, s)
	}
}

func TestTokenBudgetSplits(t *testing.T) {
	s := Normalize(RawSettings{})
	window := 16000
	if got := s.HistoryTokenBudget(window); got != 9600 {
		t.Fatalf("history budget = %d, want 9600", got)
	}
	if got := s.RAGTokenBudget(window); got != 4000 {
		t.Fatalf("rag budget = %d, want 4000", got)
	}
	if got := s.MCPTokenBudget(window); got != 2400 {
		t.Fatalf("mcp budget = %d, want 2400", got)
	}
}

func TestShouldCompact(t *testing.T) {
	s := Normalize(RawSettings{"compaction_trigger_percent": "80"})
	window := 1000
	if s.ShouldCompact(799, window) {
		t.Fatal("expected no compaction below trigger")
	}
	if !s.ShouldCompact(800, window) {
		t.Fatal("expected compaction at trigger")
	}
}

func TestTrimHistoryDropsMalformedTurnsAndKeepsLastN(t *testing.T) {
	history := []Message{
		{Role: "system", Content: "ignored"},
		{Role: "user", Content: "  "},
		{Role: "user", Content: "one"},
		{Role: "assistant", Content: "two"},
		{Role: "user", Content: "three"},
	}
	got := TrimHistory(history, 2)
	want := []Message{{Role: "assistant", Content: "two"}, {Role: "user", Content: "three"}}
	if len(got) != len(want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
