package retrieval

import (
	"strings"
	"testing"

	"github.com/nodadyoushutup/llmctl-engine/internal/budget"
)

func TestBuildQueryTextUsesRecentUserHistory(t *testing.T) {
	history := []budget.Message{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "first answer"},
		{Role: "user", Content: "second question"},
	}
	got := BuildQueryText("latest question", history, 8)
	for _, want := range []string{"first question", "second question", "latest question"} {
		if !strings.Contains(got, want) {
			t.Fatalf("query text %q missing %q", got, want)
		}
	}
}

func TestBuildQueryTextFallsBackToMessageWhenHistoryEmpty(t *testing.T) {
	got := BuildQueryText("hello", nil, 8)
	if got != "hello" {
		t.Fatalf("got %q, want %q", got, "hello")
	}
}

func TestBuildQueryTextCapsAt800Chars(t *testing.T) {
	long := strings.Repeat("x", 2000)
	got := BuildQueryText(long, nil, 8)
	if len(got) != 800 {
		t.Fatalf("len(got) = %d, want 800", len(got))
	}
	if !strings.HasSuffix(long, got) {
		t.Fatal("expected the tail of the overlong message to be kept")
	}
}

func TestBuildContextFormatsLabelsAndSources(t *testing.T) {
	matches := []Match{
		{
			Document: "Alpha content",
			Metadata: map[string]string{
				"source_name": "alpha",
				"path":        "docs/a.md",
				"start_line":  "4",
				"end_line":    "8",
			},
		},
		{
			Document: "Beta content",
			Metadata: map[string]string{"path": "docs/b.md"},
		},
	}

	context, sources := BuildContext(matches, 2000, 12)
	if !strings.Contains(context, "[1] alpha") {
		t.Fatalf("context missing label: %q", context)
	}
	if !strings.Contains(context, "docs/a.md:4-8") {
		t.Fatalf("context missing path range: %q", context)
	}
	if len(sources) != 2 {
		t.Fatalf("len(sources) = %d, want 2", len(sources))
	}
	if sources[1].Path != "docs/b.md" {
		t.Fatalf("sources[1].Path = %q, want docs/b.md", sources[1].Path)
	}
}

func TestBuildContextStopsAtMaxChars(t *testing.T) {
	matches := []Match{
		{Document: strings.Repeat("a", 100), Metadata: map[string]string{"path": "a.md"}},
		{Document: strings.Repeat("b", 100), Metadata: map[string]string{"path": "b.md"}},
	}
	context, sources := BuildContext(matches, 20, 12)
	if len(sources) != 1 {
		t.Fatalf("expected only the first match to fit within max_chars, got %d sources", len(sources))
	}
	if strings.Contains(context, "b.md") {
		t.Fatal("expected second block to be dropped once the budget is exhausted")
	}
}

func TestTruncateAddsEllipsisWhenOverLimit(t *testing.T) {
	got := truncate("hello world", 8)
	if got != "hello..." {
		t.Fatalf("got %q", got)
	}
}

func TestTruncateLeavesShortTextUnchanged(t *testing.T) {
	if got := truncate("short", 20); got != "short" {
		t.Fatalf("got %q", got)
	}
}
