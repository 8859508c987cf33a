package retrieval

import (
	"fmt"
	"strings"

	"github.com/nodadyoushutup/llmctl-engine/internal/budget"
)

// BuildQueryText folds the last two user turns and the new message into
// a single retrieval query, capped at 800 characters. Mirrors
// retrieval.py's build_query_text.
func BuildQueryText(message string, history []budget.Message, maxHistory int) string {
	trimmed := budget.TrimHistory(history, maxHistory)
	var recentUsers []string
	for _, m := range trimmed {
		if m.Role == "user" {
			recentUsers = append(recentUsers, m.Content)
		}
	}
	if len(recentUsers) > 2 {
		recentUsers = recentUsers[len(recentUsers)-2:]
	}
	parts := append(recentUsers, message)

	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	combined := strings.TrimSpace(strings.Join(nonEmpty, "\n"))
	if combined == "" {
		return message
	}
	const maxChars = 800
	if len(combined) > maxChars {
		combined = combined[len(combined)-maxChars:]
	}
	return combined
}

// Source is one labelled citation surfaced alongside built context.
type Source struct {
	ID        int
	Label     string
	Path      string
	StartLine string
	EndLine   string
	Snippet   string
}

// BuildContext renders matches into a citation-numbered context block
// capped at maxChars, truncating each document's snippet to
// snippetChars. Mirrors retrieval.py's build_context/format_label/truncate.
func BuildContext(matches []Match, maxChars, snippetChars int) (string, []Source) {
	var blocks []string
	var sources []Source
	remaining := maxChars

	for i, m := range matches {
		if m.Document == "" {
			continue
		}
		idx := i + 1
		label := formatLabel(m.Metadata)
		doc := strings.TrimSpace(m.Document)
		sources = append(sources, Source{
			ID:        idx,
			Label:     label,
			Path:      m.Metadata["path"],
			StartLine: m.Metadata["start_line"],
			EndLine:   m.Metadata["end_line"],
			Snippet:   truncate(doc, snippetChars),
		})

		block := fmt.Sprintf("[%d] %s\n%s", idx, label, doc)
		if len(block) > remaining {
			block = strings.TrimRight(block[:remaining], " \t\n\r")
		}
		blocks = append(blocks, block)
		remaining -= len(block)
		if remaining <= 0 {
			break
		}
	}

	return strings.Join(blocks, "\n\n"), sources
}

func formatLabel(meta map[string]string) string {
	path := meta["path"]
	if path == "" {
		path = "unknown"
	}
	prefix := ""
	if name := meta["source_name"]; name != "" {
		prefix = name + " • "
	}
	start, hasStart := meta["start_line"]
	end, hasEnd := meta["end_line"]
	if hasStart && hasEnd && start != "" && end != "" {
		return fmt.Sprintf("%s%s:%s-%s", prefix, path, start, end)
	}
	if hasStart && start != "" {
		return fmt.Sprintf("%s%s:%s", prefix, path, start)
	}
	return prefix + path
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit - 3
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(text[:cut], " \t\n\r") + "..."
}
