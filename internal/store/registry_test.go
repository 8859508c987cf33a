package store

import (
	"context"
	"testing"
)

func TestAgentUpsertAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	a := Agent{ID: "agent1", Name: "Reviewer", Description: "reviews PRs", Markdown: "# Reviewer"}
	if err := s.UpsertAgent(ctx, a); err != nil {
		t.Fatalf("upsert agent: %v", err)
	}

	got, err := s.GetAgent(ctx, "agent1")
	if err != nil {
		t.Fatalf("get agent: %v", err)
	}
	if got == nil || got.Name != "Reviewer" {
		t.Fatalf("unexpected agent: %+v", got)
	}

	a.Markdown = "# Reviewer v2"
	if err := s.UpsertAgent(ctx, a); err != nil {
		t.Fatalf("upsert agent v2: %v", err)
	}
	got, _ = s.GetAgent(ctx, "agent1")
	if got.Markdown != "# Reviewer v2" {
		t.Fatalf("expected upsert to replace markdown, got %q", got.Markdown)
	}
}

func TestScriptUpsertAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	sc := Script{ID: "sc1", FileName: "deploy.sh", FilePath: "/scripts/deploy.sh", ContentType: "text/x-shellscript", ContentHash: "abc123"}
	if err := s.UpsertScript(ctx, sc); err != nil {
		t.Fatalf("upsert script: %v", err)
	}
	got, err := s.GetScript(ctx, "sc1")
	if err != nil {
		t.Fatalf("get script: %v", err)
	}
	if got == nil || got.ContentHash != "abc123" {
		t.Fatalf("unexpected script: %+v", got)
	}
}

func TestMCPServerUpsertListAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.UpsertMCPServer(ctx, MCPServerRow{ServerKey: "filesystem", ConfigJSON: `{"command":"mcp-fs","args":["/workspace"]}`}); err != nil {
		t.Fatalf("upsert mcp server: %v", err)
	}
	if err := s.UpsertMCPServer(ctx, MCPServerRow{ServerKey: "search", ConfigJSON: `{"command":"mcp-search"}`}); err != nil {
		t.Fatalf("upsert mcp server: %v", err)
	}

	got, err := s.GetMCPServer(ctx, "filesystem")
	if err != nil {
		t.Fatalf("get mcp server: %v", err)
	}
	if got == nil || got.ConfigJSON == "" {
		t.Fatalf("unexpected mcp server: %+v", got)
	}

	all, err := s.ListMCPServers(ctx)
	if err != nil {
		t.Fatalf("list mcp servers: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 mcp servers, got %d", len(all))
	}
}

func TestRAGCollectionUpsertAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	c := RAGCollection{ID: "rag1", Name: "docs", VectorBackend: "chromem", Health: "ok"}
	if err := s.UpsertRAGCollection(ctx, c); err != nil {
		t.Fatalf("upsert rag collection: %v", err)
	}
	got, err := s.GetRAGCollection(ctx, "rag1")
	if err != nil {
		t.Fatalf("get rag collection: %v", err)
	}
	if got == nil || got.Name != "docs" {
		t.Fatalf("unexpected rag collection: %+v", got)
	}
}

func TestChatThreadAndMessageOrdering(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	if err := s.CreateChatThread(ctx, ChatThread{ID: "thread1", ContextWindowTokens: 16000}); err != nil {
		t.Fatalf("create chat thread: %v", err)
	}

	for i, role := range []string{"user", "assistant", "user"} {
		m := ChatMessage{ID: idFor(i), ThreadID: "thread1", Role: role, Content: role + " message"}
		if err := s.AppendChatMessage(ctx, m); err != nil {
			t.Fatalf("append chat message %d: %v", i, err)
		}
	}

	msgs, err := s.ListChatMessages(ctx, "thread1")
	if err != nil {
		t.Fatalf("list chat messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != i+1 {
			t.Fatalf("message %d has seq %d, want %d", i, m.Seq, i+1)
		}
	}

	if err := s.SetChatThreadCompactionSummary(ctx, "thread1", "summary text"); err != nil {
		t.Fatalf("set compaction summary: %v", err)
	}
	thread, err := s.GetChatThread(ctx, "thread1")
	if err != nil {
		t.Fatalf("get chat thread: %v", err)
	}
	if thread.HistoryCompactionSummary != "summary text" {
		t.Fatalf("expected compaction summary to persist, got %q", thread.HistoryCompactionSummary)
	}
}

func idFor(i int) string {
	return "msg" + string(rune('a'+i))
}

func TestIntegrationSettingSetAndGet(t *testing.T) {
	s := tempStore(t)
	ctx := context.Background()

	_, ok, err := s.GetIntegrationSetting(ctx, "chat_runtime", "history_percent")
	if err != nil {
		t.Fatalf("get integration setting: %v", err)
	}
	if ok {
		t.Fatal("expected unset setting to report ok=false")
	}

	if err := s.SetIntegrationSetting(ctx, IntegrationSetting{Provider: "chat_runtime", Key: "history_percent", Value: "60"}); err != nil {
		t.Fatalf("set integration setting: %v", err)
	}
	value, ok, err := s.GetIntegrationSetting(ctx, "chat_runtime", "history_percent")
	if err != nil {
		t.Fatalf("get integration setting: %v", err)
	}
	if !ok || value != "60" {
		t.Fatalf("unexpected setting: value=%q ok=%v", value, ok)
	}
}
