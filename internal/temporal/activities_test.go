package temporal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/provider"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
	"github.com/nodadyoushutup/llmctl-engine/internal/workspace"
)

type fakeNoderunStore struct {
	seen map[string]bool
}

func (f *fakeNoderunStore) RegisterDispatch(ctx context.Context, executionID, dispatchID string) (bool, error) {
	key := executionID + ":" + dispatchID
	if f.seen[key] {
		return false, nil
	}
	if f.seen == nil {
		f.seen = map[string]bool{}
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeNoderunStore) InsertNodeRunWithArtifacts(ctx context.Context, nr store.NodeRun, artifacts []store.NodeArtifact) error {
	return nil
}

type fakeProviderAdapter struct{}

func (fakeProviderAdapter) Name() string { return "anthropic" }
func (fakeProviderAdapter) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{Content: "ok"}, nil
}

func tempStoreForTemporal(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "temporal-test.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestExecuteNodeActivityRunsDispatchAndPersists(t *testing.T) {
	rt := &noderun.Runtime{
		Workspace: workspace.NewManager(t.TempDir()),
		Router:    provider.NewRouter(map[string]provider.Adapter{"anthropic": fakeProviderAdapter{}}, nil),
		Store:     &fakeNoderunStore{},
	}
	a := &Activities{Runtime: rt}

	out, err := a.ExecuteNodeActivity(context.Background(), NodeExecutionInput{
		RunID: "run-1", NodeID: "node-1", ProviderName: "anthropic", Model: "claude-x", RawPrompt: "hi", DispatchID: "d1",
	})
	if err != nil {
		t.Fatalf("ExecuteNodeActivity: %v", err)
	}
	if out.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", out.Status)
	}
}

func TestIndexRAGCollectionActivityMarksCollectionHealthy(t *testing.T) {
	st := tempStoreForTemporal(t)
	ctx := context.Background()
	if err := st.UpsertRAGCollection(ctx, store.RAGCollection{ID: "coll-1", Name: "docs", VectorBackend: "chromem", Health: "pending"}); err != nil {
		t.Fatalf("seed collection: %v", err)
	}

	a := &Activities{Store: st}
	out, err := a.IndexRAGCollectionActivity(ctx, RAGIndexInput{CollectionID: "coll-1", SourceKind: "git"})
	if err != nil {
		t.Fatalf("IndexRAGCollectionActivity: %v", err)
	}
	if !out.Indexed {
		t.Fatal("expected Indexed to be true")
	}

	got, err := st.GetRAGCollection(ctx, "coll-1")
	if err != nil {
		t.Fatalf("get collection: %v", err)
	}
	if got.Health != "ok" {
		t.Fatalf("health = %q, want ok", got.Health)
	}
}

func TestIndexRAGCollectionActivityMissingCollection(t *testing.T) {
	st := tempStoreForTemporal(t)
	a := &Activities{Store: st}

	if _, err := a.IndexRAGCollectionActivity(context.Background(), RAGIndexInput{CollectionID: "missing"}); err == nil {
		t.Fatal("expected an error for a missing collection")
	}
}
