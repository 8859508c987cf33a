package noderun

import (
	"context"
	"testing"

	"github.com/nodadyoushutup/llmctl-engine/internal/enginerr"
	"github.com/nodadyoushutup/llmctl-engine/internal/provider"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
	"github.com/nodadyoushutup/llmctl-engine/internal/workspace"
)

type fakeStore struct {
	seen      map[string]bool
	nodeRuns  []store.NodeRun
	artifacts [][]store.NodeArtifact
}

func newFakeStore() *fakeStore {
	return &fakeStore{seen: map[string]bool{}}
}

func (f *fakeStore) RegisterDispatch(ctx context.Context, executionID, dispatchID string) (bool, error) {
	key := executionID + ":" + dispatchID
	if f.seen[key] {
		return false, nil
	}
	f.seen[key] = true
	return true, nil
}

func (f *fakeStore) InsertNodeRunWithArtifacts(ctx context.Context, nr store.NodeRun, artifacts []store.NodeArtifact) error {
	f.nodeRuns = append(f.nodeRuns, nr)
	f.artifacts = append(f.artifacts, artifacts)
	return nil
}

type fakeAdapter struct {
	name    string
	content string
	err     error
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	return provider.Result{Content: f.content}, f.err
}

func newTestRuntime(t *testing.T, adapter provider.Adapter, st Store) *Runtime {
	t.Helper()
	return &Runtime{
		Workspace: workspace.NewManager(t.TempDir()),
		Router:    provider.NewRouter(map[string]provider.Adapter{"anthropic": adapter}, nil),
		Store:     st,
	}
}

func baseDispatch() Dispatch {
	return Dispatch{
		RunID:        "run-1",
		Node:         store.FlowchartNode{ID: "node-1", NodeType: "task"},
		ProviderName: "anthropic",
		Model:        "claude-x",
		RawPrompt:    "do the thing",
		DispatchID:   "dispatch-1",
	}
}

func TestRuntimeExecuteSucceedsWithQuickNodeFallback(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: "pong"}, st)

	nr, err := rt.Execute(context.Background(), baseDispatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", nr.Status)
	}
	if len(st.nodeRuns) != 1 {
		t.Fatalf("expected one persisted node run, got %d", len(st.nodeRuns))
	}
	artifacts := st.artifacts[0]
	if len(artifacts) != 1 || artifacts[0].ArtifactType != "task" {
		t.Fatalf("expected one task artifact, got %+v", artifacts)
	}
	wantKey := "flowchart_run:run-1:node_run:" + nr.ID + ":artifact:task"
	if artifacts[0].IdempotencyKey != wantKey {
		t.Fatalf("idempotency_key = %q, want %q", artifacts[0].IdempotencyKey, wantKey)
	}
	outputState, _ := artifacts[0].Payload["output_state"].(map[string]any)
	if outputState["node_type"] != "task" || outputState["raw_output"] != "pong" {
		t.Fatalf("output_state = %+v", outputState)
	}
	if _, ok := outputState["structured_output"]; ok {
		t.Fatalf("did not expect structured_output for non-JSON content, got %+v", outputState)
	}
}

func TestRuntimeExecuteParsesStructuredJSONArtifact(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: `{"answer": 42}`}, st)

	_, err := rt.Execute(context.Background(), baseDispatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	artifacts := st.artifacts[0]
	if len(artifacts) != 1 || artifacts[0].ArtifactType != "task" {
		t.Fatalf("expected one task artifact, got %+v", artifacts)
	}
	outputState, _ := artifacts[0].Payload["output_state"].(map[string]any)
	structured, _ := outputState["structured_output"].(map[string]any)
	if structured["answer"].(float64) != 42 {
		t.Fatalf("output_state = %+v", outputState)
	}
}

func TestRuntimeExecuteDecisionNodeSetsRoutingState(t *testing.T) {
	st := newFakeStore()
	decisionContent := `{"matched_connector_ids":["next"],"evaluations":[{"connector_id":"next","matched":true,"reason":"Resolved bool true."}],"no_match":false}`
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: decisionContent}, st)

	d := baseDispatch()
	d.Node.NodeType = "decision"

	nr, err := rt.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.RoutingState["no_match"] != false {
		t.Fatalf("routing_state = %+v", nr.RoutingState)
	}
	matched, _ := nr.RoutingState["matched_connector_ids"].([]any)
	if len(matched) != 1 || matched[0] != "next" {
		t.Fatalf("matched_connector_ids = %+v", nr.RoutingState["matched_connector_ids"])
	}

	artifacts := st.artifacts[0]
	if len(artifacts) != 1 || artifacts[0].ArtifactType != "decision" {
		t.Fatalf("expected one decision artifact, got %+v", artifacts)
	}
	outputState, _ := artifacts[0].Payload["output_state"].(map[string]any)
	if outputState["node_type"] != "decision" || outputState["no_match"] != false {
		t.Fatalf("output_state = %+v", outputState)
	}
}

func TestRuntimeExecuteSurfacesProviderFallbackAsDegraded(t *testing.T) {
	st := newFakeStore()
	adapter := &flakyAdapter{failures: 1, failErr: enginerr.New(enginerr.CodeProviderUnavailable, "unavailable", true)}
	rt := newTestRuntime(t, adapter, st)

	nr, err := rt.Execute(context.Background(), baseDispatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.Status != "succeeded" {
		t.Fatalf("status = %q, want succeeded", nr.Status)
	}
	if !nr.Degraded {
		t.Fatal("expected degraded=true after a fallback retry")
	}
	if nr.DegradedReason != enginerr.CodeProviderUnavailable {
		t.Fatalf("degraded_reason = %q, want %q", nr.DegradedReason, enginerr.CodeProviderUnavailable)
	}
	if nr.ProviderMetadata["fallback_attempted"] != true {
		t.Fatalf("provider_metadata = %+v", nr.ProviderMetadata)
	}
	if nr.ProviderMetadata["fallback_reason"] != enginerr.CodeProviderUnavailable {
		t.Fatalf("provider_metadata = %+v", nr.ProviderMetadata)
	}
}

// flakyAdapter fails its first N calls with failErr, then succeeds,
// exercising Router.Execute's single-retry-same-provider fallback path.
type flakyAdapter struct {
	failures int
	failErr  error
	calls    int
}

func (f *flakyAdapter) Name() string { return "anthropic" }

func (f *flakyAdapter) Execute(ctx context.Context, req provider.Request) (provider.Result, error) {
	f.calls++
	if f.calls <= f.failures {
		return provider.Result{}, f.failErr
	}
	return provider.Result{Content: "pong"}, nil
}

func TestRuntimeExecuteUsesBoundAgentProfile(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: "ok"}, st)

	d := baseDispatch()
	d.Agent = &store.Agent{ID: "agent-1", Name: "Reviewer", Description: "Reviews PRs"}

	if _, err := rt.Execute(context.Background(), d); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(st.nodeRuns) != 1 {
		t.Fatalf("expected one persisted node run, got %d", len(st.nodeRuns))
	}
}

func TestRuntimeExecuteSuppressesDuplicateDispatch(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: "ok"}, st)

	d := baseDispatch()
	if _, err := rt.Execute(context.Background(), d); err != nil {
		t.Fatalf("first execute: %v", err)
	}
	if len(st.nodeRuns) != 1 {
		t.Fatalf("expected one node run after first execute, got %d", len(st.nodeRuns))
	}

	nr, err := rt.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("second execute: %v", err)
	}
	if nr.Status != "failed" {
		t.Fatalf("status = %q, want failed for suppressed duplicate", nr.Status)
	}
	if nr.Error == nil || nr.Error.Code == "" {
		t.Fatalf("expected a run error on the suppressed duplicate, got %+v", nr.Error)
	}
	if len(st.nodeRuns) != 2 {
		t.Fatalf("expected the duplicate to also persist a failed node run, got %d", len(st.nodeRuns))
	}
}

func TestRuntimeExecutePersistsProviderFailure(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", err: errBoom{}}, st)

	nr, err := rt.Execute(context.Background(), baseDispatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.Status != "failed" {
		t.Fatalf("status = %q, want failed", nr.Status)
	}
	if nr.Error == nil {
		t.Fatal("expected a run error to be recorded")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestRuntimeExecuteDockerProviderWithoutContainersFails(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: "ok"}, st)

	d := baseDispatch()
	d.ExecutionProvider = "docker"
	d.Command = []string{"echo", "hi"}

	nr, err := rt.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.Status != "failed" {
		t.Fatalf("status = %q, want failed", nr.Status)
	}
	if nr.Error == nil || nr.Error.Retryable {
		t.Fatalf("expected a non-retryable run error, got %+v", nr.Error)
	}
}

func TestRuntimeExecuteDockerProviderWithoutCommandFails(t *testing.T) {
	st := newFakeStore()
	rt := newTestRuntime(t, &fakeAdapter{name: "anthropic", content: "ok"}, st)

	d := baseDispatch()
	d.ExecutionProvider = "docker"

	nr, err := rt.Execute(context.Background(), d)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if nr.Status != "failed" {
		t.Fatalf("status = %q, want failed", nr.Status)
	}
	if nr.Error == nil || nr.Error.Code != enginerr.CodeValidation {
		t.Fatalf("expected a validation_error run error, got %+v", nr.Error)
	}
}
