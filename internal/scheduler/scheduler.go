// Package scheduler owns a FlowchartRun's lifecycle: resolving ready
// nodes, enqueuing node executions on the Task Queue, folding completed
// NodeRuns' decision routing back into readiness, and retiring runs to
// a terminal status. Generalized from the teacher's tick-based
// Scheduler.tick (candidate gathering -> sort -> concurrency-gated
// dispatch -> janitor sweep), moved from polling beads/DAG files to
// polling the Persistent Store's FlowchartRun/NodeRun rows.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nodadyoushutup/llmctl-engine/internal/enginerr"
	"github.com/nodadyoushutup/llmctl-engine/internal/graph"
	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/queue"
	"github.com/nodadyoushutup/llmctl-engine/internal/retrypolicy"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
	"github.com/nodadyoushutup/llmctl-engine/internal/temporal"
	"github.com/nodadyoushutup/llmctl-engine/internal/workspace"
)

const (
	statusQueued    = "queued"
	statusRunning   = "running"
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
	statusCancelled = "cancelled"

	defaultTimeoutSeconds = 600
	suppressConnectorID   = "suppress"
)

// Store is the subset of store.Store the scheduler reads and writes to
// drive FlowchartRuns forward.
type Store interface {
	ListNodes(ctx context.Context, flowchartID string) ([]store.FlowchartNode, error)
	ListConnectors(ctx context.Context, flowchartID string) ([]store.FlowchartConnector, error)
	GetRun(ctx context.Context, id string) (*store.FlowchartRun, error)
	UpdateRunStatus(ctx context.Context, id, status string) error
	ListNodeRunsForRun(ctx context.Context, runID string) ([]store.NodeRun, error)
	GetAgent(ctx context.Context, id string) (*store.Agent, error)
}

// Scheduler advances a set of FlowchartRuns each tick. It holds no
// cross-tick run state in memory — every tick rebuilds routing from the
// Persistent Store's NodeRun rows, per spec §5's "scheduler itself is
// stateless across events."
type Scheduler struct {
	store     Store
	enqueuer  queue.Enqueuer
	workspace *workspace.Manager
	cfg       Config
	logger    *slog.Logger
	lock      leaderLock

	// listActiveRuns returns the ids of FlowchartRuns not yet terminal,
	// injected the same way the teacher injects beadLister so tests can
	// stub it without a real store query.
	listActiveRuns func(context.Context) ([]string, error)
}

// New creates a Scheduler. listActiveRuns supplies the ids of
// queued/running FlowchartRuns to consider each tick.
func New(st Store, enqueuer queue.Enqueuer, ws *workspace.Manager, cfg Config, logger *slog.Logger, listActiveRuns func(context.Context) ([]string, error)) *Scheduler {
	if cfg.TickInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		store:          st,
		enqueuer:       enqueuer,
		workspace:      ws,
		cfg:            cfg,
		logger:         logger,
		lock:           noopLeaderLock{},
		listActiveRuns: listActiveRuns,
	}
}

// Run blocks until ctx is cancelled, ticking at cfg.TickInterval and
// sweeping abandoned workspace directories at cfg.WorkspaceSweepInterval.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	sweep := time.NewTicker(s.cfg.WorkspaceSweepInterval)
	defer sweep.Stop()

	s.logger.Info("scheduler started", "tick_interval", s.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return
		case <-sweep.C:
			s.janitor()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick advances every active FlowchartRun by one step: enqueue whatever
// is ready, fold in whatever has completed since the last tick.
func (s *Scheduler) Tick(ctx context.Context) {
	runIDs, err := s.listActiveRuns(ctx)
	if err != nil {
		s.logger.Error("scheduler tick: list active runs failed", "error", err)
		return
	}
	if limit := s.cfg.MaxConcurrentRuns; limit > 0 && len(runIDs) > limit {
		runIDs = runIDs[:limit]
	}
	for _, runID := range runIDs {
		if err := s.advance(ctx, runID); err != nil {
			s.logger.Error("scheduler tick: advance run failed", "run_id", runID, "error", err)
		}
	}
}

// janitor sweeps workspace directories older than cfg.WorkspaceRetention,
// the crash-recovery counterpart to every NodeRun's own deferred release.
func (s *Scheduler) janitor() {
	if s.workspace == nil {
		return
	}
	removed, err := s.workspace.Sweep(s.cfg.WorkspaceRetention)
	if err != nil {
		s.logger.Error("scheduler janitor: sweep failed", "error", err)
		return
	}
	if len(removed) > 0 {
		s.logger.Info("scheduler janitor: swept stale workspaces", "count", len(removed))
	}
}

// advance performs one step of a single FlowchartRun: rebuild routing
// state from persisted NodeRuns, compute readiness, enqueue ready nodes
// up to the per-run concurrency cap, and retire the run if it has
// reached a terminal state.
func (s *Scheduler) advance(ctx context.Context, runID string) error {
	run, err := s.store.GetRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("scheduler: get run %s: %w", runID, err)
	}
	if run == nil || isTerminal(run.Status) {
		return nil
	}

	nodes, err := s.store.ListNodes(ctx, run.FlowchartID)
	if err != nil {
		return fmt.Errorf("scheduler: list nodes: %w", err)
	}
	connectors, err := s.store.ListConnectors(ctx, run.FlowchartID)
	if err != nil {
		return fmt.Errorf("scheduler: list connectors: %w", err)
	}
	g := graph.Build(nodes, connectors)

	nodeRuns, err := s.store.ListNodeRunsForRun(ctx, runID)
	if err != nil {
		return fmt.Errorf("scheduler: list node runs: %w", err)
	}

	state, outcome, err := buildRunState(g, nodeRuns)
	if err != nil {
		return s.failRun(ctx, runID, enginerr.Wrap(enginerr.CodeInternal, "resolve routing", false, err))
	}
	if outcome != nil {
		return s.failRun(ctx, runID, outcome)
	}

	if run.Status == statusQueued {
		if err := s.store.UpdateRunStatus(ctx, runID, statusRunning); err != nil {
			return fmt.Errorf("scheduler: mark run running: %w", err)
		}
	}

	if run.Status == statusCancelled {
		if outstanding(nodeRuns) == 0 {
			return s.store.UpdateRunStatus(ctx, runID, statusCancelled)
		}
		return nil
	}

	retryReady, retryExecutionIndex, unrecoverable := classifyFailures(nodeRuns)
	if unrecoverable != nil {
		return s.failRun(ctx, runID, unrecoverable)
	}

	ready := graph.ReadyNodes(g, state)
	inFlight := outstanding(nodeRuns)
	slots := s.cfg.MaxConcurrentNodesPerRun - inFlight
	if slots <= 0 {
		return nil
	}

	executionCount := map[string]int{}
	for _, nr := range nodeRuns {
		executionCount[nr.NodeID]++
	}

	enqueued := 0
	for _, node := range ready {
		if enqueued >= slots {
			break
		}
		executionCount[node.ID]++
		if err := s.enqueueNode(ctx, run, node, executionCount[node.ID]); err != nil {
			s.logger.Error("scheduler: enqueue node failed", "run_id", runID, "node_id", node.ID, "error", err)
			continue
		}
		enqueued++
	}
	for nodeID := range retryReady {
		if enqueued >= slots {
			break
		}
		node, ok := g.Node(nodeID)
		if !ok {
			continue
		}
		if err := s.enqueueNode(ctx, run, node, retryExecutionIndex[nodeID]); err != nil {
			s.logger.Error("scheduler: enqueue retry failed", "run_id", runID, "node_id", nodeID, "error", err)
			continue
		}
		enqueued++
	}

	if len(ready) == 0 && len(retryReady) == 0 && inFlight == 0 && enqueued == 0 {
		return s.store.UpdateRunStatus(ctx, runID, statusSucceeded)
	}
	return nil
}

// classifyFailures inspects each node's latest NodeRun for a terminal
// failure and sorts it into: due for a retry now (spec §7's
// 0.5s/2s/8s +/-25% backoff ladder, up to retrypolicy.MaxAttempts),
// still waiting on its backoff window, or unrecoverable (not retryable,
// or its attempts are exhausted) — the latter fails the whole run,
// since spec.md names no partial-failure semantics for a flowchart run
// beyond decision_no_match/iteration_limit_exceeded.
func classifyFailures(nodeRuns []store.NodeRun) (ready map[string]bool, executionIndex map[string]int, unrecoverable *enginerr.Error) {
	latest := map[string]store.NodeRun{}
	failCount := map[string]int{}
	for _, nr := range nodeRuns {
		if cur, ok := latest[nr.NodeID]; !ok || nr.ExecutionIndex > cur.ExecutionIndex {
			latest[nr.NodeID] = nr
		}
		if nr.Status == statusFailed {
			failCount[nr.NodeID]++
		}
	}

	ready = map[string]bool{}
	executionIndex = map[string]int{}
	for nodeID, nr := range latest {
		if nr.Status != statusFailed {
			continue
		}
		retryable := nr.Error != nil && nr.Error.Retryable
		attempts := failCount[nodeID]
		if !retryable || attempts > retrypolicy.MaxAttempts {
			code := enginerr.CodeInternal
			msg := "node failed and is not retryable"
			if nr.Error != nil {
				code = nr.Error.Code
				msg = nr.Error.Message
			}
			return nil, nil, enginerr.New(code, msg, false)
		}
		delay, ok := retrypolicy.Delay(attempts)
		if !ok {
			return nil, nil, enginerr.New(enginerr.CodeInternal, "retry schedule exhausted", false)
		}
		if nr.FinishedAt == nil || time.Since(*nr.FinishedAt) >= delay {
			ready[nodeID] = true
			executionIndex[nodeID] = nr.ExecutionIndex + 1
		}
	}
	return ready, executionIndex, nil
}

func (s *Scheduler) failRun(ctx context.Context, runID string, cause *enginerr.Error) error {
	s.logger.Error("scheduler: run failed", "run_id", runID, "code", cause.Code, "message", cause.Message)
	return s.store.UpdateRunStatus(ctx, runID, statusFailed)
}

func (s *Scheduler) enqueueNode(ctx context.Context, run *store.FlowchartRun, node store.FlowchartNode, executionIndex int) error {
	var agent *store.Agent
	if agentID, _ := node.Config["agent_id"].(string); agentID != "" {
		a, err := s.store.GetAgent(ctx, agentID)
		if err != nil {
			return fmt.Errorf("scheduler: get agent %s: %w", agentID, err)
		}
		agent = a
	}

	dispatch := noderun.Dispatch{
		RunID:          run.ID,
		Node:           node,
		ExecutionIndex: executionIndex,
		ProviderName:   stringConfig(node.Config, "provider", "anthropic"),
		Model:          stringConfig(node.Config, "model", ""),
		TimeoutSeconds: int(timeoutFor(node.Config).Seconds()),
		RawPrompt:      stringConfig(node.Config, "prompt", ""),
		Agent:          agent,
		DispatchID:     fmt.Sprintf("%s:%s:%d", run.ID, node.ID, executionIndex),

		ExecutionProvider: stringConfig(node.Config, "execution_provider", ""),
		Command:           commandConfig(node.Config),
	}

	in := temporal.NewNodeExecutionInput(dispatch)
	_, err := s.enqueuer.Enqueue(ctx, queue.Default, temporal.TaskTypeNodeExecution, in)
	return err
}

func isTerminal(status string) bool {
	return status == statusSucceeded || status == statusFailed || status == statusCancelled
}

func outstanding(nodeRuns []store.NodeRun) int {
	n := 0
	for _, nr := range nodeRuns {
		if nr.Status != statusSucceeded && nr.Status != statusFailed {
			n++
		}
	}
	return n
}

func stringConfig(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// commandConfig reads node_config.command, the argv a "docker" execution
// provider node runs inside its container. JSON-decoded config always
// hands back []any, so each element is asserted individually.
func commandConfig(cfg map[string]any) []string {
	raw, ok := cfg["command"].([]any)
	if !ok {
		return nil
	}
	cmd := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		cmd = append(cmd, s)
	}
	return cmd
}

func timeoutFor(cfg map[string]any) time.Duration {
	if v, ok := cfg["timeout_seconds"].(float64); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	if v, ok := cfg["timeout_seconds"].(int); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return defaultTimeoutSeconds * time.Second
}
