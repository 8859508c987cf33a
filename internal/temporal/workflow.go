package temporal

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// defaultNodeTimeout mirrors spec §5's default node_config.timeout_seconds
// of 600, used whenever a node carries no explicit timeout.
const defaultNodeTimeout = 600 * time.Second

// NodeExecutionWorkflow runs one NodeRun dispatch as a durable Temporal
// workflow execution, generalized from the teacher's CortexAgentWorkflow
// (internal/temporal/workflow.go): a single ExecuteActivity call with
// its own ActivityOptions/RetryPolicy, rather than the teacher's
// multi-phase plan/execute/review/handoff ceremony, since
// internal/provider.Router already owns the single-retry-same-provider
// policy inside the activity. Temporal's own RetryPolicy is disabled
// (MaximumAttempts: 1) for the same reason the teacher disables it on
// execOpts: "no auto-retry, we handle it."
func NodeExecutionWorkflow(ctx workflow.Context, in NodeExecutionInput) (NodeExecutionOutput, error) {
	timeout := defaultNodeTimeout
	if in.TimeoutSeconds > 0 {
		timeout = time.Duration(in.TimeoutSeconds) * time.Second
	}
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	}
	ctx = workflow.WithActivityOptions(ctx, opts)

	var a *Activities
	var out NodeExecutionOutput
	err := workflow.ExecuteActivity(ctx, a.ExecuteNodeActivity, in).Get(ctx, &out)
	return out, err
}

// RAGIndexWorkflow runs one RAGCollection (re)index task as a durable
// workflow execution on whichever of rag.index/rag.git/rag.drive queue
// it was enqueued to.
func RAGIndexWorkflow(ctx workflow.Context, in RAGIndexInput) (RAGIndexOutput, error) {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	}
	ctx = workflow.WithActivityOptions(ctx, opts)

	var a *Activities
	var out RAGIndexOutput
	err := workflow.ExecuteActivity(ctx, a.IndexRAGCollectionActivity, in).Get(ctx, &out)
	return out, err
}
