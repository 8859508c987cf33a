package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
)

// Task type names routed by Queue.Enqueue. These match the
// workflow.RegisterWorkflow name used by the corresponding worker.
const (
	TaskTypeNodeExecution = "node_execution"
	TaskTypeRAGIndex      = "rag_index"
)

// Queue implements queue.Enqueuer over a real Temporal client, the
// backing implementation the scheduler programs against through the
// narrow interface rather than importing go.temporal.io/sdk/client
// itself — the same seam the teacher draws with temporalClient in
// internal/scheduler/scheduler.go.
type Queue struct {
	Client client.Client
}

// Enqueue starts a workflow execution on queueName. payload must be the
// matching *Input type for taskType (NodeExecutionInput for
// TaskTypeNodeExecution, RAGIndexInput for TaskTypeRAGIndex). No
// WorkflowID is set, so Temporal generates one and it is returned as
// the taskID; Enqueue adds no Temporal-level dedupe, and duplicate
// dispatches are caught only by noderun's own dispatch registry.
func (q Queue) Enqueue(ctx context.Context, queueName, taskType string, payload any) (string, error) {
	var workflowFn any
	switch taskType {
	case TaskTypeNodeExecution:
		workflowFn = NodeExecutionWorkflow
	case TaskTypeRAGIndex:
		workflowFn = RAGIndexWorkflow
	default:
		return "", fmt.Errorf("temporal queue: unknown task type %q", taskType)
	}

	run, err := q.Client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		TaskQueue: queueName,
	}, workflowFn, payload)
	if err != nil {
		return "", fmt.Errorf("temporal queue: execute workflow: %w", err)
	}
	return run.GetID(), nil
}
