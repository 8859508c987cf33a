// Package queue defines the narrow Enqueuer seam the Flowchart
// Execution Scheduler programs against, so it never imports the
// Temporal SDK directly. Generalized from the teacher's
// internal/scheduler/scheduler.go temporalClient interface shape, which
// keeps the scheduler talking to an interface instead of a concrete
// client.Client.
package queue

import "context"

// Named task queues. RAG indexing tasks are routed by source kind so a
// slow Google Drive crawl can't starve a git-push-triggered reindex.
const (
	Default  = "studio.default"
	RAGIndex = "rag.index"
	RAGGit   = "rag.git"
	RAGDrive = "rag.drive"
)

// QueueForRAGSourceKind maps an RAGCollection source_kind to the queue
// its indexing task is enqueued on.
func QueueForRAGSourceKind(sourceKind string) string {
	switch sourceKind {
	case "git":
		return RAGGit
	case "drive", "google_drive":
		return RAGDrive
	default:
		return RAGIndex
	}
}

// Enqueuer submits one task to a named queue. task_type identifies the
// workflow/activity the backing implementation should start; payload is
// its input, passed through opaquely.
type Enqueuer interface {
	Enqueue(ctx context.Context, queueName, taskType string, payload any) (taskID string, err error)
}
