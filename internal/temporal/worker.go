package temporal

import (
	"log"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/queue"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// StartWorker connects to Temporal and starts one worker per named task
// queue (studio.default, rag.index, rag.git, rag.drive), generalized
// from the teacher's StartWorker (internal/temporal/worker.go), which
// dialed one fixed "chum-task-queue" and registered every workflow on
// it; here each queue gets its own worker.Worker since NodeExecution and
// RAGIndex work are never competing for the same queue's concurrency
// budget.
func StartWorker(hostPort string, rt *noderun.Runtime, st *store.Store) (close func(), err error) {
	c, err := client.Dial(client.Options{HostPort: hostPort})
	if err != nil {
		return nil, err
	}

	acts := &Activities{Runtime: rt, Store: st}

	nodeWorker := worker.New(c, queue.Default, worker.Options{})
	nodeWorker.RegisterWorkflow(NodeExecutionWorkflow)
	nodeWorker.RegisterActivity(acts.ExecuteNodeActivity)

	ragWorkers := make([]worker.Worker, 0, 3)
	for _, q := range []string{queue.RAGIndex, queue.RAGGit, queue.RAGDrive} {
		w := worker.New(c, q, worker.Options{})
		w.RegisterWorkflow(RAGIndexWorkflow)
		w.RegisterActivity(acts.IndexRAGCollectionActivity)
		ragWorkers = append(ragWorkers, w)
	}

	if err := nodeWorker.Start(); err != nil {
		c.Close()
		return nil, err
	}
	for _, w := range ragWorkers {
		if err := w.Start(); err != nil {
			nodeWorker.Stop()
			c.Close()
			return nil, err
		}
	}

	log.Printf("temporal worker started on %s, %s, %s, %s", queue.Default, queue.RAGIndex, queue.RAGGit, queue.RAGDrive)

	return func() {
		nodeWorker.Stop()
		for _, w := range ragWorkers {
			w.Stop()
		}
		c.Close()
	}, nil
}
