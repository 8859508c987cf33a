package temporal

import (
	"context"
	"fmt"

	"github.com/nodadyoushutup/llmctl-engine/internal/noderun"
	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// Activities holds the dependencies a workflow's activities run against.
// Grounded on the teacher's Activities struct (internal/temporal/types.go)
// which bundled *store.Store/config.Tiers/*graph.DAG the same way;
// narrowed here to the one dependency node execution actually needs.
type Activities struct {
	Runtime *noderun.Runtime
	Store   *store.Store
}

// ExecuteNodeActivity runs one NodeRun dispatch to completion and
// persists it. It never returns a Temporal-retryable error for a
// dispatch failure — noderun.Runtime already records failures as a
// NodeRun row with a RunError, which is the durable record the
// scheduler reads back; only a transport/serialization error talking to
// the store itself propagates as an activity error.
func (a *Activities) ExecuteNodeActivity(ctx context.Context, in NodeExecutionInput) (NodeExecutionOutput, error) {
	nr, err := a.Runtime.Execute(ctx, in.toDispatch())
	if err != nil {
		return NodeExecutionOutput{}, fmt.Errorf("temporal: execute node activity: %w", err)
	}
	out := NodeExecutionOutput{NodeRunID: nr.ID, Status: nr.Status}
	if nr.Error != nil {
		out.ErrorCode = nr.Error.Code
	}
	return out, nil
}

// IndexRAGCollectionActivity records that a RAGCollection has been
// (re)indexed. Document parsing/chunking is out of scope; this activity
// only flips the collection's health so the retrieval contract has a
// ready collection to query.
func (a *Activities) IndexRAGCollectionActivity(ctx context.Context, in RAGIndexInput) (RAGIndexOutput, error) {
	coll, err := a.Store.GetRAGCollection(ctx, in.CollectionID)
	if err != nil {
		return RAGIndexOutput{}, fmt.Errorf("temporal: get rag collection: %w", err)
	}
	if coll == nil {
		return RAGIndexOutput{}, fmt.Errorf("temporal: rag collection %s not found", in.CollectionID)
	}
	coll.Health = "ok"
	if err := a.Store.UpsertRAGCollection(ctx, *coll); err != nil {
		return RAGIndexOutput{}, fmt.Errorf("temporal: upsert rag collection: %w", err)
	}
	return RAGIndexOutput{CollectionID: coll.ID, Indexed: true}, nil
}
