package noderun

import "context"

// DispatchRegistrar is the subset of store.Store's dispatch bookkeeping
// the runtime needs, named so noderun doesn't import the whole store
// package surface for one method.
type DispatchRegistrar interface {
	RegisterDispatch(ctx context.Context, executionID, dispatchID string) (bool, error)
}

// RegisterDispatch records (executionID, dispatchID) and reports whether
// this is the first time the pair has been seen. It is a thin wrapper
// over store.Store.RegisterDispatch: services/execution/idempotency.py's
// register_dispatch_key held its (execution_id, dispatch_id) -> first_seen_ts
// map entirely in process memory, which loses duplicate-dispatch
// protection across a restart; store.RegisterDispatch already persists
// the same 24h-TTL registry, so this wrapper is the noderun-facing name
// for that call rather than a second in-memory cache.
func RegisterDispatch(ctx context.Context, registrar DispatchRegistrar, executionID, dispatchID string) (firstSeen bool, err error) {
	return registrar.RegisterDispatch(ctx, executionID, dispatchID)
}
