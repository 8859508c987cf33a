package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/nodadyoushutup/llmctl-engine/internal/store"
)

// leaderLock lets multiple Scheduler instances share one Persistent
// Store without two of them driving the same FlowchartRun at once.
// Unchanged in shape from the teacher's internal/scheduler/leader_lock.go.
type leaderLock interface {
	Acquire(context.Context) error
	Release(context.Context) error
}

type noopLeaderLock struct{}

func (n noopLeaderLock) Acquire(_ context.Context) error { return nil }
func (n noopLeaderLock) Release(_ context.Context) error { return nil }

// NewLeaderLock returns a leaderLock for the scheduler to hold across a
// tick. spec §5 says the scheduler is stateless across events and may
// run as many instances as desired because correctness comes from the
// idempotency key and execution_index, not from exclusive leadership;
// a noop lock is therefore correct today. The constructor is kept (and
// named, rather than inlined) so a future lease-based lock table can
// slot in here without changing Scheduler's construction.
func NewLeaderLock(s *store.Store, instanceID string, ttl time.Duration, logger *slog.Logger) leaderLock {
	if logger != nil {
		logger.Debug("scheduler running without an exclusive leader lock", "instance", instanceID, "ttl", ttl)
	}
	return noopLeaderLock{}
}
