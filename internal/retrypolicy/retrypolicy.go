// Package retrypolicy implements the fixed exponential-backoff retry
// schedule from spec §7 (0.5s, 2s, 8s, ±25% jitter), generalized from
// the teacher's internal/dispatch backoff helpers.
package retrypolicy

import (
	"math/rand"
	"time"
)

// Schedule is the spec §7 backoff ladder: attempt 1 waits ~0.5s, attempt
// 2 waits ~2s, attempt 3 waits ~8s. MaxAttempts caps retries at 3.
var Schedule = []time.Duration{
	500 * time.Millisecond,
	2 * time.Second,
	8 * time.Second,
}

// MaxAttempts is the maximum number of retries the scheduler performs
// for a retryable NodeRun failure (spec §7).
const MaxAttempts = 3

// JitterRatio is the +/- fraction applied to each scheduled delay.
const JitterRatio = 0.25

// Delay returns the backoff duration before retry attempt n (1-indexed),
// with jitter in [-JitterRatio, +JitterRatio] applied. Returns 0 and
// false once attempt exceeds MaxAttempts.
func Delay(attempt int) (time.Duration, bool) {
	if attempt < 1 || attempt > len(Schedule) {
		return 0, false
	}
	base := Schedule[attempt-1]
	jitter := 1.0 + (rand.Float64()*2-1)*JitterRatio
	return time.Duration(float64(base) * jitter), true
}
