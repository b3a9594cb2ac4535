package schedule

import (
	"sync"
	"time"
)

// Adaptive is implemented by schedulers that widen a marathon's cadence
// after consecutive failures. The engine feeds outcomes back through it.
type Adaptive interface {
	Scheduler
	RecordSuccess(id int64)
	RecordFailure(id int64)
	BackoffFor(id int64, cadence time.Duration) time.Duration
}

// DefaultBackoffCap bounds the cadence multiplier applied after repeated
// failures, so a flapping provider is still retried within a sane window.
const DefaultBackoffCap = 30

// AdaptiveTracker layers exponential backoff on top of the basic Tracker.
// Each consecutive failure doubles the effective cadence up to the cap;
// one success resets it.
type AdaptiveTracker struct {
	*Tracker

	mu       sync.Mutex
	failures map[int64]int
	capMult  int
}

// NewAdaptiveTracker builds an AdaptiveTracker. capMult values below one
// fall back to DefaultBackoffCap.
func NewAdaptiveTracker(base *Tracker, capMult int) *AdaptiveTracker {
	if capMult < 1 {
		capMult = DefaultBackoffCap
	}
	return &AdaptiveTracker{
		Tracker:  base,
		failures: make(map[int64]int),
		capMult:  capMult,
	}
}

// ShouldRunMarathon applies the backed-off cadence instead of the raw one.
func (t *AdaptiveTracker) ShouldRunMarathon(id int64, cadence time.Duration) bool {
	return t.Tracker.ShouldRunMarathon(id, t.BackoffFor(id, cadence))
}

// RecordSuccess clears the failure streak and marks the run.
func (t *AdaptiveTracker) RecordSuccess(id int64) {
	t.mu.Lock()
	delete(t.failures, id)
	t.mu.Unlock()
	t.MarkMarathonRun(id)
}

// RecordFailure extends the failure streak and marks the run, so the next
// attempt waits out the widened window.
func (t *AdaptiveTracker) RecordFailure(id int64) {
	t.mu.Lock()
	t.failures[id]++
	t.mu.Unlock()
	t.MarkMarathonRun(id)
}

// BackoffFor returns the effective cadence for the marathon given its
// current failure streak: cadence * min(2^failures, cap).
func (t *AdaptiveTracker) BackoffFor(id int64, cadence time.Duration) time.Duration {
	t.mu.Lock()
	n := t.failures[id]
	t.mu.Unlock()
	return cadence * time.Duration(backoffMultiplier(n, t.capMult))
}

func backoffMultiplier(failures, capMult int) int {
	m := 1
	for i := 0; i < failures; i++ {
		m <<= 1
		if m >= capMult {
			return capMult
		}
	}
	return m
}
