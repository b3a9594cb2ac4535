// Package schedule decides when marathons and participants are due for a
// crawl. Trackers keep their state in memory only; a restart simply makes
// everything due again.
package schedule

import (
	"sync"
	"time"

	"github.com/jaekyeom/splitfeed/internal/tracker"
)

// Scheduler is the gate the engine consults before each crawl attempt.
type Scheduler interface {
	ShouldRunMarathon(id int64, cadence time.Duration) bool
	MarkMarathonRun(id int64)
	CanFetchParticipant(id int64) bool
	MarkParticipantFetch(id int64)
}

// Tracker implements the basic fixed-cadence schedule: one crawl per marathon
// per cadence window, plus an independent per-participant fetch window that
// throttles individual result page hits.
type Tracker struct {
	mu        sync.Mutex
	clock     tracker.Clock
	minFetch  time.Duration
	lastRun   map[int64]time.Time
	lastFetch map[int64]time.Time
}

// NewTracker builds a Tracker. minFetch of zero disables the per-participant
// window.
func NewTracker(clock tracker.Clock, minFetch time.Duration) *Tracker {
	return &Tracker{
		clock:     clock,
		minFetch:  minFetch,
		lastRun:   make(map[int64]time.Time),
		lastFetch: make(map[int64]time.Time),
	}
}

// ShouldRunMarathon reports whether the marathon's cadence window has elapsed
// since its last recorded run. Marathons never seen before are always due.
func (t *Tracker) ShouldRunMarathon(id int64, cadence time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	last, ok := t.lastRun[id]
	if !ok {
		return true
	}
	return t.clock.Now().Sub(last) >= cadence
}

// MarkMarathonRun records a crawl attempt for the marathon, successful or not.
func (t *Tracker) MarkMarathonRun(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastRun[id] = t.clock.Now()
}

// CanFetchParticipant reports whether the participant's fetch window has
// elapsed. Participants never fetched are always allowed.
func (t *Tracker) CanFetchParticipant(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.minFetch <= 0 {
		return true
	}
	last, ok := t.lastFetch[id]
	if !ok {
		return true
	}
	return t.clock.Now().Sub(last) >= t.minFetch
}

// MarkParticipantFetch records a fetch attempt for the participant.
func (t *Tracker) MarkParticipantFetch(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastFetch[id] = t.clock.Now()
}
