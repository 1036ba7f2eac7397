// Package traffic keeps a sliding window of slash-command outcomes. It feeds
// the health endpoint's degraded check and the rate-limit gauges.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies a finished request.
type Outcome uint8

const (
	Success Outcome = iota // answered, including help and unresolvable addresses
	Error                  // upstream failure
	Denied                 // rate limited (429)
)

// retention bounds memory; windows longer than this see truncated counts.
const retention = 10 * time.Minute

var defaultTracker = NewTracker()

// RecordSuccess records a successful request outcome.
func RecordSuccess() { defaultTracker.Record(Success) }

// RecordError records a failed request outcome.
func RecordError() { defaultTracker.Record(Error) }

// RecordDenied records a rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied) }

// RequestCount returns the number of outcomes of any kind within the window.
func RequestCount(window time.Duration) int {
	return defaultTracker.RequestCount(window)
}

// DenialCount returns the number of denials within the window.
func DenialCount(window time.Duration) int {
	return defaultTracker.Count(Denied, window)
}

// ErrorRate returns (errorCount, totalCount) within the window. totalCount = successes + errors.
func ErrorRate(window time.Duration) (errors, total int) {
	return defaultTracker.ErrorRate(window)
}

// Reset clears all recorded outcomes. For tests only.
func Reset() {
	defaultTracker.Reset()
}

type event struct {
	at      time.Time
	outcome Outcome
}

// Tracker records timestamped outcomes in arrival order.
type Tracker struct {
	mu     sync.Mutex
	events []event
	now    func() time.Time
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Record appends an outcome at the current time.
func (t *Tracker) Record(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.events = append(t.events, event{at: now, outcome: o})
	t.pruneLocked(now)
}

// Count returns the number of outcomes of kind o within the window.
func (t *Tracker) Count(o Outcome, window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindow(window, func(e event) {
		if e.outcome == o {
			n++
		}
	})
	return n
}

// RequestCount returns the number of outcomes of any kind within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	t.eachInWindow(window, func(event) { n++ })
	return n
}

// ErrorRate returns (errorCount, successCount+errorCount) within the window.
// Denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.eachInWindow(window, func(e event) {
		switch e.outcome {
		case Error:
			errors++
			total++
		case Success:
			total++
		}
	})
	return errors, total
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// eachInWindow calls fn for events newer than now-window. Must be called with mu held.
func (t *Tracker) eachInWindow(window time.Duration, fn func(event)) {
	cutoff := t.now().Add(-window)
	for i := len(t.events) - 1; i >= 0 && !t.events[i].at.Before(cutoff); i-- {
		fn(t.events[i])
	}
}

// pruneLocked drops events older than retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-retention)
	i := 0
	for ; i < len(t.events) && t.events[i].at.Before(cutoff); i++ {
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}
