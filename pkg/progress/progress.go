// Package progress defines the progress/cancellation contract shared by the
// scanner, the reconciliation and the executor.
package progress

import (
	"context"
	"sync"
	"time"

	"github.com/sdejongh/reposync/pkg/models"
)

// DefaultInterval is the cadence at which callbacks are invoked
const DefaultInterval = 100 * time.Millisecond

// Unknown is passed as total when the amount of work is not known yet
const Unknown = -1

// Func receives (done, total, description) and returns false to cancel the
// running operation. total is Unknown while scanning.
type Func func(n, total int, description string) bool

// Throttle rate-limits a Func and turns cancellation into ErrCancelled.
// A nil *Throttle only checks the context.
type Throttle struct {
	mu       sync.Mutex
	fn       Func
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewThrottle wraps fn so it is called at most once per interval.
// interval <= 0 selects DefaultInterval.
func NewThrottle(fn Func, interval time.Duration) *Throttle {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Throttle{fn: fn, interval: interval, now: time.Now}
}

// Report checks ctx on every call and forwards to the callback once the
// interval has elapsed since the previous forward.
func (t *Throttle) Report(ctx context.Context, n, total int, description string) error {
	if err := ctx.Err(); err != nil {
		return models.ErrCancelled
	}
	if t == nil || t.fn == nil {
		return nil
	}

	t.mu.Lock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.last = now
	t.mu.Unlock()

	if !t.fn(n, total, description) {
		return models.ErrCancelled
	}
	return nil
}

// Done forwards a final report regardless of the interval
func (t *Throttle) Done(n, total int, description string) {
	if t == nil || t.fn == nil {
		return
	}
	t.fn(n, total, description)
}
