package gateway

import (
	"sync"
	"time"
)

// Throttle is a sliding-window message budget matching the exchange's
// per-connection rate limit. Allow consumes one slot; a denied action is
// simply skipped by the engine and re-evaluated next cycle.
type Throttle struct {
	maxCalls int
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	calls []time.Time
}

func NewThrottle(maxCalls int, interval time.Duration) *Throttle {
	if maxCalls <= 0 {
		maxCalls = 47
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Throttle{maxCalls: maxCalls, interval: interval, now: time.Now}
}

func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	cutoff := now.Add(-t.interval)
	keep := t.calls[:0]
	for _, c := range t.calls {
		if c.After(cutoff) {
			keep = append(keep, c)
		}
	}
	t.calls = keep
	if len(t.calls) >= t.maxCalls {
		return false
	}
	t.calls = append(t.calls, now)
	return true
}
