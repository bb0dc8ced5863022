// Package admission provides the fixed window primitive.
package admission

import (
	"sync"
	"time"
)

// fixedWindow counts admissions inside floor-aligned windows. The
// counter resets inside the admission call when the window advances,
// never via a background sweep. A caller can obtain up to twice the
// quota within one window span by straddling the boundary; that bias
// is inherent to the algorithm and kept as-is.
type fixedWindow struct {
	mu          sync.Mutex
	limit       int64
	window      time.Duration
	windowStart time.Time
	count       int64
}

func newFixedWindow(rule *Rule) *fixedWindow {
	return &fixedWindow{limit: rule.MaxRequests, window: rule.Window}
}

func (fw *fixedWindow) admit(now time.Time, _ int64, _ time.Duration) decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.rollLocked(now)

	allowed := fw.count < fw.limit
	if allowed {
		fw.count++
	}
	return fw.decisionLocked(now, allowed)
}

func (fw *fixedWindow) peek(now time.Time) decision {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.rollLocked(now)
	return fw.decisionLocked(now, fw.count < fw.limit)
}

func (fw *fixedWindow) reset() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.windowStart = time.Time{}
	fw.count = 0
}

func (fw *fixedWindow) rollLocked(now time.Time) {
	windowStart := now.Truncate(fw.window)
	if !windowStart.Equal(fw.windowStart) {
		fw.windowStart = windowStart
		fw.count = 0
	}
}

func (fw *fixedWindow) decisionLocked(now time.Time, allowed bool) decision {
	remaining := fw.limit - fw.count
	if remaining < 0 {
		remaining = 0
	}
	resetAfter := fw.windowStart.Add(fw.window).Sub(now)
	if resetAfter < 0 {
		resetAfter = 0
	}
	retryAfter := time.Duration(0)
	if !allowed {
		retryAfter = resetAfter
	}
	return decision{
		allowed:    allowed,
		remaining:  remaining,
		limit:      fw.limit,
		resetAfter: resetAfter,
		retryAfter: retryAfter,
	}
}
