// Package admission provides the sliding window primitive.
package admission

import (
	"sync"
	"time"
)

// slidingWindow keeps the exact ordered admission timestamps for the
// rolling window. The sequence is the ground truth: eviction drops the
// monotonic prefix older than now minus the window, so one slot frees
// at a time rather than the whole quota at a window edge.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int64
	window time.Duration
	stamps []time.Time
}

func newSlidingWindow(rule *Rule) *slidingWindow {
	return &slidingWindow{limit: rule.MaxRequests, window: rule.Window}
}

func (sw *slidingWindow) admit(now time.Time, _ int64, _ time.Duration) decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.admitLocked(now, sw.limit)
}

func (sw *slidingWindow) peek(now time.Time) decision {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	sw.evictLocked(now)
	return sw.decisionLocked(now, int64(len(sw.stamps)) < sw.limit, sw.limit)
}

func (sw *slidingWindow) reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.stamps = nil
}

// admitLocked runs one admission against an explicit limit so the
// adaptive limiter can retarget the quota per call.
func (sw *slidingWindow) admitLocked(now time.Time, limit int64) decision {
	sw.evictLocked(now)

	allowed := int64(len(sw.stamps)) < limit
	if allowed {
		sw.stamps = append(sw.stamps, now)
	}
	return sw.decisionLocked(now, allowed, limit)
}

func (sw *slidingWindow) evictLocked(now time.Time) {
	cutoff := now.Add(-sw.window)
	i := 0
	for i < len(sw.stamps) && !sw.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		sw.stamps = append(sw.stamps[:0], sw.stamps[i:]...)
	}
}

func (sw *slidingWindow) decisionLocked(now time.Time, allowed bool, limit int64) decision {
	remaining := limit - int64(len(sw.stamps))
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := time.Duration(0)
	resetAfter := time.Duration(0)
	if len(sw.stamps) > 0 {
		resetAfter = sw.stamps[0].Add(sw.window).Sub(now)
		if resetAfter < 0 {
			resetAfter = 0
		}
	}
	if !allowed {
		retryAfter = resetAfter
	}
	return decision{
		allowed:    allowed,
		remaining:  remaining,
		limit:      limit,
		resetAfter: resetAfter,
		retryAfter: retryAfter,
	}
}
