// Package admission provides the token bucket primitive.
package admission

import (
	"math"
	"sync"
	"time"
)

// tokenBucket refills continuously at a fixed rate and permits bursts
// up to its capacity. Capacity is max_requests scaled by the rule's
// burst multiplier; refill rate is max_requests per window.
type tokenBucket struct {
	mu       sync.Mutex
	capacity float64
	tokens   float64
	rate     float64
	last     time.Time
}

func newTokenBucket(rule *Rule) *tokenBucket {
	burst := rule.BurstMultiplier
	if burst < 1 {
		burst = 1
	}
	capacity := float64(rule.MaxRequests) * burst
	return &tokenBucket{
		capacity: capacity,
		tokens:   capacity,
		rate:     float64(rule.MaxRequests) / rule.Window.Seconds(),
	}
}

func (tb *tokenBucket) admit(now time.Time, cost int64, _ time.Duration) decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)

	allowed := float64(cost) <= tb.tokens
	if allowed {
		tb.tokens -= float64(cost)
	}
	return tb.decisionLocked(allowed, cost)
}

func (tb *tokenBucket) peek(now time.Time) decision {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked(now)
	return tb.decisionLocked(tb.tokens >= 1, 1)
}

func (tb *tokenBucket) reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.tokens = tb.capacity
	tb.last = time.Time{}
}

func (tb *tokenBucket) refillLocked(now time.Time) {
	if tb.last.IsZero() {
		tb.last = now
		return
	}
	elapsed := now.Sub(tb.last).Seconds()
	if elapsed > 0 {
		tb.tokens = math.Min(tb.capacity, tb.tokens+elapsed*tb.rate)
	}
	tb.last = now
}

func (tb *tokenBucket) decisionLocked(allowed bool, cost int64) decision {
	retryAfter := time.Duration(0)
	if !allowed && tb.rate > 0 {
		needed := float64(cost) - tb.tokens
		if needed < 0 {
			needed = 0
		}
		retryAfter = time.Duration(needed / tb.rate * float64(time.Second))
	}
	resetAfter := time.Duration(0)
	if tb.rate > 0 {
		resetAfter = time.Duration((tb.capacity - tb.tokens) / tb.rate * float64(time.Second))
	}
	return decision{
		allowed:    allowed,
		remaining:  int64(math.Floor(tb.tokens)),
		limit:      int64(tb.capacity),
		resetAfter: resetAfter,
		retryAfter: retryAfter,
	}
}
