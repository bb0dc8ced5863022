// Package admission provides the leaky bucket primitive.
package admission

import (
	"math"
	"sync"
	"time"
)

// leakyBucket models a queue draining at a constant rate. Unlike the
// token bucket it smooths bursts into a steady output rate instead of
// permitting them outright.
type leakyBucket struct {
	mu       sync.Mutex
	capacity float64
	leakRate float64
	level    float64
	last     time.Time
}

func newLeakyBucket(rule *Rule) *leakyBucket {
	burst := rule.BurstMultiplier
	if burst < 1 {
		burst = 1
	}
	return &leakyBucket{
		capacity: float64(rule.MaxRequests) * burst,
		leakRate: float64(rule.MaxRequests) / rule.Window.Seconds(),
	}
}

func (lb *leakyBucket) admit(now time.Time, _ int64, _ time.Duration) decision {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(now)

	allowed := lb.level < lb.capacity
	if allowed {
		lb.level++
	}
	return lb.decisionLocked(allowed)
}

func (lb *leakyBucket) peek(now time.Time) decision {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	lb.leakLocked(now)
	return lb.decisionLocked(lb.level < lb.capacity)
}

func (lb *leakyBucket) reset() {
	lb.mu.Lock()
	defer lb.mu.Unlock()
	lb.level = 0
	lb.last = time.Time{}
}

func (lb *leakyBucket) leakLocked(now time.Time) {
	if lb.last.IsZero() {
		lb.last = now
		return
	}
	elapsed := now.Sub(lb.last).Seconds()
	if elapsed > 0 {
		lb.level = math.Max(0, lb.level-elapsed*lb.leakRate)
	}
	lb.last = now
}

func (lb *leakyBucket) decisionLocked(allowed bool) decision {
	remaining := int64(math.Floor(lb.capacity - lb.level))
	if remaining < 0 {
		remaining = 0
	}
	retryAfter := time.Duration(0)
	if !allowed && lb.leakRate > 0 {
		// Time until one slot drains.
		over := lb.level - lb.capacity + 1
		if over < 0 {
			over = 0
		}
		retryAfter = time.Duration(over / lb.leakRate * float64(time.Second))
	}
	resetAfter := time.Duration(0)
	if lb.leakRate > 0 {
		resetAfter = time.Duration(lb.level / lb.leakRate * float64(time.Second))
	}
	return decision{
		allowed:    allowed,
		remaining:  remaining,
		limit:      int64(lb.capacity),
		resetAfter: resetAfter,
		retryAfter: retryAfter,
	}
}
