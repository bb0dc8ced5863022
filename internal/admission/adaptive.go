// Package admission provides the load-adaptive limiter.
package admission

import (
	"sync"
	"time"
)

const (
	// loadSmoothing blends fresh latency observations into the load
	// estimate; limitSmoothing retargets the quota more slowly so the
	// limit moves without step discontinuities.
	loadSmoothing  = 0.1
	limitSmoothing = 0.05

	adaptiveFloorFactor   = 0.1
	adaptiveCeilingFactor = 2.0
	minPerformanceScore   = 0.1
)

// adaptiveLimiter wraps a sliding window whose quota is retargeted on
// every call from smoothed observed latency. The limit contracts under
// load and relaxes when the system is healthy, always staying within
// [0.1, 2.0] times the configured base quota.
type adaptiveLimiter struct {
	mu           sync.Mutex
	base         float64
	window       *slidingWindow
	currentLimit float64
	systemLoad   float64
	perfScore    float64
}

func newAdaptiveLimiter(rule *Rule) *adaptiveLimiter {
	base := float64(rule.MaxRequests)
	return &adaptiveLimiter{
		base:         base,
		window:       newSlidingWindow(rule),
		currentLimit: base,
		perfScore:    1,
	}
}

func (al *adaptiveLimiter) admit(now time.Time, _ int64, latency time.Duration) decision {
	al.mu.Lock()
	if latency > 0 {
		al.observeLocked(latency)
	}
	limit := int64(al.currentLimit)
	al.mu.Unlock()

	al.window.mu.Lock()
	defer al.window.mu.Unlock()
	return al.window.admitLocked(now, limit)
}

func (al *adaptiveLimiter) peek(now time.Time) decision {
	al.mu.Lock()
	limit := int64(al.currentLimit)
	al.mu.Unlock()

	al.window.mu.Lock()
	defer al.window.mu.Unlock()
	al.window.evictLocked(now)
	used := int64(len(al.window.stamps))
	return al.window.decisionLocked(now, used < limit, limit)
}

func (al *adaptiveLimiter) reset() {
	al.mu.Lock()
	al.currentLimit = al.base
	al.systemLoad = 0
	al.perfScore = 1
	al.mu.Unlock()
	al.window.reset()
}

func (al *adaptiveLimiter) observeLocked(latency time.Duration) {
	load := latency.Seconds()
	if load > 1 {
		load = 1
	}
	if load < 0 {
		load = 0
	}
	al.systemLoad = (1-loadSmoothing)*al.systemLoad + loadSmoothing*load
	al.perfScore = 1 - al.systemLoad
	if al.perfScore < minPerformanceScore {
		al.perfScore = minPerformanceScore
	}

	target := al.base * al.perfScore
	al.currentLimit = (1-limitSmoothing)*al.currentLimit + limitSmoothing*target

	floor := adaptiveFloorFactor * al.base
	ceiling := adaptiveCeilingFactor * al.base
	if al.currentLimit < floor {
		al.currentLimit = floor
	}
	if al.currentLimit > ceiling {
		al.currentLimit = ceiling
	}
}
