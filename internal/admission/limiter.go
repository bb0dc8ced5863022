// Package admission provides limiter state primitives.
package admission

import (
	"fmt"
	"time"
)

// limiterState is one scope key's mutable algorithm state. Every
// implementation is safe for concurrent use; admit and peek never
// block on anything but the instance's own lock.
type limiterState interface {
	// admit charges one request of the given cost. The latency hint is
	// consumed only by the adaptive limiter.
	admit(now time.Time, cost int64, latency time.Duration) decision
	// peek reports the current verdict without consuming quota.
	peek(now time.Time) decision
	// reset restores the state to its initial quota.
	reset()
}

// stateFactory constructs limiter state for a rule. The algorithm
// variant is resolved here, once per scope key, never per request.
type stateFactory func(rule *Rule) (limiterState, error)

func newLimiterState(rule *Rule) (limiterState, error) {
	if rule == nil {
		return nil, fmt.Errorf("rule is required: %w", ErrInvalidInput)
	}
	if rule.MaxRequests <= 0 || rule.Window <= 0 {
		return nil, fmt.Errorf("rule %s has no usable quota: %w", rule.ID, ErrInvalidInput)
	}
	switch rule.Algorithm {
	case AlgorithmTokenBucket:
		return newTokenBucket(rule), nil
	case AlgorithmSlidingWindow:
		return newSlidingWindow(rule), nil
	case AlgorithmFixedWindow:
		return newFixedWindow(rule), nil
	case AlgorithmLeakyBucket:
		return newLeakyBucket(rule), nil
	case AlgorithmAdaptive:
		return newAdaptiveLimiter(rule), nil
	default:
		return nil, fmt.Errorf("rule %s has unknown algorithm: %w", rule.ID, ErrInvalidInput)
	}
}
