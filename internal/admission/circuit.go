// Package admission provides a circuit breaker for the stats backend.
package admission

import (
	"sync"
	"time"
)

// CircuitState represents breaker state.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns a readable breaker state label.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitOptions configures breaker thresholds.
type CircuitOptions struct {
	FailureThreshold int64
	OpenDuration     time.Duration
	HalfOpenMaxCalls int64
}

// CircuitBreaker tracks consecutive failures against the statistics
// backend and sheds calls while it recovers. Losing stats flushes is
// acceptable; stalling the flusher on a dead backend is not.
type CircuitBreaker struct {
	mu               sync.Mutex
	state            CircuitState
	failures         int64
	openUntil        time.Time
	halfOpenInFlight int64
	opts             CircuitOptions
	now              func() time.Time
}

// NewCircuitBreaker constructs a breaker with defaults.
func NewCircuitBreaker(opts CircuitOptions) *CircuitBreaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = 5
	}
	if opts.OpenDuration <= 0 {
		opts.OpenDuration = 5 * time.Second
	}
	if opts.HalfOpenMaxCalls <= 0 {
		opts.HalfOpenMaxCalls = 2
	}
	return &CircuitBreaker{state: CircuitClosed, opts: opts, now: time.Now}
}

// Allow reports whether the call should proceed.
func (cb *CircuitBreaker) Allow() bool {
	if cb == nil {
		return true
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if !cb.now().Before(cb.openUntil) {
			cb.state = CircuitHalfOpen
			cb.halfOpenInFlight = 1
			return true
		}
		return false
	case CircuitHalfOpen:
		if cb.halfOpenInFlight < cb.opts.HalfOpenMaxCalls {
			cb.halfOpenInFlight++
			return true
		}
		return false
	default:
		return true
	}
}

// OnSuccess records a successful call, closing the breaker from
// half-open.
func (cb *CircuitBreaker) OnSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitHalfOpen:
		cb.state = CircuitClosed
		cb.failures = 0
		cb.halfOpenInFlight = 0
	case CircuitClosed:
		cb.failures = 0
	}
}

// OnFailure records a failure, tripping the breaker at the threshold.
func (cb *CircuitBreaker) OnFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitHalfOpen {
		cb.trip()
		return
	}
	cb.failures++
	if cb.failures >= cb.opts.FailureThreshold {
		cb.trip()
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	if cb == nil {
		return CircuitClosed
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == CircuitOpen && !cb.now().Before(cb.openUntil) {
		return CircuitHalfOpen
	}
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.failures = cb.opts.FailureThreshold
	cb.halfOpenInFlight = 0
	cb.openUntil = cb.now().Add(cb.opts.OpenDuration)
}
