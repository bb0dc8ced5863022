// Package admission defines the core rule and request models.
package admission

import (
	"fmt"
	"time"
)

// Algorithm selects the rate limiting state machine for a rule.
type Algorithm int

const (
	AlgorithmTokenBucket Algorithm = iota
	AlgorithmSlidingWindow
	AlgorithmFixedWindow
	AlgorithmLeakyBucket
	AlgorithmAdaptive
)

// String returns the wire label for the algorithm.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmTokenBucket:
		return "token_bucket"
	case AlgorithmSlidingWindow:
		return "sliding_window"
	case AlgorithmFixedWindow:
		return "fixed_window"
	case AlgorithmLeakyBucket:
		return "leaky_bucket"
	case AlgorithmAdaptive:
		return "adaptive"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a wire label to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "token_bucket":
		return AlgorithmTokenBucket, nil
	case "sliding_window":
		return AlgorithmSlidingWindow, nil
	case "fixed_window":
		return AlgorithmFixedWindow, nil
	case "leaky_bucket":
		return AlgorithmLeakyBucket, nil
	case "adaptive":
		return AlgorithmAdaptive, nil
	default:
		return 0, fmt.Errorf("unknown algorithm %q: %w", s, ErrInvalidInput)
	}
}

// Scope is the dimension along which a quota is partitioned.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeIP
	ScopeUser
	ScopeOrganization
	ScopeEndpoint
	ScopeAPIKey
)

// String returns the wire label for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeGlobal:
		return "global"
	case ScopeIP:
		return "ip"
	case ScopeUser:
		return "user"
	case ScopeOrganization:
		return "organization"
	case ScopeEndpoint:
		return "endpoint"
	case ScopeAPIKey:
		return "api_key"
	default:
		return "unknown"
	}
}

// ParseScope maps a wire label to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "global":
		return ScopeGlobal, nil
	case "ip":
		return ScopeIP, nil
	case "user":
		return ScopeUser, nil
	case "organization":
		return ScopeOrganization, nil
	case "endpoint":
		return ScopeEndpoint, nil
	case "api_key":
		return ScopeAPIKey, nil
	default:
		return 0, fmt.Errorf("unknown scope %q: %w", s, ErrInvalidInput)
	}
}

// Action describes what a rule does when its quota is exceeded.
type Action int

const (
	ActionBlock Action = iota
	ActionThrottle
	ActionWarn
	ActionLogOnly
)

// String returns the wire label for the action.
func (a Action) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionThrottle:
		return "throttle"
	case ActionWarn:
		return "warn"
	case ActionLogOnly:
		return "log_only"
	default:
		return "unknown"
	}
}

// ParseAction maps a wire label to an Action.
func ParseAction(s string) (Action, error) {
	switch s {
	case "block":
		return ActionBlock, nil
	case "throttle":
		return ActionThrottle, nil
	case "warn":
		return ActionWarn, nil
	case "log_only":
		return ActionLogOnly, nil
	default:
		return 0, fmt.Errorf("unknown action %q: %w", s, ErrInvalidInput)
	}
}

// Rule describes one admission quota.
type Rule struct {
	ID               string
	Name             string
	Algorithm        Algorithm
	Scope            Scope
	ScopeValue       string
	MaxRequests      int64
	Window           time.Duration
	BurstMultiplier  float64
	BlockFor         time.Duration
	Action           Action
	EndpointPatterns []string
	Priority         int
	Weight           float64
	TTL              time.Duration
	Enabled          bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Expired reports whether the rule's TTL has elapsed. Expired rules
// are skipped during matching but never removed automatically.
func (r *Rule) Expired(now time.Time) bool {
	if r == nil || r.TTL <= 0 {
		return false
	}
	return now.After(r.CreatedAt.Add(r.TTL))
}

// CheckRequest captures a single admission decision request.
type CheckRequest struct {
	Identifier string
	Scope      Scope
	Endpoint   string
	// Latency is the caller-observed upstream latency, consumed by
	// adaptive rules. Zero means not measured.
	Latency time.Duration
	// Size is the request body size in bytes, consumed by
	// token bucket rules for weight-by-size accounting.
	Size int64
}

// Result reports the merged outcome of one admission check.
type Result struct {
	Allowed           bool
	Remaining         int64
	ResetAt           time.Time
	Headers           map[string]string
	RetryAfter        time.Duration
	ViolationDetected bool
	RateLimitedCount  int
}

// RuleStatus reports one rule's live quota state for a caller.
type RuleStatus struct {
	RuleID     string
	RuleName   string
	Algorithm  Algorithm
	Action     Action
	Limit      int64
	Remaining  int64
	ResetAfter time.Duration
	Exhausted  bool
}

// Statistics aggregates evaluator counters since process start.
type Statistics struct {
	TotalChecks   int64
	Allowed       int64
	Denied        int64
	Violations    int64
	RuleErrors    int64
	EventsDropped int64
	ActiveStates  int64
	Rules         int64
}

// decision is one algorithm instance's verdict for a single request.
type decision struct {
	allowed    bool
	remaining  int64
	limit      int64
	resetAfter time.Duration
	retryAfter time.Duration
}
