// Package admission provides the admission evaluator.
package admission

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"
)

// Standard rate limit response headers.
const (
	HeaderLimit     = "X-RateLimit-Limit"
	HeaderRemaining = "X-RateLimit-Remaining"
	HeaderReset     = "X-RateLimit-Reset"
	HeaderRetry     = "Retry-After"
	HeaderViolation = "X-RateLimit-Violation"
	HeaderCount     = "X-RateLimit-Count"
)

// Limiter evaluates admission requests against registered rules.
type Limiter struct {
	rules   *RuleRegistry
	states  *StateStore
	keys    *ScopeKeyBuilder
	events  *EventDispatcher
	metrics Metrics
	logger  Logger
	now     func() time.Time

	totalChecks atomic.Int64
	allowed     atomic.Int64
	denied      atomic.Int64
	violations  atomic.Int64
	ruleErrors  atomic.Int64
}

// NewLimiter constructs a limiter. Nil collaborators fall back to
// in-memory defaults.
func NewLimiter(rules *RuleRegistry, states *StateStore, events *EventDispatcher, metrics Metrics, logger Logger, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	if rules == nil {
		rules = NewRuleRegistry(now)
	}
	if states == nil {
		states = NewStateStore(nil, StatePolicy{})
	}
	if metrics == nil {
		metrics = NewInMemoryMetrics()
	}
	return &Limiter{
		rules:   rules,
		states:  states,
		keys:    NewScopeKeyBuilder(),
		events:  events,
		metrics: metrics,
		logger:  logger,
		now:     now,
	}
}

// Rules exposes the registry for admin wiring.
func (l *Limiter) Rules() *RuleRegistry {
	if l == nil {
		return nil
	}
	return l.rules
}

// Check evaluates one request against all applicable rules and merges
// their verdicts: the request is admitted only if every blocking rule
// admits it, and the reported remaining quota is the tightest one.
func (l *Limiter) Check(ctx context.Context, req *CheckRequest) (*Result, error) {
	if req == nil {
		return nil, Wrap(CodeInvalidInput, "request is required", ErrInvalidInput)
	}
	if l == nil || l.rules == nil || l.states == nil {
		return nil, fmt.Errorf("limiter is not initialized")
	}
	start := time.Now()
	defer func() {
		l.metrics.ObserveLatency("check", time.Since(start))
	}()

	now := l.now()
	l.totalChecks.Add(1)

	result := &Result{Allowed: true, Remaining: -1, Headers: map[string]string{}}
	rules := l.rules.Applicable(req.Identifier, req.Scope, req.Endpoint)
	if len(rules) == 0 {
		l.allowed.Add(1)
		l.metrics.IncCheck("allowed", "", req.Scope.String())
		return result, nil
	}

	var binding *Rule
	var bindingDec decision
	for _, rule := range rules {
		dec, err := l.evaluateRule(rule, req, now)
		if err != nil {
			// Fail open: a faulty rule never denies traffic. It is
			// excluded from the merge and reported out-of-band.
			l.ruleErrors.Add(1)
			l.metrics.IncRuleError(rule.ID)
			l.emitRuleError(rule, req, err, now)
			continue
		}

		if !dec.allowed {
			result.ViolationDetected = true
			result.RateLimitedCount++
			l.violations.Add(1)
			l.metrics.IncViolation(rule.ID, rule.Action.String())
			l.recordViolation(rule, req, now)

			if rule.Action == ActionBlock {
				if rule.BlockFor > dec.retryAfter {
					dec.retryAfter = rule.BlockFor
				}
				result.Allowed = false
				result.RetryAfter = dec.retryAfter
				binding = rule
				bindingDec = dec
				// Short-circuit: lower-priority rules are not charged.
				break
			}
			if rule.Action == ActionThrottle && result.RetryAfter == 0 {
				result.RetryAfter = dec.retryAfter
			}
		}

		if binding == nil || dec.remaining < bindingDec.remaining {
			binding = rule
			bindingDec = dec
		}
	}

	if binding != nil {
		result.Remaining = bindingDec.remaining
		result.ResetAt = now.Add(bindingDec.resetAfter)
		l.writeHeaders(result, bindingDec)
	}

	if result.Allowed {
		l.allowed.Add(1)
		l.metrics.IncCheck("allowed", binding.AlgorithmLabel(), req.Scope.String())
	} else {
		l.denied.Add(1)
		l.metrics.IncCheck("denied", binding.AlgorithmLabel(), req.Scope.String())
	}
	return result, nil
}

// Status reports the live quota state of every applicable rule without
// consuming quota.
func (l *Limiter) Status(ctx context.Context, identifier string, scope Scope, endpoint string) []RuleStatus {
	if l == nil || l.rules == nil {
		return nil
	}
	now := l.now()

	var statuses []RuleStatus
	for _, rule := range l.rules.Applicable(identifier, scope, endpoint) {
		status := RuleStatus{
			RuleID:    rule.ID,
			RuleName:  rule.Name,
			Algorithm: rule.Algorithm,
			Action:    rule.Action,
			Limit:     rule.MaxRequests,
			Remaining: rule.MaxRequests,
		}
		key := l.keys.StateKey(rule, identifier)
		if state, ok := l.states.Peek(l.keys.KeyToString(key)); ok {
			dec := state.peek(now)
			status.Limit = dec.limit
			status.Remaining = dec.remaining
			status.ResetAfter = dec.resetAfter
			status.Exhausted = !dec.allowed
		}
		l.keys.ReleaseKey(key)
		statuses = append(statuses, status)
	}
	return statuses
}

// Reset clears algorithm state for all rules matching the request and
// reports whether any state was dropped.
func (l *Limiter) Reset(ctx context.Context, identifier string, scope Scope, endpoint string) bool {
	if l == nil || l.rules == nil || l.states == nil {
		return false
	}
	cleared := false
	for _, rule := range l.rules.Applicable(identifier, scope, endpoint) {
		key := l.keys.StateKey(rule, identifier)
		if l.states.Remove(l.keys.KeyToString(key)) {
			cleared = true
		}
		l.keys.ReleaseKey(key)
	}
	return cleared
}

// Statistics returns a snapshot of aggregate counters.
func (l *Limiter) Statistics() Statistics {
	if l == nil {
		return Statistics{}
	}
	return Statistics{
		TotalChecks:   l.totalChecks.Load(),
		Allowed:       l.allowed.Load(),
		Denied:        l.denied.Load(),
		Violations:    l.violations.Load(),
		RuleErrors:    l.ruleErrors.Load(),
		EventsDropped: l.events.Dropped(),
		ActiveStates:  l.states.Len(),
		Rules:         l.rules.Len(),
	}
}

// AddRule validates and registers a rule, announcing the change.
func (l *Limiter) AddRule(ctx context.Context, rule *Rule) (*Rule, error) {
	added, err := l.rules.Add(rule)
	if err != nil {
		return nil, err
	}
	l.emitRuleChange(added, "created")
	return added, nil
}

// UpdateRule replaces a rule and drops its accumulated state so the
// new parameters take effect immediately.
func (l *Limiter) UpdateRule(ctx context.Context, rule *Rule) (*Rule, error) {
	updated, err := l.rules.Update(rule)
	if err != nil {
		return nil, err
	}
	l.dropRuleState(updated.ID)
	l.emitRuleChange(updated, "updated")
	return updated, nil
}

// RemoveRule deletes a rule and its state, reporting whether the rule
// existed.
func (l *Limiter) RemoveRule(ctx context.Context, id string) bool {
	rule, ok := l.rules.Get(id)
	if !ok {
		return false
	}
	if !l.rules.Remove(id) {
		return false
	}
	l.dropRuleState(id)
	l.emitRuleChange(rule, "deleted")
	return true
}

func (l *Limiter) evaluateRule(rule *Rule, req *CheckRequest, now time.Time) (dec decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s evaluation panic: %v", rule.ID, r)
		}
	}()

	key := l.keys.StateKey(rule, req.Identifier)
	stateKey := l.keys.KeyToString(key)
	l.keys.ReleaseKey(key)

	state, err := l.states.Acquire(rule, stateKey, now)
	if err != nil {
		return decision{}, err
	}
	return state.admit(now, requestCost(rule, req), req.Latency), nil
}

// requestCost translates request size into token cost for bucket
// rules: one token per started KiB of body. Other algorithms always
// charge a single unit.
func requestCost(rule *Rule, req *CheckRequest) int64 {
	if rule.Algorithm != AlgorithmTokenBucket || req.Size <= 0 {
		return 1
	}
	cost := (req.Size + 1023) / 1024
	if cost < 1 {
		cost = 1
	}
	return cost
}

func (l *Limiter) writeHeaders(result *Result, dec decision) {
	remaining := dec.remaining
	if remaining < 0 {
		remaining = 0
	}
	result.Headers[HeaderLimit] = strconv.FormatInt(dec.limit, 10)
	result.Headers[HeaderRemaining] = strconv.FormatInt(remaining, 10)
	result.Headers[HeaderReset] = strconv.FormatInt(result.ResetAt.Unix(), 10)
	if result.ViolationDetected {
		result.Headers[HeaderViolation] = "true"
		result.Headers[HeaderCount] = strconv.Itoa(result.RateLimitedCount)
	}
	if !result.Allowed {
		result.Headers[HeaderRetry] = strconv.FormatInt(ceilSeconds(result.RetryAfter), 10)
	}
}

func (l *Limiter) recordViolation(rule *Rule, req *CheckRequest, now time.Time) {
	if rule.Action == ActionLogOnly {
		if l.logger != nil {
			l.logger.Info("quota exceeded", map[string]any{
				"rule_id":    rule.ID,
				"identifier": req.Identifier,
				"scope":      req.Scope.String(),
				"endpoint":   req.Endpoint,
			})
		}
		return
	}
	l.events.Emit(Event{
		Kind:       EventViolation,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Algorithm:  rule.Algorithm.String(),
		Action:     rule.Action.String(),
		Identifier: req.Identifier,
		Scope:      req.Scope.String(),
		Endpoint:   req.Endpoint,
		Timestamp:  now,
	})
}

func (l *Limiter) emitRuleError(rule *Rule, req *CheckRequest, err error, now time.Time) {
	if l.logger != nil {
		l.logger.Error("rule evaluation failed open", map[string]any{
			"rule_id": rule.ID,
			"error":   err.Error(),
		})
	}
	l.events.Emit(Event{
		Kind:       EventRuleError,
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Algorithm:  rule.Algorithm.String(),
		Identifier: req.Identifier,
		Scope:      req.Scope.String(),
		Endpoint:   req.Endpoint,
		Detail:     err.Error(),
		Timestamp:  now,
	})
}

func (l *Limiter) emitRuleChange(rule *Rule, action string) {
	l.events.Emit(Event{
		Kind:      EventRuleChange,
		RuleID:    rule.ID,
		RuleName:  rule.Name,
		Algorithm: rule.Algorithm.String(),
		Action:    action,
		Timestamp: l.now(),
	})
}

func (l *Limiter) dropRuleState(ruleID string) {
	l.states.RemoveRule(ruleID + "\x1f")
}

func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

// AlgorithmLabel returns the algorithm label, tolerating nil rules for
// metrics call sites.
func (r *Rule) AlgorithmLabel() string {
	if r == nil {
		return ""
	}
	return r.Algorithm.String()
}
