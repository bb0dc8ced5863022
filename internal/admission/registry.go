// Package admission provides rule registration and storage.
package admission

import (
	"fmt"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// RuleRegistry stores admission rules with copy-on-write snapshots.
// Reads on the hot path never take the write lock: the matcher walks a
// pre-sorted immutable snapshot.
type RuleRegistry struct {
	mu   sync.Mutex
	snap atomic.Value
	now  func() time.Time
}

type ruleSnapshot struct {
	// ordered is sorted by priority descending, ties in insertion
	// order, so the matcher's output order is stable.
	ordered []*Rule
	byID    map[string]*Rule
	seq     map[string]int64
	nextSeq int64
}

// NewRuleRegistry creates an empty registry.
func NewRuleRegistry(now func() time.Time) *RuleRegistry {
	if now == nil {
		now = time.Now
	}
	registry := &RuleRegistry{now: now}
	registry.snap.Store(&ruleSnapshot{
		byID: map[string]*Rule{},
		seq:  map[string]int64{},
	})
	return registry
}

// Add validates and registers a rule, assigning an ID when the caller
// left it empty. Malformed rules are rejected before becoming active.
func (rr *RuleRegistry) Add(rule *Rule) (*Rule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	clone := cloneRule(rule)
	if clone.ID == "" {
		clone.ID = uuid.NewString()
	}
	normalizeRule(clone)
	clone.CreatedAt = rr.now()
	clone.UpdatedAt = clone.CreatedAt

	snapshot := rr.snapshot()
	if _, ok := snapshot.byID[clone.ID]; ok {
		return nil, Wrap(CodeConflict, fmt.Sprintf("rule %s already exists", clone.ID), ErrConflict)
	}
	rr.storeLocked(snapshot, clone, snapshot.nextSeq)
	return cloneRule(clone), nil
}

// Update replaces a registered rule, keeping its insertion order and
// creation time.
func (rr *RuleRegistry) Update(rule *Rule) (*Rule, error) {
	if rule == nil || rule.ID == "" {
		return nil, Wrap(CodeInvalidInput, "rule id is required", ErrInvalidInput)
	}
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	snapshot := rr.snapshot()
	existing, ok := snapshot.byID[rule.ID]
	if !ok {
		return nil, Wrap(CodeNotFound, fmt.Sprintf("rule %s not found", rule.ID), ErrNotFound)
	}

	clone := cloneRule(rule)
	normalizeRule(clone)
	clone.CreatedAt = existing.CreatedAt
	clone.UpdatedAt = rr.now()
	rr.storeLocked(snapshot, clone, snapshot.seq[rule.ID])
	return cloneRule(clone), nil
}

// Remove deletes a rule and reports whether it existed.
func (rr *RuleRegistry) Remove(id string) bool {
	if id == "" {
		return false
	}

	rr.mu.Lock()
	defer rr.mu.Unlock()

	snapshot := rr.snapshot()
	if _, ok := snapshot.byID[id]; !ok {
		return false
	}

	next := &ruleSnapshot{
		byID:    make(map[string]*Rule, len(snapshot.byID)-1),
		seq:     make(map[string]int64, len(snapshot.byID)-1),
		nextSeq: snapshot.nextSeq,
	}
	for ruleID, rule := range snapshot.byID {
		if ruleID == id {
			continue
		}
		next.byID[ruleID] = rule
		next.seq[ruleID] = snapshot.seq[ruleID]
	}
	next.rebuildOrder()
	rr.snap.Store(next)
	return true
}

// Get returns a rule by ID.
func (rr *RuleRegistry) Get(id string) (*Rule, bool) {
	snapshot := rr.snapshot()
	rule, ok := snapshot.byID[id]
	if !ok {
		return nil, false
	}
	return cloneRule(rule), true
}

// List returns all rules in evaluation order.
func (rr *RuleRegistry) List() []*Rule {
	snapshot := rr.snapshot()
	rules := make([]*Rule, len(snapshot.ordered))
	for i, rule := range snapshot.ordered {
		rules[i] = cloneRule(rule)
	}
	return rules
}

// Len returns the number of registered rules.
func (rr *RuleRegistry) Len() int64 {
	return int64(len(rr.snapshot().ordered))
}

// orderedRules returns the live snapshot slice for the matcher.
// Callers must not mutate the returned rules.
func (rr *RuleRegistry) orderedRules() []*Rule {
	return rr.snapshot().ordered
}

func (rr *RuleRegistry) snapshot() *ruleSnapshot {
	if snapshot, ok := rr.snap.Load().(*ruleSnapshot); ok && snapshot != nil {
		return snapshot
	}
	return &ruleSnapshot{byID: map[string]*Rule{}, seq: map[string]int64{}}
}

func (rr *RuleRegistry) storeLocked(snapshot *ruleSnapshot, rule *Rule, seq int64) {
	next := &ruleSnapshot{
		byID:    make(map[string]*Rule, len(snapshot.byID)+1),
		seq:     make(map[string]int64, len(snapshot.byID)+1),
		nextSeq: snapshot.nextSeq,
	}
	for id, existing := range snapshot.byID {
		next.byID[id] = existing
		next.seq[id] = snapshot.seq[id]
	}
	next.byID[rule.ID] = rule
	next.seq[rule.ID] = seq
	if seq == snapshot.nextSeq {
		next.nextSeq++
	}
	next.rebuildOrder()
	rr.snap.Store(next)
}

func (s *ruleSnapshot) rebuildOrder() {
	s.ordered = make([]*Rule, 0, len(s.byID))
	for _, rule := range s.byID {
		s.ordered = append(s.ordered, rule)
	}
	sort.SliceStable(s.ordered, func(i, j int) bool {
		a, b := s.ordered[i], s.ordered[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return s.seq[a.ID] < s.seq[b.ID]
	})
}

func validateRule(rule *Rule) error {
	if rule == nil {
		return Wrap(CodeInvalidInput, "rule is required", ErrInvalidInput)
	}
	if rule.MaxRequests <= 0 {
		return Wrap(CodeInvalidInput, "max requests must be positive", ErrInvalidInput)
	}
	if rule.Window <= 0 {
		return Wrap(CodeInvalidInput, "window must be positive", ErrInvalidInput)
	}
	if rule.BurstMultiplier != 0 && rule.BurstMultiplier < 1 {
		return Wrap(CodeInvalidInput, "burst multiplier must be at least 1.0", ErrInvalidInput)
	}
	if rule.Algorithm < AlgorithmTokenBucket || rule.Algorithm > AlgorithmAdaptive {
		return Wrap(CodeInvalidInput, "unknown algorithm", ErrInvalidInput)
	}
	if rule.Scope < ScopeGlobal || rule.Scope > ScopeAPIKey {
		return Wrap(CodeInvalidInput, "unknown scope", ErrInvalidInput)
	}
	if rule.Action < ActionBlock || rule.Action > ActionLogOnly {
		return Wrap(CodeInvalidInput, "unknown action", ErrInvalidInput)
	}
	for _, pattern := range rule.EndpointPatterns {
		if _, err := path.Match(pattern, ""); err != nil {
			return Wrap(CodeInvalidInput, fmt.Sprintf("bad endpoint pattern %q", pattern), ErrInvalidInput)
		}
	}
	return nil
}

func normalizeRule(rule *Rule) {
	if rule.BurstMultiplier == 0 {
		rule.BurstMultiplier = 1
	}
	if rule.Weight == 0 {
		rule.Weight = 1
	}
	if rule.ScopeValue == "" {
		rule.ScopeValue = "*"
	}
}

func cloneRule(rule *Rule) *Rule {
	if rule == nil {
		return nil
	}
	clone := *rule
	if rule.EndpointPatterns != nil {
		clone.EndpointPatterns = append([]string(nil), rule.EndpointPatterns...)
	}
	return &clone
}
