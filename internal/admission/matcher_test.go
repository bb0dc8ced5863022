package admission

import (
	"testing"
	"time"
)

func matcherRule(id string, scope Scope, scopeValue string, patterns []string) *Rule {
	return &Rule{
		ID:               id,
		Algorithm:        AlgorithmTokenBucket,
		Scope:            scope,
		ScopeValue:       scopeValue,
		MaxRequests:      10,
		Window:           time.Minute,
		EndpointPatterns: patterns,
		Enabled:          true,
	}
}

func TestApplicable_FiltersByScope(t *testing.T) {
	t.Parallel()

	registry := NewRuleRegistry(nil)
	registry.Add(matcherRule("user", ScopeUser, "", nil))
	registry.Add(matcherRule("ip", ScopeIP, "", nil))

	matched := registry.Applicable("alice", ScopeUser, "/api/orders")
	if len(matched) != 1 || matched[0].ID != "user" {
		t.Fatalf("expected only the user rule, got %#v", matched)
	}
}

func TestApplicable_ScopeValueExactAndWildcard(t *testing.T) {
	t.Parallel()

	registry := NewRuleRegistry(nil)
	registry.Add(matcherRule("any", ScopeUser, "*", nil))
	registry.Add(matcherRule("alice-only", ScopeUser, "alice", nil))

	if matched := registry.Applicable("alice", ScopeUser, ""); len(matched) != 2 {
		t.Fatalf("expected both rules for alice, got %d", len(matched))
	}
	if matched := registry.Applicable("bob", ScopeUser, ""); len(matched) != 1 {
		t.Fatalf("expected wildcard rule only for bob, got %d", len(matched))
	}
}

func TestApplicable_EndpointGlobs(t *testing.T) {
	t.Parallel()

	registry := NewRuleRegistry(nil)
	registry.Add(matcherRule("orders", ScopeUser, "*", []string{"/api/orders/*"}))
	registry.Add(matcherRule("all", ScopeUser, "*", []string{"*"}))

	matched := registry.Applicable("alice", ScopeUser, "/api/orders/42")
	if len(matched) != 2 {
		t.Fatalf("expected glob and wildcard matches, got %d", len(matched))
	}
	matched = registry.Applicable("alice", ScopeUser, "/api/users/42")
	if len(matched) != 1 || matched[0].ID != "all" {
		t.Fatalf("expected only the wildcard rule, got %#v", matched)
	}
}

func TestApplicable_SkipsDisabled(t *testing.T) {
	t.Parallel()

	registry := NewRuleRegistry(nil)
	rule := matcherRule("off", ScopeUser, "*", nil)
	rule.Enabled = false
	registry.Add(rule)

	if matched := registry.Applicable("alice", ScopeUser, ""); len(matched) != 0 {
		t.Fatalf("expected disabled rule skipped, got %d", len(matched))
	}
}

func TestApplicable_SkipsExpiredTTL(t *testing.T) {
	t.Parallel()

	clock := newFakeClock(time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
	registry := NewRuleRegistry(clock.Now)

	rule := matcherRule("ttl", ScopeUser, "*", nil)
	rule.TTL = time.Hour
	registry.Add(rule)

	if matched := registry.Applicable("alice", ScopeUser, ""); len(matched) != 1 {
		t.Fatalf("expected live rule matched")
	}
	clock.Advance(2 * time.Hour)
	if matched := registry.Applicable("alice", ScopeUser, ""); len(matched) != 0 {
		t.Fatalf("expected expired rule skipped")
	}
	// Expired rules stay registered for the admin surface.
	if _, ok := registry.Get("ttl"); !ok {
		t.Fatalf("expected expired rule still registered")
	}
}

func TestApplicable_EvaluationOrder(t *testing.T) {
	t.Parallel()

	registry := NewRuleRegistry(nil)
	first := matcherRule("first", ScopeUser, "*", nil)
	first.Priority = 1
	second := matcherRule("second", ScopeUser, "*", nil)
	second.Priority = 9
	registry.Add(first)
	registry.Add(second)

	matched := registry.Applicable("alice", ScopeUser, "")
	if len(matched) != 2 || matched[0].ID != "second" {
		t.Fatalf("expected priority order, got %#v", matched)
	}
}
