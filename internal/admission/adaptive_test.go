package admission

import (
	"testing"
	"time"
)

func adaptiveRule(limit int64, window time.Duration) *Rule {
	return &Rule{
		ID:          "ad",
		Algorithm:   AlgorithmAdaptive,
		Scope:       ScopeUser,
		MaxRequests: limit,
		Window:      window,
	}
}

func TestAdaptiveLimiter_HealthyLatencyKeepsLimit(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	al := newAdaptiveLimiter(adaptiveRule(100, time.Minute))

	for i := 0; i < 50; i++ {
		al.admit(base.Add(time.Duration(i)*time.Millisecond), 1, time.Millisecond)
	}

	al.mu.Lock()
	limit := al.currentLimit
	al.mu.Unlock()
	if limit < 95 || limit > 100 {
		t.Fatalf("expected limit near base under light load, got %f", limit)
	}
}

func TestAdaptiveLimiter_HighLatencyShrinksLimit(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	al := newAdaptiveLimiter(adaptiveRule(100, time.Minute))

	for i := 0; i < 500; i++ {
		al.admit(base.Add(time.Duration(i)*time.Millisecond), 1, 2*time.Second)
	}

	al.mu.Lock()
	limit := al.currentLimit
	al.mu.Unlock()
	if limit >= 100 {
		t.Fatalf("expected limit to contract under load, got %f", limit)
	}
	if limit < 10 {
		t.Fatalf("expected limit clamped at 10%% of base, got %f", limit)
	}
}

func TestAdaptiveLimiter_EnforcesCurrentLimit(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	al := newAdaptiveLimiter(adaptiveRule(3, time.Minute))

	for i := 0; i < 3; i++ {
		dec := al.admit(base, 1, 0)
		if !dec.allowed {
			t.Fatalf("request %d: expected allow, got %#v", i, dec)
		}
	}
	if al.admit(base, 1, 0).allowed {
		t.Fatalf("expected deny at current limit")
	}
}

func TestAdaptiveLimiter_ResetRestoresBase(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	al := newAdaptiveLimiter(adaptiveRule(100, time.Minute))

	for i := 0; i < 200; i++ {
		al.admit(base, 1, time.Second)
	}
	al.reset()

	al.mu.Lock()
	limit := al.currentLimit
	load := al.systemLoad
	al.mu.Unlock()
	if limit != 100 || load != 0 {
		t.Fatalf("expected reset to base, got limit %f load %f", limit, load)
	}
}
