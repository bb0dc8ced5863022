package admission

import (
	"testing"
	"time"
)

func bucketRule(limit int64, window time.Duration, burst float64) *Rule {
	return &Rule{
		ID:              "tb",
		Algorithm:       AlgorithmTokenBucket,
		Scope:           ScopeUser,
		MaxRequests:     limit,
		Window:          window,
		BurstMultiplier: burst,
	}
}

func TestTokenBucket_ExhaustsThenRefills(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(bucketRule(10, 10*time.Second, 1))

	for i := 0; i < 10; i++ {
		dec := tb.admit(base, 1, 0)
		if !dec.allowed {
			t.Fatalf("request %d: expected allow, got %#v", i, dec)
		}
	}

	dec := tb.admit(base, 1, 0)
	if dec.allowed {
		t.Fatalf("expected deny after quota exhausted, got %#v", dec)
	}
	if dec.retryAfter != time.Second {
		t.Fatalf("expected retry after 1s at rate 1/s, got %v", dec.retryAfter)
	}

	dec = tb.admit(base.Add(time.Second), 1, 0)
	if !dec.allowed {
		t.Fatalf("expected allow after refill, got %#v", dec)
	}
}

func TestTokenBucket_BurstCapacity(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(bucketRule(10, 10*time.Second, 2))

	allowed := 0
	for i := 0; i < 25; i++ {
		if tb.admit(base, 1, 0).allowed {
			allowed++
		}
	}
	if allowed != 20 {
		t.Fatalf("expected capacity of 20 with burst 2.0, admitted %d", allowed)
	}
}

func TestTokenBucket_RefillNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(bucketRule(10, 10*time.Second, 1))

	tb.admit(base, 1, 0)
	dec := tb.peek(base.Add(time.Hour))
	if dec.remaining != 10 {
		t.Fatalf("expected tokens capped at capacity, got %d", dec.remaining)
	}
}

func TestTokenBucket_CostCharging(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(bucketRule(10, 10*time.Second, 1))

	dec := tb.admit(base, 8, 0)
	if !dec.allowed || dec.remaining != 2 {
		t.Fatalf("expected allow with 2 remaining, got %#v", dec)
	}
	dec = tb.admit(base, 4, 0)
	if dec.allowed {
		t.Fatalf("expected deny when cost exceeds tokens, got %#v", dec)
	}
	dec = tb.admit(base, 2, 0)
	if !dec.allowed {
		t.Fatalf("expected allow for affordable cost, got %#v", dec)
	}
}

func TestTokenBucket_PeekDoesNotConsume(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	tb := newTokenBucket(bucketRule(5, 5*time.Second, 1))

	for i := 0; i < 10; i++ {
		tb.peek(base)
	}
	dec := tb.admit(base, 1, 0)
	if !dec.allowed || dec.remaining != 4 {
		t.Fatalf("expected full quota after peeks, got %#v", dec)
	}
}
