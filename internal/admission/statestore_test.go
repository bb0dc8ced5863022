package admission

import (
	"sync"
	"testing"
	"time"
)

func storeRule(id string) *Rule {
	return &Rule{
		ID:          id,
		Algorithm:   AlgorithmSlidingWindow,
		Scope:       ScopeUser,
		MaxRequests: 10,
		Window:      time.Minute,
	}
}

func TestStateStore_AcquireReturnsSameInstance(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil, StatePolicy{})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	first, err := store.Acquire(storeRule("r1"), "k1", now)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	second, err := store.Acquire(storeRule("r1"), "k1", now)
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if first != second {
		t.Fatalf("expected one state instance per key")
	}
	if store.Len() != 1 {
		t.Fatalf("expected one entry, got %d", store.Len())
	}
}

func TestStateStore_AcquireRace(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil, StatePolicy{})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rule := storeRule("r1")

	var wg sync.WaitGroup
	states := make([]limiterState, 16)
	for i := range states {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			state, err := store.Acquire(rule, "contested", now)
			if err != nil {
				t.Errorf("acquire failed: %v", err)
				return
			}
			states[i] = state
		}(i)
	}
	wg.Wait()

	for i := 1; i < len(states); i++ {
		if states[i] != states[0] {
			t.Fatalf("racing acquires observed different instances")
		}
	}
}

func TestStateStore_RemoveAndRemoveRule(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil, StatePolicy{})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	store.Acquire(storeRule("r1"), "r1\x1fuser\x1f*\x1falice", now)
	store.Acquire(storeRule("r1"), "r1\x1fuser\x1f*\x1fbob", now)
	store.Acquire(storeRule("r2"), "r2\x1fuser\x1f*\x1falice", now)

	if !store.Remove("r1\x1fuser\x1f*\x1falice") {
		t.Fatalf("expected remove to succeed")
	}
	if store.Remove("r1\x1fuser\x1f*\x1falice") {
		t.Fatalf("expected second remove to report missing")
	}

	if removed := store.RemoveRule("r1\x1f"); removed != 1 {
		t.Fatalf("expected one remaining r1 entry removed, got %d", removed)
	}
	if store.Len() != 1 {
		t.Fatalf("expected only the r2 entry left, got %d", store.Len())
	}
}

func TestStateStore_SweepIdle(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil, StatePolicy{IdleFactor: 2})
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	rule := storeRule("r1")
	store.Acquire(rule, "stale", base)
	store.Acquire(rule, "fresh", base)
	store.Acquire(rule, "fresh", base.Add(90*time.Second))

	// Idle cutoff is IdleFactor * window = 2 minutes.
	removed := store.SweepIdle(base.Add(150 * time.Second))
	if removed != 1 {
		t.Fatalf("expected one stale entry swept, got %d", removed)
	}
	if _, ok := store.Peek("fresh"); !ok {
		t.Fatalf("expected fresh entry kept")
	}
	if _, ok := store.Peek("stale"); ok {
		t.Fatalf("expected stale entry gone")
	}
}

func TestStateStore_EvictsAtShardCapacity(t *testing.T) {
	t.Parallel()

	store := NewStateStore(nil, StatePolicy{Shards: 1, MaxEntriesShard: 2})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	rule := storeRule("r1")

	store.Acquire(rule, "a", now)
	store.Acquire(rule, "b", now)
	store.Acquire(rule, "c", now)

	if store.Len() != 2 {
		t.Fatalf("expected shard capped at 2 entries, got %d", store.Len())
	}
	if _, ok := store.Peek("a"); ok {
		t.Fatalf("expected oldest key evicted")
	}
}

func TestStateStore_FactoryErrorPropagates(t *testing.T) {
	t.Parallel()

	store := NewStateStore(func(rule *Rule) (limiterState, error) {
		return nil, ErrInvalidInput
	}, StatePolicy{})
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	if _, err := store.Acquire(storeRule("r1"), "k", now); err == nil {
		t.Fatalf("expected factory error")
	}
	if store.Len() != 0 {
		t.Fatalf("expected no entry stored on factory failure")
	}
}
