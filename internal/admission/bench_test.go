package admission

import (
	"context"
	"testing"
	"time"
)

// Benchmark note: best run with GOMAXPROCS set and go test -bench.

func BenchmarkCheck_Allow(b *testing.B) {
	limiter := newBenchmarkLimiter(b, AlgorithmTokenBucket)

	ctx := context.Background()
	request := &CheckRequest{Identifier: "client", Scope: ScopeUser}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := limiter.Check(ctx, request); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}

func BenchmarkCheck_SlidingWindow(b *testing.B) {
	limiter := newBenchmarkLimiter(b, AlgorithmSlidingWindow)

	ctx := context.Background()
	request := &CheckRequest{Identifier: "client", Scope: ScopeUser}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := limiter.Check(ctx, request); err != nil {
			b.Fatalf("unexpected error: %v", err)
		}
	}
}

func BenchmarkCheck_Parallel(b *testing.B) {
	limiter := newBenchmarkLimiter(b, AlgorithmTokenBucket)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		request := &CheckRequest{Identifier: "client", Scope: ScopeUser}
		for pb.Next() {
			if _, err := limiter.Check(ctx, request); err != nil {
				b.Fatalf("unexpected error: %v", err)
			}
		}
	})
}

func newBenchmarkLimiter(b *testing.B, algorithm Algorithm) *Limiter {
	b.Helper()
	rules := NewRuleRegistry(nil)
	if _, err := rules.Add(&Rule{
		Name:        "bench",
		Algorithm:   algorithm,
		Scope:       ScopeUser,
		MaxRequests: 1 << 30,
		Window:      time.Hour,
		Action:      ActionBlock,
		Enabled:     true,
	}); err != nil {
		b.Fatalf("failed to add rule: %v", err)
	}
	states := NewStateStore(nil, StatePolicy{})
	return NewLimiter(rules, states, nil, nil, nil, nil)
}
