// Package admission provides the background statistics flusher.
package admission

import (
	"context"
	"errors"
	"time"
)

// StatsFlusher periodically ships counter deltas to the stats store.
// It remembers the last shipped snapshot so each flush is incremental
// and a missed flush is retried implicitly on the next tick.
type StatsFlusher struct {
	limiter  *Limiter
	store    *RedisStatsStore
	interval time.Duration
	logger   Logger
	last     Statistics
}

// NewStatsFlusher constructs a flusher.
func NewStatsFlusher(limiter *Limiter, store *RedisStatsStore, interval time.Duration, logger Logger) *StatsFlusher {
	return &StatsFlusher{limiter: limiter, store: store, interval: interval, logger: logger}
}

// Start begins the flush loop.
func (f *StatsFlusher) Start(ctx context.Context) error {
	if f == nil || f.limiter == nil || f.store == nil {
		return errors.New("stats flusher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := f.interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.flush(context.Background())
			return nil
		case <-ticker.C:
			f.flush(ctx)
		}
	}
}

func (f *StatsFlusher) flush(ctx context.Context) {
	current := f.limiter.Statistics()
	delta := statsDelta(f.last, current)
	if len(delta) == 0 {
		return
	}
	if err := f.store.FlushCounters(ctx, delta); err != nil {
		if f.logger != nil && !errors.Is(err, ErrBreakerOpen) {
			f.logger.Error("stats flush failed", map[string]any{"error": err.Error()})
		}
		return
	}
	f.last = current
}

// statsDelta computes the per-counter difference between snapshots,
// omitting zero entries.
func statsDelta(prev, cur Statistics) map[string]int64 {
	delta := map[string]int64{}
	put := func(field string, value int64) {
		if value != 0 {
			delta[field] = value
		}
	}
	put("total_checks", cur.TotalChecks-prev.TotalChecks)
	put("allowed", cur.Allowed-prev.Allowed)
	put("denied", cur.Denied-prev.Denied)
	put("violations", cur.Violations-prev.Violations)
	put("rule_errors", cur.RuleErrors-prev.RuleErrors)
	put("events_dropped", cur.EventsDropped-prev.EventsDropped)
	return delta
}
