// Package admission provides periodic state cleanup.
package admission

import (
	"context"
	"errors"
	"time"
)

// StateSweeper periodically evicts idle algorithm state so abandoned
// scope keys do not accumulate.
type StateSweeper struct {
	states   *StateStore
	interval time.Duration
	logger   Logger
	now      func() time.Time
}

// NewStateSweeper constructs a sweeper.
func NewStateSweeper(states *StateStore, interval time.Duration, logger Logger, now func() time.Time) *StateSweeper {
	if now == nil {
		now = time.Now
	}
	return &StateSweeper{states: states, interval: interval, logger: logger, now: now}
}

// Start begins the sweep loop.
func (w *StateSweeper) Start(ctx context.Context) error {
	if w == nil || w.states == nil {
		return errors.New("state sweeper is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	interval := w.interval
	if interval <= 0 {
		interval = w.states.policy.SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			removed := w.states.SweepIdle(w.now())
			if removed > 0 && w.logger != nil {
				w.logger.Info("idle state swept", map[string]any{"removed": removed})
			}
		}
	}
}
