// Package admission provides the violation and rule-change event pipeline.
package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// EventKind labels sink events.
type EventKind string

const (
	EventViolation  EventKind = "violation"
	EventRuleChange EventKind = "rule_change"
	EventRuleError  EventKind = "rule_error"
)

// Event is one fire-and-forget notification for the statistics sink.
type Event struct {
	Kind       EventKind `json:"kind"`
	RuleID     string    `json:"rule_id"`
	RuleName   string    `json:"rule_name,omitempty"`
	Algorithm  string    `json:"algorithm,omitempty"`
	Action     string    `json:"action,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Scope      string    `json:"scope,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// EventSink receives events out-of-band from the admission path.
type EventSink interface {
	Deliver(ctx context.Context, event Event) error
}

// EventDispatcher decouples the hot path from the sink: Emit never
// blocks, and a background loop forwards buffered events. Overflow
// drops the event and counts the drop.
type EventDispatcher struct {
	ch      chan Event
	sink    EventSink
	logger  Logger
	dropped atomic.Int64
}

// NewEventDispatcher constructs a dispatcher with a bounded buffer.
func NewEventDispatcher(sink EventSink, buffer int, logger Logger) *EventDispatcher {
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventDispatcher{ch: make(chan Event, buffer), sink: sink, logger: logger}
}

// Emit queues an event without blocking the caller.
func (d *EventDispatcher) Emit(event Event) {
	if d == nil {
		return
	}
	select {
	case d.ch <- event:
	default:
		d.dropped.Add(1)
	}
}

// Dropped returns the number of events lost to buffer overflow.
func (d *EventDispatcher) Dropped() int64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Start forwards queued events to the sink until the context ends.
// Sink failures are logged and swallowed; they never propagate back to
// the admission path.
func (d *EventDispatcher) Start(ctx context.Context) error {
	if d == nil || d.sink == nil {
		return errors.New("event dispatcher is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event := <-d.ch:
			if err := d.sink.Deliver(ctx, event); err != nil && d.logger != nil {
				d.logger.Error("event delivery failed", map[string]any{
					"kind":    string(event.Kind),
					"rule_id": event.RuleID,
					"error":   err.Error(),
				})
			}
		}
	}
}

// MemorySink retains a bounded ring of recent events for inspection.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewMemorySink constructs a sink holding up to max events.
func NewMemorySink(max int) *MemorySink {
	if max <= 0 {
		max = 256
	}
	return &MemorySink{max: max}
}

// Deliver appends an event, discarding the oldest at capacity.
func (s *MemorySink) Deliver(ctx context.Context, event Event) error {
	if s == nil {
		return errors.New("sink is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	if len(s.events) > s.max {
		s.events = append(s.events[:0], s.events[len(s.events)-s.max:]...)
	}
	return nil
}

// Recent returns the retained events, oldest first.
func (s *MemorySink) Recent() []Event {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// FanoutSink delivers each event to every child sink.
type FanoutSink struct {
	sinks []EventSink
}

// NewFanoutSink constructs a fanout over non-nil sinks.
func NewFanoutSink(sinks ...EventSink) *FanoutSink {
	fanout := &FanoutSink{}
	for _, sink := range sinks {
		if sink != nil {
			fanout.sinks = append(fanout.sinks, sink)
		}
	}
	return fanout
}

// Deliver forwards to all children, returning the first error after
// every sink has been attempted.
func (f *FanoutSink) Deliver(ctx context.Context, event Event) error {
	if f == nil {
		return errors.New("sink is nil")
	}
	var firstErr error
	for _, sink := range f.sinks {
		if err := sink.Deliver(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
