// Package admission provides in-memory metrics.
package admission

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics receives evaluator measurements. Implementations must be
// safe for concurrent use and must never block the admission path.
type Metrics interface {
	IncCheck(result string, algorithm string, scope string)
	ObserveLatency(op string, d time.Duration)
	IncViolation(ruleID string, action string)
	IncRuleError(ruleID string)
}

// FanoutMetrics forwards each measurement to every child recorder.
type FanoutMetrics struct {
	children []Metrics
}

// NewFanoutMetrics constructs a fanout over non-nil recorders.
func NewFanoutMetrics(children ...Metrics) *FanoutMetrics {
	fanout := &FanoutMetrics{}
	for _, child := range children {
		if child != nil {
			fanout.children = append(fanout.children, child)
		}
	}
	return fanout
}

// IncCheck forwards a check increment.
func (f *FanoutMetrics) IncCheck(result string, algorithm string, scope string) {
	if f == nil {
		return
	}
	for _, child := range f.children {
		child.IncCheck(result, algorithm, scope)
	}
}

// ObserveLatency forwards a latency measurement.
func (f *FanoutMetrics) ObserveLatency(op string, d time.Duration) {
	if f == nil {
		return
	}
	for _, child := range f.children {
		child.ObserveLatency(op, d)
	}
}

// IncViolation forwards a violation increment.
func (f *FanoutMetrics) IncViolation(ruleID string, action string) {
	if f == nil {
		return
	}
	for _, child := range f.children {
		child.IncViolation(ruleID, action)
	}
}

// IncRuleError forwards a fail-open increment.
func (f *FanoutMetrics) IncRuleError(ruleID string) {
	if f == nil {
		return
	}
	for _, child := range f.children {
		child.IncRuleError(ruleID)
	}
}

// InMemoryMetrics stores counters and latency summaries.
type InMemoryMetrics struct {
	counters  sync.Map
	latencies sync.Map
}

type latencySummary struct {
	count      atomic.Int64
	totalNanos atomic.Int64
	maxNanos   atomic.Int64
}

// NewInMemoryMetrics constructs an in-memory metrics recorder.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{}
}

// IncCheck increments a check counter.
func (m *InMemoryMetrics) IncCheck(result string, algorithm string, scope string) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("check|%s|%s|%s", result, algorithm, scope)
	m.incCounter(key)
}

// ObserveLatency tracks latency measurements.
func (m *InMemoryMetrics) ObserveLatency(op string, d time.Duration) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("latency|%s", op)
	entry := m.getLatency(key)
	if entry == nil {
		return
	}
	nanos := d.Nanoseconds()
	entry.count.Add(1)
	entry.totalNanos.Add(nanos)
	for {
		current := entry.maxNanos.Load()
		if nanos <= current {
			break
		}
		if entry.maxNanos.CompareAndSwap(current, nanos) {
			break
		}
	}
}

// IncViolation increments violation counters.
func (m *InMemoryMetrics) IncViolation(ruleID string, action string) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("violation|%s|%s", ruleID, action)
	m.incCounter(key)
}

// IncRuleError increments fail-open counters.
func (m *InMemoryMetrics) IncRuleError(ruleID string) {
	if m == nil {
		return
	}
	key := fmt.Sprintf("rule_error|%s", ruleID)
	m.incCounter(key)
}

// Snapshot exports metrics values.
func (m *InMemoryMetrics) Snapshot() map[string]any {
	result := map[string]any{}
	if m == nil {
		return result
	}

	counters := map[string]int64{}
	m.counters.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		counter, ok := value.(*atomic.Int64)
		if !ok || counter == nil {
			return true
		}
		counters[k] = counter.Load()
		return true
	})

	latencies := map[string]map[string]int64{}
	m.latencies.Range(func(key, value any) bool {
		k, ok := key.(string)
		if !ok {
			return true
		}
		entry, ok := value.(*latencySummary)
		if !ok || entry == nil {
			return true
		}
		latencies[k] = map[string]int64{
			"count":      entry.count.Load(),
			"totalNanos": entry.totalNanos.Load(),
			"maxNanos":   entry.maxNanos.Load(),
		}
		return true
	})

	result["counters"] = counters
	result["latencies"] = latencies
	return result
}

func (m *InMemoryMetrics) incCounter(key string) {
	counter := m.getCounter(key)
	if counter == nil {
		return
	}
	counter.Add(1)
}

func (m *InMemoryMetrics) getCounter(key string) *atomic.Int64 {
	if key == "" {
		return nil
	}
	if existing, ok := m.counters.Load(key); ok {
		if counter, ok := existing.(*atomic.Int64); ok {
			return counter
		}
	}
	counter := &atomic.Int64{}
	actual, _ := m.counters.LoadOrStore(key, counter)
	if stored, ok := actual.(*atomic.Int64); ok {
		return stored
	}
	return counter
}

func (m *InMemoryMetrics) getLatency(key string) *latencySummary {
	if key == "" {
		return nil
	}
	if existing, ok := m.latencies.Load(key); ok {
		if entry, ok := existing.(*latencySummary); ok {
			return entry
		}
	}
	entry := &latencySummary{}
	actual, _ := m.latencies.LoadOrStore(key, entry)
	if stored, ok := actual.(*latencySummary); ok {
		return stored
	}
	return entry
}
