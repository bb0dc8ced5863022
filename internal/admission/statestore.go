// Package admission provides scope-keyed algorithm state storage.
package admission

import (
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StatePolicy configures state store sharding and cleanup.
type StatePolicy struct {
	Shards          int
	MaxEntriesShard int
	// IdleFactor scales a rule's window into the idle cutoff for its
	// state entries. Entries untouched for IdleFactor * window are
	// eligible for the sweep.
	IdleFactor float64
	// SweepInterval is how often the background sweep runs.
	SweepInterval time.Duration
}

// StateStore maps (rule, scope key) to exactly one algorithm state
// instance. Entries are created lazily on first access; each shard has
// its own lock so admissions for unrelated keys never contend.
type StateStore struct {
	shards  []stateShard
	factory stateFactory
	policy  StatePolicy
}

type stateShard struct {
	mu  sync.Mutex
	m   map[string]*stateEntry
	lru *LRUKeys
}

type stateEntry struct {
	lim       limiterState
	idleAfter time.Duration
	lastUsed  atomic.Int64
}

// NewStateStore initializes a state store.
func NewStateStore(factory stateFactory, policy StatePolicy) *StateStore {
	if factory == nil {
		factory = newLimiterState
	}
	if policy.Shards <= 0 {
		policy.Shards = 16
	}
	if policy.MaxEntriesShard <= 0 {
		policy.MaxEntriesShard = 4096
	}
	if policy.IdleFactor <= 0 {
		policy.IdleFactor = 2
	}
	if policy.SweepInterval <= 0 {
		policy.SweepInterval = 30 * time.Second
	}

	shards := make([]stateShard, policy.Shards)
	for i := range shards {
		shards[i] = stateShard{
			m:   make(map[string]*stateEntry),
			lru: NewLRUKeys(policy.MaxEntriesShard),
		}
	}
	return &StateStore{shards: shards, factory: factory, policy: policy}
}

// Acquire returns the algorithm state for a key, creating it on first
// access. Creation happens under the shard lock so two racing callers
// always observe the same instance.
func (s *StateStore) Acquire(rule *Rule, key string, now time.Time) (limiterState, error) {
	if s == nil || rule == nil {
		return nil, errors.New("state store is not initialized")
	}
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if entry, ok := shard.m[key]; ok && entry != nil {
		entry.lastUsed.Store(now.UnixNano())
		shard.lru.Touch(key)
		return entry.lim, nil
	}

	lim, err := s.factory(rule)
	if err != nil {
		return nil, err
	}
	entry := &stateEntry{
		lim:       lim,
		idleAfter: time.Duration(s.policy.IdleFactor * float64(rule.Window)),
	}
	entry.lastUsed.Store(now.UnixNano())
	shard.m[key] = entry
	shard.lru.Add(key)

	for _, evicted := range shard.lru.EvictIfNeeded() {
		delete(shard.m, evicted)
	}
	return lim, nil
}

// Peek returns the state for a key without creating it.
func (s *StateStore) Peek(key string) (limiterState, bool) {
	if s == nil {
		return nil, false
	}
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, ok := shard.m[key]
	if !ok || entry == nil {
		return nil, false
	}
	return entry.lim, true
}

// Remove deletes the state for a key and reports whether it existed.
func (s *StateStore) Remove(key string) bool {
	if s == nil {
		return false
	}
	shard := s.shardFor(key)

	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.m[key]; !ok {
		return false
	}
	delete(shard.m, key)
	shard.lru.Remove(key)
	return true
}

// RemoveRule deletes every state entry whose key carries the given
// rule prefix. Used when a rule is updated or deleted so stale
// parameters never serve another request.
func (s *StateStore) RemoveRule(prefix string) int {
	if s == nil || prefix == "" {
		return 0
	}
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]

		shard.mu.Lock()
		var stale []string
		for key := range shard.m {
			if strings.HasPrefix(key, prefix) {
				stale = append(stale, key)
			}
		}
		for _, key := range stale {
			delete(shard.m, key)
			shard.lru.Remove(key)
		}
		shard.mu.Unlock()

		removed += len(stale)
	}
	return removed
}

// Len returns the number of live state entries.
func (s *StateStore) Len() int64 {
	if s == nil {
		return 0
	}
	var total int64
	for i := range s.shards {
		shard := &s.shards[i]
		shard.mu.Lock()
		total += int64(len(shard.m))
		shard.mu.Unlock()
	}
	return total
}

// SweepIdle removes entries untouched beyond their idle cutoff. Each
// shard is swept under its own lock, so admissions on other shards are
// never blocked, and within a shard only map access briefly waits.
func (s *StateStore) SweepIdle(now time.Time) int {
	if s == nil {
		return 0
	}
	removed := 0
	for i := range s.shards {
		shard := &s.shards[i]

		shard.mu.Lock()
		var stale []string
		for key, entry := range shard.m {
			if entry == nil {
				stale = append(stale, key)
				continue
			}
			idle := now.Sub(time.Unix(0, entry.lastUsed.Load()))
			if idle > entry.idleAfter {
				stale = append(stale, key)
			}
		}
		for _, key := range stale {
			delete(shard.m, key)
			shard.lru.Remove(key)
		}
		shard.mu.Unlock()

		removed += len(stale)
	}
	return removed
}

func (s *StateStore) shardFor(key string) *stateShard {
	index := 0
	if len(s.shards) > 1 {
		hasher := fnv.New32a()
		_, _ = hasher.Write([]byte(key))
		index = int(hasher.Sum32() % uint32(len(s.shards)))
	}
	return &s.shards[index]
}
