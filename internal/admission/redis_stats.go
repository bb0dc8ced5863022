// Package admission provides the Redis-backed statistics store.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrBreakerOpen is returned when the stats backend breaker is
// shedding calls.
var ErrBreakerOpen = errors.New("stats backend circuit open")

// RedisStatsStore persists aggregate counters in a Redis hash and
// publishes sink events on a channel. It sits strictly off the
// admission path: every method is best-effort and breaker-guarded.
type RedisStatsStore struct {
	client  *redis.Client
	prefix  string
	channel string
	ttl     time.Duration
	breaker *CircuitBreaker
	logger  Logger
}

// NewRedisStatsStore constructs a stats store.
func NewRedisStatsStore(client *redis.Client, prefix, channel string, ttl time.Duration, breaker *CircuitBreaker, logger Logger) *RedisStatsStore {
	if prefix == "" {
		prefix = "admission"
	}
	if channel == "" {
		channel = prefix + ":events"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if breaker == nil {
		breaker = NewCircuitBreaker(CircuitOptions{})
	}
	return &RedisStatsStore{
		client:  client,
		prefix:  prefix,
		channel: channel,
		ttl:     ttl,
		breaker: breaker,
		logger:  logger,
	}
}

// FlushCounters adds counter deltas to the backing hash in a single
// pipeline round trip.
func (s *RedisStatsStore) FlushCounters(ctx context.Context, delta map[string]int64) error {
	if s == nil || s.client == nil {
		return errors.New("stats store is not configured")
	}
	if len(delta) == 0 {
		return nil
	}
	if !s.breaker.Allow() {
		return ErrBreakerOpen
	}

	key := s.countersKey()
	pipe := s.client.Pipeline()
	for field, value := range delta {
		if value == 0 {
			continue
		}
		pipe.HIncrBy(ctx, key, field, value)
	}
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		s.breaker.OnFailure()
		return fmt.Errorf("flush counters: %w", err)
	}
	s.breaker.OnSuccess()
	return nil
}

// Counters reads back the persisted aggregate counters.
func (s *RedisStatsStore) Counters(ctx context.Context) (map[string]int64, error) {
	if s == nil || s.client == nil {
		return nil, errors.New("stats store is not configured")
	}
	if !s.breaker.Allow() {
		return nil, ErrBreakerOpen
	}

	raw, err := s.client.HGetAll(ctx, s.countersKey()).Result()
	if err != nil {
		s.breaker.OnFailure()
		return nil, fmt.Errorf("read counters: %w", err)
	}
	s.breaker.OnSuccess()

	counters := make(map[string]int64, len(raw))
	for field, value := range raw {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			continue
		}
		counters[field] = n
	}
	return counters, nil
}

// Deliver publishes a sink event on the configured channel,
// implementing EventSink.
func (s *RedisStatsStore) Deliver(ctx context.Context, event Event) error {
	if s == nil || s.client == nil {
		return errors.New("stats store is not configured")
	}
	if !s.breaker.Allow() {
		return ErrBreakerOpen
	}

	payload, err := MarshalEvent(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.breaker.OnFailure()
		return fmt.Errorf("publish event: %w", err)
	}
	s.breaker.OnSuccess()
	return nil
}

// Ping verifies backend reachability for readiness checks.
func (s *RedisStatsStore) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return errors.New("stats store is not configured")
	}
	return s.client.Ping(ctx).Err()
}

func (s *RedisStatsStore) countersKey() string {
	return s.prefix + ":counters"
}
