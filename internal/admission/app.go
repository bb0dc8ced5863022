// Package admission wires application dependencies.
package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// Application holds core components for the service.
type Application struct {
	Config     *Config
	Rules      *RuleRegistry
	States     *StateStore
	Limiter    *Limiter
	Dispatcher *EventDispatcher
	Sink       *MemorySink
	Stats      *RedisStatsStore
	Flusher    *StatsFlusher
	Sweeper    *StateSweeper
	Prom       *PromMetrics
	Mem        *InMemoryMetrics

	logger        Logger
	redisClient   *redis.Client
	httpTransport *HTTPTransport
	inflight      *InFlight
	ready         atomic.Bool
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewApplication validates configuration and prepares the application.
func NewApplication(cfg *Config) (*Application, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	logger := cfg.Logger
	clock := cfg.Clock

	rules := NewRuleRegistry(clock)
	states := NewStateStore(nil, cfg.StatePolicy)
	mem := NewInMemoryMetrics()
	prom := NewPromMetrics(cfg.MetricsNamespace)
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = NewFanoutMetrics(mem, prom)
	}

	sink := NewMemorySink(0)
	var eventSink EventSink = sink

	app := &Application{
		Config:   cfg,
		Rules:    rules,
		States:   states,
		Sink:     sink,
		Prom:     prom,
		Mem:      mem,
		logger:   logger,
		inflight: NewInFlight(),
	}

	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		breaker := NewCircuitBreaker(cfg.BreakerOptions)
		stats := NewRedisStatsStore(client, cfg.RedisPrefix, cfg.EventsChannel, cfg.StatsTTL, breaker, logger)
		app.redisClient = client
		app.Stats = stats
		eventSink = NewFanoutSink(sink, stats)
	}

	dispatcher := NewEventDispatcher(eventSink, cfg.EventBuffer, logger)
	limiter := NewLimiter(rules, states, dispatcher, metrics, logger, clock)
	app.Dispatcher = dispatcher
	app.Limiter = limiter
	app.Sweeper = NewStateSweeper(states, cfg.SweepInterval, logger, clock)
	if app.Stats != nil {
		app.Flusher = NewStatsFlusher(limiter, app.Stats, cfg.StatsFlushInterval, logger)
	}

	if cfg.RulesFile != "" {
		seeded, err := LoadRulesFile(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		for _, rule := range seeded {
			if _, err := rules.Add(rule); err != nil {
				return nil, err
			}
		}
	}

	app.httpTransport = NewHTTPTransport(HTTPOptions{
		Addr:           cfg.HTTPListenAddr,
		Limiter:        limiter,
		Sink:           sink,
		Prom:           prom,
		Mem:            mem,
		Ready:          app.Ready,
		InFlight:       app.inflight,
		Logger:         logger,
		EnableAuth:     cfg.EnableAuth,
		AdminToken:     cfg.AdminToken,
		MaxBodyBytes:   cfg.MaxBodyBytes,
		RequestTimeout: cfg.RequestTimeout,
		ReadTimeout:    cfg.HTTPReadTimeout,
		WriteTimeout:   cfg.HTTPWriteTimeout,
		IdleTimeout:    cfg.HTTPIdleTimeout,
	})

	return app, nil
}

// Start begins background work for the application.
func (app *Application) Start(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	app.cancel = cancel

	if app.Dispatcher != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.Dispatcher.Start(ctx)
		}()
	}
	if app.Sweeper != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.Sweeper.Start(ctx)
		}()
	}
	if app.Flusher != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.Flusher.Start(ctx)
		}()
	}
	if app.httpTransport != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			_ = app.httpTransport.Start()
		}()
	}

	app.ready.Store(true)
	return nil
}

// Shutdown stops accepting work, drains in flight requests, and stops
// background loops.
func (app *Application) Shutdown(ctx context.Context) error {
	if app == nil {
		return errors.New("application is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	app.ready.Store(false)

	if app.inflight != nil {
		app.inflight.Close()
		_ = app.inflight.Wait(ctx)
	}
	if app.httpTransport != nil {
		_ = app.httpTransport.Shutdown(ctx)
	}
	if app.cancel != nil {
		app.cancel()
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if app.redisClient != nil {
		return app.redisClient.Close()
	}
	return nil
}

// Ready reports whether the application has completed startup.
func (app *Application) Ready() bool {
	if app == nil {
		return false
	}
	return app.ready.Load()
}

// Transport returns the HTTP transport for testing.
func (app *Application) Transport() *HTTPTransport {
	if app == nil {
		return nil
	}
	return app.httpTransport
}
