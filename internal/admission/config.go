// Package admission provides configuration for the application wiring.
package admission

import "time"

// Config captures dependency and runtime settings.
type Config struct {
	HTTPListenAddr     string
	EnableAuth         bool
	AdminToken         string
	RedisAddr          string
	RedisDB            int
	RedisPrefix        string
	EventsChannel      string
	EventBuffer        int
	RulesFile          string
	StatsFlushInterval time.Duration
	StatsTTL           time.Duration
	SweepInterval      time.Duration
	BreakerOptions     CircuitOptions
	StatePolicy        StatePolicy
	MetricsNamespace   string
	HTTPReadTimeout    time.Duration
	HTTPWriteTimeout   time.Duration
	HTTPIdleTimeout    time.Duration
	RequestTimeout     time.Duration
	DrainTimeout       time.Duration
	MaxBodyBytes       int64
	Logger             Logger
	Metrics            Metrics
	Clock              func() time.Time
}
