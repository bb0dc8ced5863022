// Package admission provides CLI helpers.
package admission

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"time"
)

// PrintConfig writes the effective config to the writer as JSON.
// The admin token is redacted.
func PrintConfig(w io.Writer, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is required")
	}
	if w == nil {
		return errors.New("writer is required")
	}
	snapshot := newConfigSnapshot(cfg)
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(snapshot)
}

type durationMillis time.Duration

func (d durationMillis) MarshalJSON() ([]byte, error) {
	ms := time.Duration(d).Milliseconds()
	return []byte(strconv.FormatInt(ms, 10)), nil
}

type configSnapshot struct {
	HTTPListenAddr     string
	EnableAuth         bool
	AdminTokenSet      bool
	RedisAddr          string
	RedisDB            int
	RedisPrefix        string
	EventsChannel      string
	EventBuffer        int
	RulesFile          string
	StatsFlushInterval durationMillis
	StatsTTL           durationMillis
	SweepInterval      durationMillis
	Breaker            circuitOptionsSnapshot
	State              statePolicySnapshot
	MetricsNamespace   string
	HTTPReadTimeout    durationMillis
	HTTPWriteTimeout   durationMillis
	HTTPIdleTimeout    durationMillis
	RequestTimeout     durationMillis
	DrainTimeout       durationMillis
	MaxBodyBytes       int64
}

type circuitOptionsSnapshot struct {
	FailureThreshold int64
	OpenDuration     durationMillis
	HalfOpenMaxCalls int64
}

type statePolicySnapshot struct {
	Shards          int
	MaxEntriesShard int
	IdleFactor      float64
	SweepInterval   durationMillis
}

func newConfigSnapshot(cfg *Config) configSnapshot {
	snapshot := configSnapshot{}
	if cfg == nil {
		return snapshot
	}
	snapshot.HTTPListenAddr = cfg.HTTPListenAddr
	snapshot.EnableAuth = cfg.EnableAuth
	snapshot.AdminTokenSet = cfg.AdminToken != ""
	snapshot.RedisAddr = cfg.RedisAddr
	snapshot.RedisDB = cfg.RedisDB
	snapshot.RedisPrefix = cfg.RedisPrefix
	snapshot.EventsChannel = cfg.EventsChannel
	snapshot.EventBuffer = cfg.EventBuffer
	snapshot.RulesFile = cfg.RulesFile
	snapshot.StatsFlushInterval = durationMillis(cfg.StatsFlushInterval)
	snapshot.StatsTTL = durationMillis(cfg.StatsTTL)
	snapshot.SweepInterval = durationMillis(cfg.SweepInterval)
	snapshot.Breaker = circuitOptionsSnapshot{
		FailureThreshold: cfg.BreakerOptions.FailureThreshold,
		OpenDuration:     durationMillis(cfg.BreakerOptions.OpenDuration),
		HalfOpenMaxCalls: cfg.BreakerOptions.HalfOpenMaxCalls,
	}
	snapshot.State = statePolicySnapshot{
		Shards:          cfg.StatePolicy.Shards,
		MaxEntriesShard: cfg.StatePolicy.MaxEntriesShard,
		IdleFactor:      cfg.StatePolicy.IdleFactor,
		SweepInterval:   durationMillis(cfg.StatePolicy.SweepInterval),
	}
	snapshot.MetricsNamespace = cfg.MetricsNamespace
	snapshot.HTTPReadTimeout = durationMillis(cfg.HTTPReadTimeout)
	snapshot.HTTPWriteTimeout = durationMillis(cfg.HTTPWriteTimeout)
	snapshot.HTTPIdleTimeout = durationMillis(cfg.HTTPIdleTimeout)
	snapshot.RequestTimeout = durationMillis(cfg.RequestTimeout)
	snapshot.DrainTimeout = durationMillis(cfg.DrainTimeout)
	snapshot.MaxBodyBytes = cfg.MaxBodyBytes
	return snapshot
}
