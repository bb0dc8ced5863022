// Package admission provides configuration loading.
package admission

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadOptions controls config loading.
type LoadOptions struct {
	ConfigPath string
	Args       []string
	Environ    []string
}

// LoadConfig loads configuration from defaults, file, env, and flags,
// in that order of increasing precedence.
func LoadConfig(opts LoadOptions) (*Config, error) {
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	environ := opts.Environ
	if environ == nil {
		environ = os.Environ()
	}

	flagOverrides, err := parseFlagOverrides(args)
	if err != nil {
		return nil, err
	}

	configPath := opts.ConfigPath
	if flagOverrides.ConfigPath != nil {
		configPath = *flagOverrides.ConfigPath
	}

	cfg := defaultConfig()
	if configPath != "" {
		fileOverrides, err := loadConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		applyConfigOverrides(cfg, fileOverrides)
	}
	if err := applyEnvOverrides(cfg, environ); err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg, flagOverrides)
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		HTTPListenAddr: ":8080",
		RedisPrefix:    "admission",
		EventBuffer:    1024,
		BreakerOptions: CircuitOptions{
			FailureThreshold: 5,
			OpenDuration:     5 * time.Second,
			HalfOpenMaxCalls: 2,
		},
		StatePolicy: StatePolicy{
			Shards:          16,
			MaxEntriesShard: 4096,
			IdleFactor:      2,
			SweepInterval:   30 * time.Second,
		},
		StatsFlushInterval: 10 * time.Second,
		StatsTTL:           24 * time.Hour,
		SweepInterval:      30 * time.Second,
		MetricsNamespace:   "admission",
		HTTPReadTimeout:    5 * time.Second,
		HTTPWriteTimeout:   10 * time.Second,
		HTTPIdleTimeout:    60 * time.Second,
		RequestTimeout:     2 * time.Second,
		DrainTimeout:       5 * time.Second,
		MaxBodyBytes:       1 << 20,
	}
}

type configOverrides struct {
	ListenAddr         *string              `yaml:"listen_addr"`
	EnableAuth         *bool                `yaml:"enable_auth"`
	AdminToken         *string              `yaml:"admin_token"`
	Redis              *redisInput          `yaml:"redis"`
	EventBuffer        *int                 `yaml:"event_buffer"`
	RulesFile          *string              `yaml:"rules_file"`
	StatsFlushInterval *durationValue       `yaml:"stats_flush_interval"`
	StatsTTL           *durationValue       `yaml:"stats_ttl"`
	SweepInterval      *durationValue       `yaml:"sweep_interval"`
	Breaker            *circuitOptionsInput `yaml:"breaker"`
	State              *statePolicyInput    `yaml:"state"`
	MetricsNamespace   *string              `yaml:"metrics_namespace"`
	HTTPReadTimeout    *durationValue       `yaml:"http_read_timeout"`
	HTTPWriteTimeout   *durationValue       `yaml:"http_write_timeout"`
	HTTPIdleTimeout    *durationValue       `yaml:"http_idle_timeout"`
	RequestTimeout     *durationValue       `yaml:"request_timeout"`
	DrainTimeout       *durationValue       `yaml:"drain_timeout"`
	MaxBodyBytes       *int64               `yaml:"max_body_bytes"`
}

type redisInput struct {
	Addr    *string `yaml:"addr"`
	DB      *int    `yaml:"db"`
	Prefix  *string `yaml:"prefix"`
	Channel *string `yaml:"channel"`
}

type circuitOptionsInput struct {
	FailureThreshold *int64         `yaml:"failure_threshold"`
	OpenDuration     *durationValue `yaml:"open_duration"`
	HalfOpenMaxCalls *int64         `yaml:"half_open_max_calls"`
}

type statePolicyInput struct {
	Shards          *int           `yaml:"shards"`
	MaxEntriesShard *int           `yaml:"max_entries_shard"`
	IdleFactor      *float64       `yaml:"idle_factor"`
	SweepInterval   *durationValue `yaml:"sweep_interval"`
}

// durationValue accepts either a Go duration string ("30s") or an
// integer number of milliseconds.
type durationValue struct {
	Value time.Duration
	Set   bool
}

func (d *durationValue) UnmarshalYAML(node *yaml.Node) error {
	if d == nil || node == nil {
		return nil
	}
	var text string
	if err := node.Decode(&text); err == nil {
		if ms, err := strconv.ParseInt(text, 10, 64); err == nil {
			d.Value = time.Duration(ms) * time.Millisecond
			d.Set = true
			return nil
		}
		value, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("invalid duration %q", text)
		}
		d.Value = value
		d.Set = true
		return nil
	}
	var ms int64
	if err := node.Decode(&ms); err == nil {
		d.Value = time.Duration(ms) * time.Millisecond
		d.Set = true
		return nil
	}
	return errors.New("invalid duration value")
}

type flagOverrides struct {
	ConfigPath       *string
	ListenAddr       *string
	EnableAuth       *bool
	AdminToken       *string
	RedisAddr        *string
	RulesFile        *string
	FlushIntervalMS  *int
	SweepIntervalMS  *int
	BreakerFailures  *int
	BreakerOpenMS    *int
	MetricsNamespace *string
}

func parseFlagOverrides(args []string) (flagOverrides, error) {
	fs := flag.NewFlagSet("admission", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	configPath := fs.String("config", "", "config file path")
	listenAddr := fs.String("listen_addr", "", "http listen address")
	enableAuth := fs.Bool("enable_auth", false, "enable admin auth")
	adminToken := fs.String("admin_token", "", "admin bearer token")
	redisAddr := fs.String("redis_addr", "", "redis address")
	rulesFile := fs.String("rules_file", "", "seed rules file")
	flushInterval := fs.Int("flush_interval_ms", 0, "stats flush interval ms")
	sweepInterval := fs.Int("sweep_interval_ms", 0, "state sweep interval ms")
	breakerFailures := fs.Int("breaker_failure_threshold", 0, "breaker failure threshold")
	breakerOpen := fs.Int("breaker_open_ms", 0, "breaker open ms")
	metricsNamespace := fs.String("metrics_namespace", "", "prometheus namespace")

	if err := fs.Parse(args); err != nil {
		return flagOverrides{}, errors.New("invalid flag values")
	}

	overrides := flagOverrides{}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "config":
			overrides.ConfigPath = configPath
		case "listen_addr":
			overrides.ListenAddr = listenAddr
		case "enable_auth":
			overrides.EnableAuth = enableAuth
		case "admin_token":
			overrides.AdminToken = adminToken
		case "redis_addr":
			overrides.RedisAddr = redisAddr
		case "rules_file":
			overrides.RulesFile = rulesFile
		case "flush_interval_ms":
			overrides.FlushIntervalMS = flushInterval
		case "sweep_interval_ms":
			overrides.SweepIntervalMS = sweepInterval
		case "breaker_failure_threshold":
			overrides.BreakerFailures = breakerFailures
		case "breaker_open_ms":
			overrides.BreakerOpenMS = breakerOpen
		case "metrics_namespace":
			overrides.MetricsNamespace = metricsNamespace
		}
	})
	return overrides, nil
}

func loadConfigFile(path string) (*configOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overrides configOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &overrides, nil
}

func applyConfigOverrides(cfg *Config, overrides *configOverrides) {
	if cfg == nil || overrides == nil {
		return
	}
	if overrides.ListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.ListenAddr
	}
	if overrides.EnableAuth != nil {
		cfg.EnableAuth = *overrides.EnableAuth
	}
	if overrides.AdminToken != nil {
		cfg.AdminToken = *overrides.AdminToken
	}
	if overrides.Redis != nil {
		if overrides.Redis.Addr != nil {
			cfg.RedisAddr = *overrides.Redis.Addr
		}
		if overrides.Redis.DB != nil {
			cfg.RedisDB = *overrides.Redis.DB
		}
		if overrides.Redis.Prefix != nil {
			cfg.RedisPrefix = *overrides.Redis.Prefix
		}
		if overrides.Redis.Channel != nil {
			cfg.EventsChannel = *overrides.Redis.Channel
		}
	}
	if overrides.EventBuffer != nil {
		cfg.EventBuffer = *overrides.EventBuffer
	}
	if overrides.RulesFile != nil {
		cfg.RulesFile = *overrides.RulesFile
	}
	if overrides.StatsFlushInterval != nil && overrides.StatsFlushInterval.Set {
		cfg.StatsFlushInterval = overrides.StatsFlushInterval.Value
	}
	if overrides.StatsTTL != nil && overrides.StatsTTL.Set {
		cfg.StatsTTL = overrides.StatsTTL.Value
	}
	if overrides.SweepInterval != nil && overrides.SweepInterval.Set {
		cfg.SweepInterval = overrides.SweepInterval.Value
	}
	if overrides.Breaker != nil {
		if overrides.Breaker.FailureThreshold != nil {
			cfg.BreakerOptions.FailureThreshold = *overrides.Breaker.FailureThreshold
		}
		if overrides.Breaker.OpenDuration != nil && overrides.Breaker.OpenDuration.Set {
			cfg.BreakerOptions.OpenDuration = overrides.Breaker.OpenDuration.Value
		}
		if overrides.Breaker.HalfOpenMaxCalls != nil {
			cfg.BreakerOptions.HalfOpenMaxCalls = *overrides.Breaker.HalfOpenMaxCalls
		}
	}
	if overrides.State != nil {
		if overrides.State.Shards != nil {
			cfg.StatePolicy.Shards = *overrides.State.Shards
		}
		if overrides.State.MaxEntriesShard != nil {
			cfg.StatePolicy.MaxEntriesShard = *overrides.State.MaxEntriesShard
		}
		if overrides.State.IdleFactor != nil {
			cfg.StatePolicy.IdleFactor = *overrides.State.IdleFactor
		}
		if overrides.State.SweepInterval != nil && overrides.State.SweepInterval.Set {
			cfg.StatePolicy.SweepInterval = overrides.State.SweepInterval.Value
		}
	}
	if overrides.MetricsNamespace != nil {
		cfg.MetricsNamespace = *overrides.MetricsNamespace
	}
	if overrides.HTTPReadTimeout != nil && overrides.HTTPReadTimeout.Set {
		cfg.HTTPReadTimeout = overrides.HTTPReadTimeout.Value
	}
	if overrides.HTTPWriteTimeout != nil && overrides.HTTPWriteTimeout.Set {
		cfg.HTTPWriteTimeout = overrides.HTTPWriteTimeout.Value
	}
	if overrides.HTTPIdleTimeout != nil && overrides.HTTPIdleTimeout.Set {
		cfg.HTTPIdleTimeout = overrides.HTTPIdleTimeout.Value
	}
	if overrides.RequestTimeout != nil && overrides.RequestTimeout.Set {
		cfg.RequestTimeout = overrides.RequestTimeout.Value
	}
	if overrides.DrainTimeout != nil && overrides.DrainTimeout.Set {
		cfg.DrainTimeout = overrides.DrainTimeout.Value
	}
	if overrides.MaxBodyBytes != nil {
		cfg.MaxBodyBytes = *overrides.MaxBodyBytes
	}
}

func applyEnvOverrides(cfg *Config, environ []string) error {
	if cfg == nil {
		return nil
	}
	env := map[string]string{}
	for _, kv := range environ {
		if name, value, ok := strings.Cut(kv, "="); ok {
			env[name] = value
		}
	}

	if value, ok := env["ADMISSION_LISTEN_ADDR"]; ok {
		cfg.HTTPListenAddr = value
	}
	if value, ok := env["ADMISSION_ENABLE_AUTH"]; ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("ADMISSION_ENABLE_AUTH: %w", err)
		}
		cfg.EnableAuth = enabled
	}
	if value, ok := env["ADMISSION_ADMIN_TOKEN"]; ok {
		cfg.AdminToken = value
	}
	if value, ok := env["ADMISSION_REDIS_ADDR"]; ok {
		cfg.RedisAddr = value
	}
	if value, ok := env["ADMISSION_REDIS_DB"]; ok {
		db, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("ADMISSION_REDIS_DB: %w", err)
		}
		cfg.RedisDB = db
	}
	if value, ok := env["ADMISSION_REDIS_PREFIX"]; ok {
		cfg.RedisPrefix = value
	}
	if value, ok := env["ADMISSION_EVENTS_CHANNEL"]; ok {
		cfg.EventsChannel = value
	}
	if value, ok := env["ADMISSION_RULES_FILE"]; ok {
		cfg.RulesFile = value
	}
	if value, ok := env["ADMISSION_FLUSH_INTERVAL"]; ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("ADMISSION_FLUSH_INTERVAL: %w", err)
		}
		cfg.StatsFlushInterval = interval
	}
	if value, ok := env["ADMISSION_SWEEP_INTERVAL"]; ok {
		interval, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("ADMISSION_SWEEP_INTERVAL: %w", err)
		}
		cfg.SweepInterval = interval
	}
	return nil
}

func applyFlagOverrides(cfg *Config, overrides flagOverrides) {
	if cfg == nil {
		return
	}
	if overrides.ListenAddr != nil {
		cfg.HTTPListenAddr = *overrides.ListenAddr
	}
	if overrides.EnableAuth != nil {
		cfg.EnableAuth = *overrides.EnableAuth
	}
	if overrides.AdminToken != nil {
		cfg.AdminToken = *overrides.AdminToken
	}
	if overrides.RedisAddr != nil {
		cfg.RedisAddr = *overrides.RedisAddr
	}
	if overrides.RulesFile != nil {
		cfg.RulesFile = *overrides.RulesFile
	}
	if overrides.FlushIntervalMS != nil {
		cfg.StatsFlushInterval = time.Duration(*overrides.FlushIntervalMS) * time.Millisecond
	}
	if overrides.SweepIntervalMS != nil {
		cfg.SweepInterval = time.Duration(*overrides.SweepIntervalMS) * time.Millisecond
	}
	if overrides.BreakerFailures != nil {
		cfg.BreakerOptions.FailureThreshold = int64(*overrides.BreakerFailures)
	}
	if overrides.BreakerOpenMS != nil {
		cfg.BreakerOptions.OpenDuration = time.Duration(*overrides.BreakerOpenMS) * time.Millisecond
	}
	if overrides.MetricsNamespace != nil {
		cfg.MetricsNamespace = *overrides.MetricsNamespace
	}
}
