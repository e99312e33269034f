// Package config loads hotswapd configuration: defaults, then an optional
// YAML (or JSON) file, then HOTSWAP_* environment overrides, then validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/chimera-pool/chimera-pool-core/internal/migration"
	"github.com/chimera-pool/chimera-pool-core/internal/validation"
)

var validate = validator.New()

// #region types
// Config is the full daemon configuration.
type Config struct {
	Engine     EngineConfig     `json:"engine" yaml:"engine"`
	Migration  migration.Config `json:"migration" yaml:"migration"`
	Validation ValidationConfig `json:"validation" yaml:"validation"`
	Router     RouterConfig     `json:"router" yaml:"router"`
	Journal    JournalConfig    `json:"journal" yaml:"journal"`
	Admin      AdminConfig      `json:"admin" yaml:"admin"`
	Driver     DriverConfig     `json:"driver" yaml:"driver"`
	Load       LoadConfig       `json:"load" yaml:"load"`
	Telemetry  TelemetryConfig  `json:"telemetry" yaml:"telemetry"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

type EngineConfig struct {
	// Active is the registry name of the engine served at startup.
	Active string `json:"active" yaml:"active" validate:"required"`
}

type ValidationConfig struct {
	CheckTimeout         time.Duration `json:"check_timeout" yaml:"check_timeout" validate:"gt=0"`
	Parallelism          int           `json:"parallelism" yaml:"parallelism" validate:"gte=0"`
	PerformanceTarget    float64       `json:"performance_target" yaml:"performance_target" validate:"gte=0"`
	PerformanceWindow    time.Duration `json:"performance_window" yaml:"performance_window" validate:"gt=0"`
	PerformanceWarnBelow float64       `json:"performance_warn_below" yaml:"performance_warn_below" validate:"gte=0,lte=1"`
	MemoryLimitBytes     uint64        `json:"memory_limit_bytes" yaml:"memory_limit_bytes"`
	MemorySamples        int           `json:"memory_samples" yaml:"memory_samples" validate:"gte=1"`
}

type RouterConfig struct {
	// Sampler is "random" (per-request draw) or "hash" (derived from input).
	Sampler string `json:"sampler" yaml:"sampler" validate:"oneof=random hash"`
}

type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path" validate:"required_if=Enabled true"`
}

type AdminConfig struct {
	ListenAddr  string `json:"listen_addr" yaml:"listen_addr" validate:"required,hostname_port"`
	MetricsAddr string `json:"metrics_addr" yaml:"metrics_addr" validate:"omitempty,hostname_port"`
}

type DriverConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Interval time.Duration `json:"interval" yaml:"interval" validate:"gt=0"`
}

type LoadConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	Workers    int     `json:"workers" yaml:"workers" validate:"gte=1"`
	RatePerSec float64 `json:"rate_per_sec" yaml:"rate_per_sec" validate:"gte=0"`
}

type TelemetryConfig struct {
	TracingEnabled bool `json:"tracing_enabled" yaml:"tracing_enabled"`
}

type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" yaml:"format" validate:"oneof=text json"`
}

// #endregion types

// #region defaults
// Default returns the built-in configuration.
func Default() Config {
	v := validation.DefaultConfig()
	return Config{
		Engine:    EngineConfig{Active: "blake2s"},
		Migration: migration.DefaultConfig(),
		Validation: ValidationConfig{
			CheckTimeout:         v.CheckTimeout,
			Parallelism:          v.Parallelism,
			PerformanceTarget:    v.PerformanceTarget,
			PerformanceWindow:    v.PerformanceWindow,
			PerformanceWarnBelow: v.PerformanceWarnBelow,
			MemoryLimitBytes:     v.MemoryLimitBytes,
			MemorySamples:        v.MemorySamples,
		},
		Router:    RouterConfig{Sampler: "random"},
		Journal:   JournalConfig{Enabled: true, Path: "hotswap.db"},
		Admin:     AdminConfig{ListenAddr: "127.0.0.1:50061", MetricsAddr: "127.0.0.1:9464"},
		Driver:    DriverConfig{Enabled: false, Interval: 5 * time.Second},
		Load:      LoadConfig{Enabled: false, Workers: 4, RatePerSec: 200},
		Telemetry: TelemetryConfig{TracingEnabled: false},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}

// Pipeline returns the validation pipeline settings.
func (v ValidationConfig) Pipeline() validation.Config {
	cfg := validation.DefaultConfig()
	cfg.CheckTimeout = v.CheckTimeout
	cfg.Parallelism = v.Parallelism
	cfg.PerformanceTarget = v.PerformanceTarget
	cfg.PerformanceWindow = v.PerformanceWindow
	cfg.PerformanceWarnBelow = v.PerformanceWarnBelow
	cfg.MemoryLimitBytes = v.MemoryLimitBytes
	cfg.MemorySamples = v.MemorySamples
	return cfg
}

// #endregion defaults

// #region load
// Load builds the configuration. A missing file at path is not an error;
// an empty path skips the file stage.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}
	if err := loadEnv(&cfg); err != nil {
		return cfg, fmt.Errorf("load env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate runs struct-tag validation and the ramp rules.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	return c.Migration.Validate()
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

// loadEnv applies HOTSWAP_* overrides. Every malformed value is reported.
func loadEnv(cfg *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	parse := func(key string, apply func(string) error) {
		v, ok := os.LookupEnv(key)
		if !ok {
			return
		}
		if err := apply(v); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", key, v, err))
		}
	}
	float := func(dst *float64) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.ParseFloat(v, 64)
			return err
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) (err error) {
			*dst, err = time.ParseDuration(v)
			return err
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) (err error) {
			*dst, err = strconv.ParseBool(v)
			return err
		}
	}

	str("HOTSWAP_ACTIVE_ENGINE", &cfg.Engine.Active)
	parse("HOTSWAP_SHADOW_THRESHOLD", func(v string) (err error) {
		cfg.Migration.ShadowSampleThreshold, err = strconv.ParseUint(v, 10, 64)
		return err
	})
	parse("HOTSWAP_SHADOW_RATE", float(&cfg.Migration.ShadowRate))
	parse("HOTSWAP_MAX_ERROR_RATE", float(&cfg.Migration.MaxErrorRate))
	parse("HOTSWAP_RAMP_STEPS", func(v string) error {
		steps, err := parseSteps(v)
		if err != nil {
			return err
		}
		cfg.Migration.RampSteps = steps
		return nil
	})
	parse("HOTSWAP_CHECK_TIMEOUT", duration(&cfg.Validation.CheckTimeout))
	str("HOTSWAP_SAMPLER", &cfg.Router.Sampler)
	parse("HOTSWAP_JOURNAL_ENABLED", boolean(&cfg.Journal.Enabled))
	str("HOTSWAP_JOURNAL_PATH", &cfg.Journal.Path)
	str("HOTSWAP_ADMIN_ADDR", &cfg.Admin.ListenAddr)
	str("HOTSWAP_METRICS_ADDR", &cfg.Admin.MetricsAddr)
	parse("HOTSWAP_DRIVER_ENABLED", boolean(&cfg.Driver.Enabled))
	parse("HOTSWAP_DRIVER_INTERVAL", duration(&cfg.Driver.Interval))
	parse("HOTSWAP_LOAD_ENABLED", boolean(&cfg.Load.Enabled))
	parse("HOTSWAP_LOAD_WORKERS", func(v string) (err error) {
		cfg.Load.Workers, err = strconv.Atoi(v)
		return err
	})
	parse("HOTSWAP_LOAD_RATE", float(&cfg.Load.RatePerSec))
	parse("HOTSWAP_TRACING", boolean(&cfg.Telemetry.TracingEnabled))
	str("HOTSWAP_LOG_LEVEL", &cfg.Logging.Level)
	str("HOTSWAP_LOG_FORMAT", &cfg.Logging.Format)

	return errors.Join(errs...)
}

// parseSteps reads a comma-separated list such as "0.1,0.5,1".
func parseSteps(v string) ([]float64, error) {
	parts := strings.Split(v, ",")
	steps := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		steps = append(steps, f)
	}
	return steps, nil
}

// #endregion load
