// Package config loads process configuration from the environment.
// User policy (exceptions, budget, schedule) lives in the settings store.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/grayd/internal/dispatch"
)

// Prefix is prepended to every environment variable name.
const Prefix = "GRAYD"

// Config holds all process configuration.
type Config struct {
	DataDir   string `envconfig:"DATA_DIR"`
	Ephemeral bool   `envconfig:"EPHEMERAL" default:"false"`
	SeedUsage bool   `envconfig:"SEED_USAGE" default:"false"`

	// Embedded so their variables share the GRAYD_ prefix directly.
	LogConfig
	PauseConfig
	MetricsConfig
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	File        string `envconfig:"LOG_FILE"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// PauseConfig holds the pause trigger and its timing.
type PauseConfig struct {
	KeyCode     int           `envconfig:"PAUSE_KEY_CODE" default:"25"`
	LongPress   time.Duration `envconfig:"PAUSE_LONG_PRESS" default:"2s"`
	Duration    time.Duration `envconfig:"PAUSE_DURATION" default:"5m"`
	MinInterval time.Duration `envconfig:"PAUSE_MIN_INTERVAL" default:"30m"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `envconfig:"METRICS_ADDR"`
}

// Load loads configuration from GRAYD_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when the environment sets nothing.
func Default() *Config {
	d := dispatch.DefaultConfig()
	return &Config{
		LogConfig: LogConfig{Level: "info"},
		PauseConfig: PauseConfig{
			KeyCode:     d.PauseKeyCode,
			LongPress:   d.PauseLongPress,
			Duration:    d.PauseDuration,
			MinInterval: d.MinTimeBetweenPauses,
		},
	}
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.LogConfig.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.PauseConfig.LongPress < 0 {
		errs = append(errs, fmt.Errorf("pause long press must not be negative: %s", c.PauseConfig.LongPress))
	}
	if c.PauseConfig.Duration <= 0 {
		errs = append(errs, fmt.Errorf("pause duration must be positive: %s", c.PauseConfig.Duration))
	}
	if c.PauseConfig.MinInterval < 0 {
		errs = append(errs, fmt.Errorf("pause min interval must not be negative: %s", c.PauseConfig.MinInterval))
	}
	return errors.Join(errs...)
}

// DispatchConfig maps the pause settings onto the dispatcher configuration.
func (c *Config) DispatchConfig() dispatch.Config {
	d := dispatch.DefaultConfig()
	d.PauseKeyCode = c.PauseConfig.KeyCode
	d.PauseLongPress = c.PauseConfig.LongPress
	d.PauseDuration = c.PauseConfig.Duration
	d.MinTimeBetweenPauses = c.PauseConfig.MinInterval
	return d
}

// LogLevel returns the parsed log level, Info when unparseable.
func (c *Config) LogLevel() zapcore.Level {
	lvl, err := zapcore.ParseLevel(c.LogConfig.Level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
