// Package config loads lifequest settings from an optional YAML file and
// LIFEQUEST_* environment variables. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lifequest/internal/deadline"
	"github.com/roach88/lifequest/internal/gateway"
	"github.com/roach88/lifequest/internal/penalty"
	"github.com/roach88/lifequest/internal/quest"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "LIFEQUEST_"

// DefaultDatabasePath is used when no database path is configured.
const DefaultDatabasePath = "lifequest.db"

// Config is the full runtime configuration.
type Config struct {
	// DatabasePath is the SQLite file holding the durable documents.
	DatabasePath string `yaml:"database" env:"DATABASE"`
	// CatalogPath is an optional CUE file replacing the built-in shop.
	CatalogPath string `yaml:"catalog" env:"CATALOG"`
	// TimeZone names the zone of the daily reset. Empty means local time.
	TimeZone string `yaml:"timezone" env:"TIMEZONE"`

	TickInterval  time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	WarningWindow time.Duration `yaml:"warning_window" env:"WARNING_WINDOW"`
	PenaltyWindow time.Duration `yaml:"penalty_window" env:"PENALTY_WINDOW"`
	DailyCap      int           `yaml:"daily_cap" env:"DAILY_CAP"`

	Retry Retry `yaml:"retry" envPrefix:"RETRY_"`
	Log   Log   `yaml:"log" envPrefix:"LOG_"`
}

// Retry configures remote write retries.
type Retry struct {
	Attempts        uint          `yaml:"attempts" env:"ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" env:"INITIAL_INTERVAL"`
}

// Log configures the structured logger.
type Log struct {
	Format string `yaml:"format" env:"FORMAT"` // "text" | "json"
	Level  string `yaml:"level" env:"LEVEL"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DatabasePath:  DefaultDatabasePath,
		TickInterval:  deadline.DefaultTickInterval,
		WarningWindow: deadline.DefaultWarningWindow,
		PenaltyWindow: penalty.DefaultWindow,
		DailyCap:      quest.DefaultDailyCap,
		Retry: Retry{
			Attempts:        gateway.DefaultMaxTries,
			InitialInterval: gateway.DefaultInitialInterval,
		},
		Log: Log{Format: "text", Level: "info"},
	}
}

// Load reads path over the defaults, then applies the environment.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseEnv overlays LIFEQUEST_* variables onto target. Unset variables leave
// fields untouched.
func ParseEnv(target *Config) error {
	if err := env.ParseWithOptions(target, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.TickInterval <= 0 {
		errs = append(errs, fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval))
	}
	if c.WarningWindow <= 0 {
		errs = append(errs, fmt.Errorf("warning_window must be positive, got %s", c.WarningWindow))
	}
	if c.PenaltyWindow < 0 {
		errs = append(errs, fmt.Errorf("penalty_window must not be negative, got %s", c.PenaltyWindow))
	}
	if c.DailyCap < 1 {
		errs = append(errs, fmt.Errorf("daily_cap must be at least 1, got %d", c.DailyCap))
	}
	if c.Retry.Attempts < 1 {
		errs = append(errs, errors.New("retry.attempts must be at least 1"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Location resolves TimeZone.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// SlogLevel parses Level. Empty means info.
func (l Log) SlogLevel() (slog.Level, error) {
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
