// Package config loads valuator settings from an optional YAML file, a
// .env file and the process environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every runtime setting of the service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Session  SessionConfig  `yaml:"session"`
	Drafts   DraftConfig    `yaml:"drafts"`
	Log      LogConfig      `yaml:"log"`
	EventBus EventBusConfig `yaml:"event_bus"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Port            int    `yaml:"port"`
	ShutdownTimeout string `yaml:"shutdown_timeout"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	// DSN is passed to the sqlite driver. Empty selects in-memory stores.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// SessionConfig bounds editing session lifetimes.
type SessionConfig struct {
	MaxAge      string `yaml:"max_age"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// DraftConfig controls draft retention.
type DraftConfig struct {
	TTL           string `yaml:"ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// EventBusConfig sizes the in-process event bus.
type EventBusConfig struct {
	BufferSize int `yaml:"buffer_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8080,
			ShutdownTimeout: "10s",
		},
		Database: DatabaseConfig{
			DSN:          "file:valuator.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
			MaxOpenConns: 1,
		},
		Session: SessionConfig{
			MaxAge:      "24h",
			IdleTimeout: "30m",
		},
		Drafts: DraftConfig{
			TTL:           "720h",
			SweepInterval: "1h",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		EventBus: EventBusConfig{BufferSize: 256},
	}
}

// Load reads path (when non-empty) over the defaults, then loads .env files
// and applies environment overrides. A missing .env file is not an error.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	for _, name := range []string{"VALUATOR_PORT", "PORT"} {
		if v := os.Getenv(name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			c.Server.Port = n
			break
		}
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		c.Database.DSN = v
	}
	if v := os.Getenv("VALUATOR_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("VALUATOR_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v := os.Getenv("VALUATOR_DRAFT_TTL"); v != "" {
		c.Drafts.TTL = v
	}
	if v := os.Getenv("VALUATOR_SESSION_IDLE_TIMEOUT"); v != "" {
		c.Session.IdleTimeout = v
	}
	return nil
}

// Validate checks ports and durations.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for name, v := range map[string]string{
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"session.max_age":         c.Session.MaxAge,
		"session.idle_timeout":    c.Session.IdleTimeout,
	} {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d == 0 {
			return fmt.Errorf("%s: duration %q must be positive", name, v)
		}
	}
	// Zero disables draft sweeping.
	for name, v := range map[string]string{
		"drafts.ttl":            c.Drafts.TTL,
		"drafts.sweep_interval": c.Drafts.SweepInterval,
	} {
		if _, err := parseDuration(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format %q: want json or console", c.Log.Format)
	}
	return nil
}

// ShutdownTimeout is the parsed server.shutdown_timeout.
func (c Config) ShutdownTimeout() time.Duration { return mustDuration(c.Server.ShutdownTimeout) }

// SessionMaxAge is the parsed session.max_age.
func (c Config) SessionMaxAge() time.Duration { return mustDuration(c.Session.MaxAge) }

// SessionIdleTimeout is the parsed session.idle_timeout.
func (c Config) SessionIdleTimeout() time.Duration { return mustDuration(c.Session.IdleTimeout) }

// DraftTTL is the parsed drafts.ttl.
func (c Config) DraftTTL() time.Duration { return mustDuration(c.Drafts.TTL) }

// DraftSweepInterval is the parsed drafts.sweep_interval.
func (c Config) DraftSweepInterval() time.Duration { return mustDuration(c.Drafts.SweepInterval) }

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %q must not be negative", s)
	}
	return d, nil
}

// mustDuration is only called on a validated Config.
func mustDuration(s string) time.Duration {
	d, _ := parseDuration(s)
	return d
}
