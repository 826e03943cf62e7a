// Package config loads the loom configuration from TOML with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/casualjim/loom/internal/executor"
	"github.com/casualjim/loom/provider"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "loom.toml"

type Config struct {
	Model   provider.Config `toml:"model"`
	Session SessionConfig   `toml:"session"`
	Events  EventsConfig    `toml:"events"`
	Log     LogConfig       `toml:"log"`
}

// SessionConfig tunes node execution.
type SessionConfig struct {
	DefaultToolLimit int    `toml:"default_tool_limit"` // negative means unlimited
	MaxRounds        int    `toml:"max_rounds"`
	Instructions     string `toml:"instructions"`
}

// EventsConfig selects where session events are published.
type EventsConfig struct {
	Broker  string `toml:"broker"` // none, local or nats
	NATSURL string `toml:"nats_url"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // console or json
}

func New() *Config {
	return &Config{
		Model: provider.Config{
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Session: SessionConfig{
			DefaultToolLimit: executor.DefaultToolLimit,
			MaxRounds:        executor.DefaultMaxRounds,
		},
		Events: EventsConfig{
			Broker: "none",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFile loads configuration from a TOML file on top of the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads path, or loom.toml in the working directory when path is empty and the
// file exists, then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := New()
	if path == "" {
		if cwd, err := os.Getwd(); err == nil {
			if candidate := filepath.Join(cwd, DefaultFile); fileExists(candidate) {
				path = candidate
			}
		}
	}
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from LOOM_* variables and NATS_URL.
func (c *Config) ApplyEnv() error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(name string, dst *int) error {
		v, ok := os.LookupEnv(name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = n
		return nil
	}

	setString("LOOM_PROVIDER", &c.Model.Provider)
	setString("LOOM_MODEL", &c.Model.Model)
	setString("LOOM_BASE_URL", &c.Model.BaseURL)
	setString("LOOM_API_KEY_ENV", &c.Model.APIKeyEnv)
	setString("LOOM_INSTRUCTIONS", &c.Session.Instructions)
	setString("LOOM_BROKER", &c.Events.Broker)
	setString("NATS_URL", &c.Events.NATSURL)
	setString("LOOM_LOG_LEVEL", &c.Log.Level)
	setString("LOOM_LOG_FORMAT", &c.Log.Format)

	return errors.Join(
		setInt("LOOM_DEFAULT_TOOL_LIMIT", &c.Session.DefaultToolLimit),
		setInt("LOOM_MAX_ROUNDS", &c.Session.MaxRounds),
	)
}

func (c *Config) Validate() error {
	var err error
	if c.Model.Provider == "" {
		err = errors.Join(err, errors.New("model.provider is required"))
	}
	if c.Session.MaxRounds < 0 {
		err = errors.Join(err, fmt.Errorf("session.max_rounds must not be negative, got %d", c.Session.MaxRounds))
	}
	switch c.Events.Broker {
	case "", "none", "local", "nats":
	default:
		err = errors.Join(err, fmt.Errorf("events.broker must be none, local or nats, got %q", c.Events.Broker))
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		err = errors.Join(err, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}
	return err
}

func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}
