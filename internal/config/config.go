package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration. Defaults suit local development;
// every field can be overridden through LIVECLASS_* environment variables.
type Config struct {
	HTTP      HTTPConfig      `envconfig:"HTTP"`
	Database  DatabaseConfig  `envconfig:"DATABASE"`
	Scheduler SchedulerConfig `envconfig:"SCHEDULER"`
	Media     MediaConfig     `envconfig:"MEDIA"`
	Client    ClientConfig    `envconfig:"CLIENT"`
}

type HTTPConfig struct {
	Host         string        `envconfig:"HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Path    string        `envconfig:"PATH" default:"./data/liveclass.db"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"30s"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"1s"`
}

type MediaConfig struct {
	TokenSecret string        `envconfig:"TOKEN_SECRET" default:"dev-only-secret"`
	TokenTTL    time.Duration `envconfig:"TOKEN_TTL" default:"4h"`
}

type ClientConfig struct {
	JoinTimeout     time.Duration `envconfig:"JOIN_TIMEOUT" default:"10s"`
	TeardownTimeout time.Duration `envconfig:"TEARDOWN_TIMEOUT" default:"3s"`
}

// Load builds the configuration from defaults and LIVECLASS_* environment
// variables, then validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LIVECLASS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with no environment applied. Used by
// tests and as the base for programmatic overrides.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:    "./data/liveclass.db",
			Timeout: 30 * time.Second,
		},
		Scheduler: SchedulerConfig{
			PollInterval: time.Second,
		},
		Media: MediaConfig{
			TokenSecret: "dev-only-secret",
			TokenTTL:    4 * time.Hour,
		},
		Client: ClientConfig{
			JoinTimeout:     10 * time.Second,
			TeardownTimeout: 3 * time.Second,
		},
	}
}

// Validate rejects configurations that cannot produce a working system.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("scheduler poll interval must be positive")
	}
	if c.Media.TokenSecret == "" {
		return fmt.Errorf("media token secret cannot be empty")
	}
	if c.Media.TokenTTL <= 0 {
		return fmt.Errorf("media token TTL must be positive")
	}
	if c.Client.JoinTimeout <= 0 {
		return fmt.Errorf("client join timeout must be positive")
	}
	if c.Client.TeardownTimeout <= 0 {
		return fmt.Errorf("client teardown timeout must be positive")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
