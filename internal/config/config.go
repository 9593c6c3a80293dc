// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/Alpaca-Network/gatewayz-auth-go/internal/policy"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	// Gatewayz backend base URL (e.g. https://api.gatewayz.ai)
	APIBaseURL string `env:"GATEWAYZ_API_URL" envDefault:"https://api.gatewayz.ai"`

	// Session store (Redis). Empty falls back to an in-memory store,
	// meaning sessions do not survive process restarts.
	RedisURL string `env:"REDIS_URL" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Per-attempt timeouts
	SyncTimeout    time.Duration `env:"SYNC_TIMEOUT" envDefault:"15s"`
	RestoreTimeout time.Duration `env:"RESTORE_TIMEOUT" envDefault:"5s"`
	RefreshTimeout time.Duration `env:"REFRESH_TIMEOUT" envDefault:"10s"`

	// Retry policy for backend sync
	MaxSyncRetries    int           `env:"MAX_SYNC_RETRIES" envDefault:"2"`
	InitialBackoff    time.Duration `env:"INITIAL_BACKOFF" envDefault:"500ms"`
	BackoffMultiplier float64       `env:"BACKOFF_MULTIPLIER" envDefault:"2.0"`
	MaxBackoff        time.Duration `env:"MAX_BACKOFF" envDefault:"5s"`

	// Optional static network tier override (fast, moderate, slow,
	// very_slow). Empty means timeouts adapt to sampled conditions,
	// defaulting to moderate when no sample is available.
	NetworkTier string `env:"NETWORK_TIER" envDefault:""`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Backoff returns the retry backoff parameters as a policy config.
func (c *Config) Backoff() policy.BackoffConfig {
	return policy.BackoffConfig{
		Initial:    c.InitialBackoff,
		Multiplier: c.BackoffMultiplier,
		Max:        c.MaxBackoff,
	}
}

// Load parses environment variables and returns a Config.
// Returns an error if a variable fails to parse.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
