// Package config loads the relay's runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rsclarke/salonrelay/internal/pairing"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "SALONRELAY_"

// Status backends.
const (
	StatusBackendFile  = "file"
	StatusBackendRedis = "redis"
)

type Config struct {
	BackendURL  string `env:"BACKEND_URL" envDefault:"http://127.0.0.1:8000"`
	DataDir     string `env:"DATA_DIR" envDefault:"data"`
	TenantsFile string `env:"TENANTS_FILE"`
	AdminPort   int    `env:"ADMIN_PORT" envDefault:"3000"` // 0 disables the admin listener

	StatusBackend string `env:"STATUS_BACKEND" envDefault:"file"` // file|redis
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"salonrelay:status:"`

	WebhookTimeout time.Duration   `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`
	RetryMax       int             `env:"RETRY_MAX_RETRIES" envDefault:"3"`
	RetryDelays    []time.Duration `env:"RETRY_DELAYS" envDefault:"15s,30s,45s" envSeparator:","`
	RetryCooldown  time.Duration   `env:"RETRY_COOLDOWN" envDefault:"5m"`
	ReconnectDelay time.Duration   `env:"RECONNECT_DELAY" envDefault:"30s"`
	QRTerminal     bool            `env:"QR_TERMINAL" envDefault:"false"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration used when no variables are set.
func Default() Config {
	policy := pairing.DefaultRetryPolicy()
	return Config{
		BackendURL:     "http://127.0.0.1:8000",
		DataDir:        "data",
		AdminPort:      3000,
		StatusBackend:  StatusBackendFile,
		RedisAddr:      "127.0.0.1:6379",
		RedisPrefix:    "salonrelay:status:",
		WebhookTimeout: 10 * time.Second,
		RetryMax:       policy.MaxRetries,
		RetryDelays:    policy.Delays,
		RetryCooldown:  policy.Cooldown,
		ReconnectDelay: 30 * time.Second,
	}
}

func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend url %q", c.BackendURL)
	}
	if c.DataDir == "" {
		return errors.New("data dir is required")
	}
	if c.AdminPort < 0 || c.AdminPort > 65535 {
		return fmt.Errorf("invalid admin port %d", c.AdminPort)
	}
	switch c.StatusBackend {
	case StatusBackendFile:
	case StatusBackendRedis:
		if c.RedisAddr == "" {
			return errors.New("redis addr is required for the redis status backend")
		}
	default:
		return fmt.Errorf("unknown status backend %q", c.StatusBackend)
	}
	if c.WebhookTimeout <= 0 {
		return errors.New("webhook timeout must be positive")
	}
	if c.RetryMax < 0 {
		return errors.New("retry max must not be negative")
	}
	for _, d := range c.RetryDelays {
		if d < 0 {
			return errors.New("retry delays must not be negative")
		}
	}
	if c.RetryCooldown < 0 || c.ReconnectDelay < 0 {
		return errors.New("retry cooldown and reconnect delay must not be negative")
	}
	return nil
}

// RetryPolicy returns the client start retry policy.
func (c Config) RetryPolicy() pairing.RetryPolicy {
	delays := make([]time.Duration, len(c.RetryDelays))
	copy(delays, c.RetryDelays)
	return pairing.RetryPolicy{
		MaxRetries: c.RetryMax,
		Delays:     delays,
		Cooldown:   c.RetryCooldown,
	}
}

// DBPath returns the database file of a tenant's WhatsApp client.
func (c Config) DBPath(clientID string) string {
	return filepath.Join(c.DataDir, clientID+".db")
}

// StatusDir is where the file status backend keeps its records.
func (c Config) StatusDir() string {
	return filepath.Join(c.DataDir, "status")
}
