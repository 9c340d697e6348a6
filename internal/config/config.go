// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	Cache       CacheConfig

	// GracePeriod is how long a lost connection may stay unaccounted for
	// before the session is forced from active to paused.
	GracePeriod time.Duration
	// AbandonAfter is the inactivity interval after which a non-terminal
	// session is abandoned.
	AbandonAfter time.Duration
	// SweepInterval is how often the abandonment worker scans for idle
	// sessions.
	SweepInterval time.Duration
}

// CacheConfig controls the session state cache.
type CacheConfig struct {
	Path     string
	InMemory bool
	TTL      time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/interviews.db"),
		Cache: CacheConfig{
			Path:     getEnv("CACHE_PATH", "./data/cache"),
			InMemory: getEnvBool("CACHE_IN_MEMORY", false),
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		},
		GracePeriod:   getEnvDuration("GRACE_PERIOD", 30*time.Second),
		AbandonAfter:  getEnvDuration("ABANDON_AFTER", 30*time.Minute),
		SweepInterval: getEnvDuration("SWEEP_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if !c.Cache.InMemory && c.Cache.Path == "" {
		return fmt.Errorf("CACHE_PATH cannot be empty unless CACHE_IN_MEMORY is set")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.GracePeriod <= 0 {
		return fmt.Errorf("GRACE_PERIOD must be positive")
	}
	if c.AbandonAfter <= c.GracePeriod {
		return fmt.Errorf("ABANDON_AFTER must exceed GRACE_PERIOD")
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
