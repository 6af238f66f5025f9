package store

import (
	"fmt"
	"time"
)

// Config selects and configures the persistence backend.
type Config struct {
	// Backend names a registered backend: "memory", "sqlite", "postgres"
	// or one added with RegisterBackend.
	Backend string `json:"backend"`
	// Path is the SQLite database file.
	Path string `json:"path"`
	// DSN is the PostgreSQL connection URL.
	DSN      string        `json:"dsn"`
	MaxConns int           `json:"max_conns"`
	Breaker  BreakerConfig `json:"breaker"`
}

// BreakerConfig tunes the circuit breaker wrapped around the store.
type BreakerConfig struct {
	Enabled bool `json:"enabled"`
	// FailureThreshold is the number of consecutive failures that opens the breaker.
	FailureThreshold uint32 `json:"failure_threshold"`
	// OpenTimeoutSeconds is how long the breaker stays open before probing.
	OpenTimeoutSeconds int `json:"open_timeout_seconds"`
	// HalfOpenRequests is the number of trial requests allowed while half-open.
	HalfOpenRequests uint32 `json:"half_open_requests"`
}

// OpenTimeout returns the open state duration.
func (c BreakerConfig) OpenTimeout() time.Duration {
	return time.Duration(c.OpenTimeoutSeconds) * time.Second
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "sqlite"
	}
	if c.Backend == "sqlite" && c.Path == "" {
		c.Path = "lubricentro.db"
	}
	if c.Breaker.FailureThreshold == 0 {
		c.Breaker.FailureThreshold = 5
	}
	if c.Breaker.OpenTimeoutSeconds <= 0 {
		c.Breaker.OpenTimeoutSeconds = 30
	}
	if c.Breaker.HalfOpenRequests == 0 {
		c.Breaker.HalfOpenRequests = 1
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	switch c.Backend {
	case "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store.path is required for sqlite")
		}
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("store.dsn is required for postgres")
		}
	default:
		if _, ok := lookupBackend(c.Backend); !ok {
			return fmt.Errorf("unknown store backend %s", c.Backend)
		}
	}
	return nil
}
