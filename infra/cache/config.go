package cache

import (
	"errors"
	"time"
)

// Config holds the Redis connection used for the prediction cache and the
// per-vehicle lock. An empty Addr disables both.
type Config struct {
	Addr       string `json:"addr"`
	Password   string `json:"password"`
	DB         int    `json:"db"`
	TTLSeconds int    `json:"ttl_seconds"`
	// Prefix namespaces every key.
	Prefix string `json:"prefix"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.TTLSeconds == 0 {
		c.TTLSeconds = 6 * 60 * 60
	}
	if c.Prefix == "" {
		c.Prefix = "usagepredict"
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TTLSeconds < 0 {
		return errors.New("redis.ttl_seconds must be >= 0")
	}
	if c.DB < 0 {
		return errors.New("redis.db must be >= 0")
	}
	return nil
}

// Enabled reports whether a Redis address is configured.
func (c Config) Enabled() bool { return c.Addr != "" }

// TTL returns the lifetime of cached predictions.
func (c Config) TTL() time.Duration { return time.Duration(c.TTLSeconds) * time.Second }
