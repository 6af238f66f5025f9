package refresh

import (
	"errors"
	"time"
)

// Config controls the batch refresh job.
type Config struct {
	// IntervalMinutes is the ticker period of the service.
	IntervalMinutes int `json:"interval_minutes"`
	// Disabled turns the ticker off; Run can still be called directly.
	Disabled bool `json:"disabled"`
	// Workers bounds the number of vehicles refreshed concurrently.
	Workers int `json:"workers"`
	// LockTTLSeconds is the lifetime of a per-vehicle lock.
	LockTTLSeconds int `json:"lock_ttl_seconds"`
	// RunOnStart triggers a run as soon as the service starts.
	RunOnStart bool `json:"run_on_start"`
}

// SetDefaults applies default values.
func (c *Config) SetDefaults() {
	if c.IntervalMinutes <= 0 {
		c.IntervalMinutes = 24 * 60
	}
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.LockTTLSeconds <= 0 {
		c.LockTTLSeconds = 60
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.IntervalMinutes < 1 {
		return errors.New("refresh.interval_minutes must be >= 1")
	}
	if c.Workers < 1 {
		return errors.New("refresh.workers must be >= 1")
	}
	return nil
}

// Interval returns the ticker period.
func (c Config) Interval() time.Duration { return time.Duration(c.IntervalMinutes) * time.Minute }

// LockTTL returns the per-vehicle lock lifetime.
func (c Config) LockTTL() time.Duration { return time.Duration(c.LockTTLSeconds) * time.Second }
