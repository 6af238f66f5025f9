package config

import (
	"errors"
	"time"
)

// HTTPConfig defines the API listener.
type HTTPConfig struct {
	// Addr is the listen address. Empty disables the API.
	Addr string `json:"addr"`
	// Token, when set, is required as a bearer token on POST /api/refresh.
	Token                  string `json:"token"`
	ReadTimeoutSeconds     int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `json:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `json:"shutdown_timeout_seconds"`
}

// SetDefaults applies sane defaults.
func (c *HTTPConfig) SetDefaults() {
	if c.ReadTimeoutSeconds <= 0 {
		c.ReadTimeoutSeconds = 10
	}
	if c.WriteTimeoutSeconds <= 0 {
		// a batch refresh is served synchronously
		c.WriteTimeoutSeconds = 300
	}
	if c.ShutdownTimeoutSeconds <= 0 {
		c.ShutdownTimeoutSeconds = 5
	}
}

// Validate checks the listener settings.
func (c HTTPConfig) Validate() error {
	if c.Token != "" && c.Addr == "" {
		return errors.New("http.token set without http.addr")
	}
	return nil
}

// ReadTimeout returns the read timeout.
func (c HTTPConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutSeconds) * time.Second
}

// WriteTimeout returns the write timeout.
func (c HTTPConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}

// ShutdownTimeout returns the graceful shutdown budget.
func (c HTTPConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}
