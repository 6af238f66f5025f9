package prediction

import "fmt"

const (
	DefaultServiceIntervalKm = 10000
	DefaultMinDataPoints     = 2
	DefaultHistoryLimit      = 5
	DefaultMaxHorizonDays    = 3650
)

// Config defines estimator parameters loaded from configuration.
type Config struct {
	// ServiceIntervalKm is the distance after the last service at which the
	// vehicle is due again.
	ServiceIntervalKm int `json:"service_interval_km"`
	// MinDataPoints is the minimum number of records needed to fit a trend.
	MinDataPoints int `json:"min_data_points"`
	// HistoryLimit caps the number of most recent records used.
	HistoryLimit int `json:"history_limit"`
	// MaxHorizonDays bounds how far ahead a projection may land. Trends
	// projecting further out are treated as degenerate.
	MaxHorizonDays int `json:"max_horizon_days"`
}

// DefaultConfig returns the standard estimator parameters.
func DefaultConfig() Config {
	return Config{
		ServiceIntervalKm: DefaultServiceIntervalKm,
		MinDataPoints:     DefaultMinDataPoints,
		HistoryLimit:      DefaultHistoryLimit,
		MaxHorizonDays:    DefaultMaxHorizonDays,
	}
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.ServiceIntervalKm == 0 {
		c.ServiceIntervalKm = DefaultServiceIntervalKm
	}
	if c.MinDataPoints == 0 {
		c.MinDataPoints = DefaultMinDataPoints
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = DefaultHistoryLimit
	}
	if c.MaxHorizonDays == 0 {
		c.MaxHorizonDays = DefaultMaxHorizonDays
	}
}

// Validate checks the parameters are usable for a regression.
func (c Config) Validate() error {
	if c.ServiceIntervalKm <= 0 {
		return fmt.Errorf("service_interval_km must be positive")
	}
	if c.MinDataPoints < 2 {
		return fmt.Errorf("min_data_points must be at least 2")
	}
	if c.HistoryLimit < c.MinDataPoints {
		return fmt.Errorf("history_limit (%d) must be >= min_data_points (%d)", c.HistoryLimit, c.MinDataPoints)
	}
	if c.MaxHorizonDays <= 0 {
		return fmt.Errorf("max_horizon_days must be positive")
	}
	return nil
}
