package model

import (
	"fmt"
	"time"
)

// Vehicle is a client vehicle tracked by the lubricentro.
type Vehicle struct {
	ID       string `json:"id"`
	Plate    string `json:"plate,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Brand    string `json:"brand,omitempty"`
	Model    string `json:"model,omitempty"`

	Usage UsageFields `json:"usage"`
}

// UsageFields holds the derived usage data written back by the predictor.
// All fields are zero until a first successful prediction.
type UsageFields struct {
	AverageDailyDistance     float64   `json:"average_daily_distance"`
	LastServiceDate          time.Time `json:"last_service_date"`
	LastServiceMileage       int       `json:"last_service_mileage"`
	PredictedNextServiceDate time.Time `json:"predicted_next_service_date"`
}

// HasPrediction reports whether the usage fields were ever populated.
func (u UsageFields) HasPrediction() bool {
	return u.AverageDailyDistance > 0 && !u.PredictedNextServiceDate.IsZero()
}

// Validate checks the vehicle identity fields.
func (v Vehicle) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("vehicle id is required")
	}
	return nil
}

// ServiceRecord is a completed service with its odometer reading in km.
type ServiceRecord struct {
	Date     time.Time `json:"date"`
	Odometer int       `json:"odometer"`
}

// Day truncates t to the start of its calendar day in UTC.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
