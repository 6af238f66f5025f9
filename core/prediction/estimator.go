package prediction

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/lubricentro/usagepredict/core/model"
)

// Confidence is a coarse indication of how many records backed the fit.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// highConfidencePoints is the number of records from which a fit is HIGH.
const highConfidencePoints = 3

// Result is the outcome of a successful estimation.
type Result struct {
	VehicleID            string     `json:"vehicle_id,omitempty"`
	AverageDailyDistance float64    `json:"average_daily_distance"`
	PredictedDate        time.Time  `json:"predicted_date"`
	Confidence           Confidence `json:"confidence"`
	LastServiceDate      time.Time  `json:"last_service_date"`
	LastServiceMileage   int        `json:"last_service_mileage"`
	NextServiceMileage   int        `json:"next_service_mileage"`
	DaysRemaining        int        `json:"days_remaining"`
	DataPoints           int        `json:"data_points"`
}

// Usage returns the fields persisted on the vehicle record.
func (r Result) Usage() model.UsageFields {
	return model.UsageFields{
		AverageDailyDistance:     r.AverageDailyDistance,
		LastServiceDate:          r.LastServiceDate,
		LastServiceMileage:       r.LastServiceMileage,
		PredictedNextServiceDate: r.PredictedDate,
	}
}

// Estimate fits a least-squares line of odometer against days and projects
// the date the vehicle covers cfg.ServiceIntervalKm past its last service.
// The input slice is not modified. When no usable signal exists the
// returned error satisfies IsNoPrediction.
func Estimate(history []model.ServiceRecord, cfg Config) (Result, error) {
	cfg.SetDefaults()
	if len(history) < cfg.MinDataPoints {
		return Result{}, fmt.Errorf("%w: %d records, need %d", ErrInsufficientHistory, len(history), cfg.MinDataPoints)
	}
	for _, r := range history {
		if r.Odometer < 0 {
			return Result{}, fmt.Errorf("%w: negative odometer %d on %s", ErrInvalidRecord, r.Odometer, r.Date.Format(time.DateOnly))
		}
		if r.Date.IsZero() {
			return Result{}, fmt.Errorf("%w: missing date", ErrInvalidRecord)
		}
	}

	recs := SortAscending(history)
	first := model.Day(recs[0].Date)
	xs := make([]float64, len(recs))
	ys := make([]float64, len(recs))
	for i, r := range recs {
		xs[i] = float64(daysBetween(first, r.Date))
		ys[i] = float64(r.Odometer)
	}

	slope := Slope(xs, ys)
	if math.IsNaN(slope) || math.IsInf(slope, 0) || slope <= 0 {
		return Result{}, fmt.Errorf("%w: slope %v", ErrDegenerateTrend, slope)
	}

	last := recs[len(recs)-1]
	nextTarget := last.Odometer + cfg.ServiceIntervalKm
	kmRemaining := nextTarget - last.Odometer
	days := math.Ceil(float64(kmRemaining) / slope)
	if days > float64(cfg.MaxHorizonDays) {
		return Result{}, fmt.Errorf("%w: next service %.0f days out, limit %d", ErrDegenerateTrend, days, cfg.MaxHorizonDays)
	}
	daysRemaining := int(days)

	conf := ConfidenceLow
	if len(recs) >= highConfidencePoints {
		conf = ConfidenceHigh
	}
	return Result{
		AverageDailyDistance: slope,
		PredictedDate:        last.Date.AddDate(0, 0, daysRemaining),
		Confidence:           conf,
		LastServiceDate:      last.Date,
		LastServiceMileage:   last.Odometer,
		NextServiceMileage:   nextTarget,
		DaysRemaining:        daysRemaining,
		DataPoints:           len(recs),
	}, nil
}

// Slope returns the ordinary least-squares slope of ys against xs using the
// closed-form estimator. It is NaN when all xs are equal.
func Slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	sumX := floats.Sum(xs)
	sumY := floats.Sum(ys)
	sumXY := floats.Dot(xs, ys)
	sumXX := floats.Dot(xs, xs)
	return (n*sumXY - sumX*sumY) / (n*sumXX - sumX*sumX)
}

// SortAscending returns a copy of history ordered by date, oldest first.
// Records on the same instant are ordered by odometer.
func SortAscending(history []model.ServiceRecord) []model.ServiceRecord {
	recs := make([]model.ServiceRecord, len(history))
	copy(recs, history)
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Odometer < recs[j].Odometer
		}
		return recs[i].Date.Before(recs[j].Date)
	})
	return recs
}

// MostRecent returns the limit most recent records by date in ascending
// order. The input is not modified.
func MostRecent(history []model.ServiceRecord, limit int) []model.ServiceRecord {
	recs := SortAscending(history)
	if limit > 0 && len(recs) > limit {
		recs = recs[len(recs)-limit:]
	}
	return recs
}

// daysBetween counts calendar days from the day of from to the day of to.
func daysBetween(from, to time.Time) int {
	return int(math.Round(model.Day(to).Sub(model.Day(from)).Hours() / 24))
}
