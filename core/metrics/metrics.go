package metrics

import "time"

// Outcome labels the result of a single prediction attempt.
type Outcome string

const (
	OutcomePredicted           Outcome = "predicted"
	OutcomeInsufficientHistory Outcome = "insufficient_history"
	OutcomeDegenerateTrend     Outcome = "degenerate_trend"
	OutcomeInvalidRecord       Outcome = "invalid_record"
	OutcomeFailed              Outcome = "failed"
)

// PredictionEvent describes one prediction attempt for a vehicle.
type PredictionEvent struct {
	VehicleID            string
	Outcome              Outcome
	Persisted            bool
	AverageDailyDistance float64
	DaysRemaining        int
	Confidence           string
	DataPoints           int
	Duration             time.Duration
	Time                 time.Time
}

// MetricsSink records prediction outcomes for observability purposes.
type MetricsSink interface {
	RecordPrediction(ev PredictionEvent) error
}

// RefreshEvent summarises a batch refresh run.
type RefreshEvent struct {
	RunID        string
	Total        int
	Predicted    int
	NoPrediction int
	Failed       int
	Skipped      int
	Duration     time.Duration
	Time         time.Time
}

// RefreshRecorder records batch refresh runs.
type RefreshRecorder interface {
	RecordRefresh(ev RefreshEvent) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordPrediction(PredictionEvent) error { return nil }
func (NopSink) RecordRefresh(RefreshEvent) error       { return nil }

// MultiSink fans out events to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordPrediction forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordPrediction(ev PredictionEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordPrediction(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRefresh forwards refresh events when supported by the sink.
func (m *MultiSink) RecordRefresh(ev RefreshEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(RefreshRecorder); ok {
			if err := rec.RecordRefresh(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
