package prediction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lubricentro/usagepredict/core/logger"
	coremetrics "github.com/lubricentro/usagepredict/core/metrics"
	"github.com/lubricentro/usagepredict/core/store"
)

// Engine computes next-service predictions for a single vehicle. A nil
// result with a nil error means no prediction is available.
type Engine interface {
	// Predict estimates and persists the usage fields of the vehicle.
	Predict(ctx context.Context, vehicleID string) (*Result, error)
	// Preview estimates without writing anything.
	Preview(ctx context.Context, vehicleID string) (*Result, error)
}

// Option customises a Predictor.
type Option func(*Predictor)

// WithRecorder records every attempt on the sink.
func WithRecorder(s coremetrics.MetricsSink) Option {
	return func(p *Predictor) {
		if s != nil {
			p.sink = s
		}
	}
}

// Listener is called synchronously after a prediction is persisted, with
// the context of the Predict call.
type Listener func(ctx context.Context, res Result)

// WithListener registers a callback invoked after each persisted prediction.
func WithListener(fn Listener) Option {
	return func(p *Predictor) {
		if fn != nil {
			p.listeners = append(p.listeners, fn)
		}
	}
}

// Predictor binds Estimate to a history source and a usage writer.
type Predictor struct {
	history   store.HistorySource
	writer    store.UsageWriter
	cfg       Config
	log       logger.Logger
	sink      coremetrics.MetricsSink
	listeners []Listener
	now       func() time.Time
}

// NewPredictor validates cfg and returns a Predictor.
func NewPredictor(history store.HistorySource, writer store.UsageWriter, cfg Config, log logger.Logger, opts ...Option) (*Predictor, error) {
	if history == nil || writer == nil {
		return nil, errors.New("history source and usage writer are required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("prediction config: %w", err)
	}
	p := &Predictor{
		history: history,
		writer:  writer,
		cfg:     cfg,
		log:     log,
		sink:    coremetrics.NopSink{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Config returns the effective estimator parameters.
func (p *Predictor) Config() Config { return p.cfg }

// Predict estimates the vehicle usage and overwrites its usage fields on
// success. Existing fields are left untouched when no prediction is
// available.
func (p *Predictor) Predict(ctx context.Context, vehicleID string) (*Result, error) {
	return p.run(ctx, vehicleID, true)
}

// Preview estimates the vehicle usage without persisting it.
func (p *Predictor) Preview(ctx context.Context, vehicleID string) (*Result, error) {
	return p.run(ctx, vehicleID, false)
}

func (p *Predictor) run(ctx context.Context, vehicleID string, persist bool) (*Result, error) {
	start := p.now()
	ev := coremetrics.PredictionEvent{VehicleID: vehicleID, Time: start}
	defer func() {
		ev.Duration = p.now().Sub(start)
		if err := p.sink.RecordPrediction(ev); err != nil {
			p.log.Warnf("record prediction for %s: %v", vehicleID, err)
		}
	}()

	hist, err := p.history.History(ctx, vehicleID, p.cfg.HistoryLimit)
	if err != nil {
		ev.Outcome = coremetrics.OutcomeFailed
		return nil, fmt.Errorf("history for vehicle %s: %w", vehicleID, err)
	}
	res, err := Estimate(MostRecent(hist, p.cfg.HistoryLimit), p.cfg)
	if err != nil {
		ev.Outcome = outcomeOf(err)
		p.logNoPrediction(vehicleID, err)
		if IsNoPrediction(err) {
			return nil, nil
		}
		return nil, err
	}
	res.VehicleID = vehicleID
	ev.Outcome = coremetrics.OutcomePredicted
	ev.AverageDailyDistance = res.AverageDailyDistance
	ev.DaysRemaining = res.DaysRemaining
	ev.Confidence = string(res.Confidence)
	ev.DataPoints = res.DataPoints

	if !persist {
		return &res, nil
	}
	if err := p.writer.WriteUsage(ctx, vehicleID, res.Usage()); err != nil {
		ev.Outcome = coremetrics.OutcomeFailed
		return nil, fmt.Errorf("write usage for vehicle %s: %w", vehicleID, err)
	}
	ev.Persisted = true
	p.log.Debugw("usage prediction stored", map[string]any{
		"vehicle_id":             vehicleID,
		"average_daily_distance": res.AverageDailyDistance,
		"predicted_date":         res.PredictedDate.Format(time.DateOnly),
		"confidence":             string(res.Confidence),
	})
	for _, fn := range p.listeners {
		fn(ctx, res)
	}
	return &res, nil
}

func (p *Predictor) logNoPrediction(vehicleID string, err error) {
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		p.log.Debugf("no prediction for vehicle %s: %v", vehicleID, err)
	case errors.Is(err, ErrDegenerateTrend), errors.Is(err, ErrInvalidRecord):
		p.log.Warnf("no prediction for vehicle %s, check odometer data: %v", vehicleID, err)
	default:
		p.log.Errorf("estimate vehicle %s: %v", vehicleID, err)
	}
}

func outcomeOf(err error) coremetrics.Outcome {
	switch {
	case errors.Is(err, ErrInsufficientHistory):
		return coremetrics.OutcomeInsufficientHistory
	case errors.Is(err, ErrDegenerateTrend):
		return coremetrics.OutcomeDegenerateTrend
	case errors.Is(err, ErrInvalidRecord):
		return coremetrics.OutcomeInvalidRecord
	default:
		return coremetrics.OutcomeFailed
	}
}
