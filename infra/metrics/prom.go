package metrics

import (
	"errors"
	"strconv"

	coremetrics "github.com/lubricentro/usagepredict/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records prediction and refresh events in Prometheus metrics.
type PromSink struct {
	predictions *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	usage       prometheus.Histogram
	daysLeft    prometheus.Histogram
	runs        prometheus.Counter
	lastRun     *prometheus.GaugeVec
	runDuration prometheus.Gauge
}

// NewPromSink registers prediction metrics on the default Prometheus registerer.
// The /metrics endpoint is served separately by StartPromServer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Collectors
// already registered by a previous sink are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.predictions, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "usagepredict_predictions_total",
		Help: "Prediction attempts by outcome",
	}, []string{"outcome", "persisted"})); err != nil {
		return nil, err
	}
	if s.duration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "usagepredict_prediction_duration_seconds",
		Help:    "Time spent reading history, estimating and persisting",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if s.usage, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "usagepredict_average_daily_km",
		Help:    "Fitted average daily distance of predicted vehicles",
		Buckets: []float64{5, 10, 20, 30, 50, 75, 100, 150, 250},
	})); err != nil {
		return nil, err
	}
	if s.daysLeft, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "usagepredict_days_to_service",
		Help:    "Days between the last service and the predicted next one",
		Buckets: []float64{7, 14, 30, 60, 90, 180, 365, 730},
	})); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usagepredict_refresh_runs_total",
		Help: "Completed batch refresh runs",
	})); err != nil {
		return nil, err
	}
	if s.lastRun, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "usagepredict_refresh_last_vehicles",
		Help: "Vehicles per result in the last batch refresh",
	}, []string{"result"})); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "usagepredict_refresh_last_duration_seconds",
		Help: "Duration of the last batch refresh",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPrediction counts the attempt and, on success, observes the fitted values.
func (s *PromSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	s.predictions.WithLabelValues(string(ev.Outcome), strconv.FormatBool(ev.Persisted)).Inc()
	s.duration.WithLabelValues(string(ev.Outcome)).Observe(ev.Duration.Seconds())
	if ev.Outcome == coremetrics.OutcomePredicted {
		s.usage.Observe(ev.AverageDailyDistance)
		s.daysLeft.Observe(float64(ev.DaysRemaining))
	}
	return nil
}

// RecordRefresh publishes the tallies of the last batch run.
func (s *PromSink) RecordRefresh(ev coremetrics.RefreshEvent) error {
	s.runs.Inc()
	s.lastRun.WithLabelValues("total").Set(float64(ev.Total))
	s.lastRun.WithLabelValues("predicted").Set(float64(ev.Predicted))
	s.lastRun.WithLabelValues("no_prediction").Set(float64(ev.NoPrediction))
	s.lastRun.WithLabelValues("failed").Set(float64(ev.Failed))
	s.lastRun.WithLabelValues("skipped").Set(float64(ev.Skipped))
	s.runDuration.Set(ev.Duration.Seconds())
	return nil
}

// RegisterDroppedEvents exposes fn as usagepredict_fanout_dropped_total on
// reg, replacing a collector left by a previous service. The returned func
// unregisters it.
func RegisterDroppedEvents(reg prometheus.Registerer, fn func() uint64) (func(), error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := prometheus.NewCounterFunc(prometheus.CounterOpts{
		Name: "usagepredict_fanout_dropped_total",
		Help: "Persisted predictions not handed to the MQTT publisher",
	}, func() float64 { return float64(fn()) })
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
		reg.Unregister(are.ExistingCollector)
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return func() { reg.Unregister(c) }, nil
}
