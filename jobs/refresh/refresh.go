// Package refresh recomputes usage predictions for every vehicle.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/lubricentro/usagepredict/core/lock"
	"github.com/lubricentro/usagepredict/core/logger"
	coremetrics "github.com/lubricentro/usagepredict/core/metrics"
	"github.com/lubricentro/usagepredict/core/monitoring"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/store"
)

// Summary tallies one batch run.
type Summary struct {
	RunID        string        `json:"run_id"`
	Total        int           `json:"total"`
	Predicted    int           `json:"predicted"`
	NoPrediction int           `json:"no_prediction"`
	Failed       int           `json:"failed"`
	Skipped      int           `json:"skipped"`
	Duration     time.Duration `json:"duration_ns"`
	// FailedVehicles lists the vehicles whose prediction errored.
	FailedVehicles []string `json:"failed_vehicles,omitempty"`
}

// Job runs the predictor over all vehicles.
type Job struct {
	lister   store.VehicleLister
	engine   prediction.Engine
	cfg      Config
	log      logger.Logger
	locker   lock.Locker
	recorder coremetrics.RefreshRecorder
	monitor  monitoring.Monitor
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

// Option customises a Job.
type Option func(*Job)

// WithLocker serialises each vehicle through l.
func WithLocker(l lock.Locker) Option { return func(j *Job) { j.locker = l } }

// WithRecorder reports each run summary.
func WithRecorder(r coremetrics.RefreshRecorder) Option {
	return func(j *Job) { j.recorder = r }
}

// WithMonitor reports per-vehicle failures.
func WithMonitor(m monitoring.Monitor) Option { return func(j *Job) { j.monitor = m } }

// ErrRunning is returned when a run is requested while another one is active.
var ErrRunning = errors.New("refresh already running")

// New builds a Job.
func New(lister store.VehicleLister, engine prediction.Engine, cfg Config, log logger.Logger, opts ...Option) (*Job, error) {
	if lister == nil || engine == nil {
		return nil, errors.New("vehicle lister and engine are required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	j := &Job{
		lister:   lister,
		engine:   engine,
		cfg:      cfg,
		log:      log,
		locker:   lock.Nop{},
		recorder: coremetrics.NopSink{},
		monitor:  monitoring.NopMonitor{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Run predicts every listed vehicle once. A failing vehicle is counted and
// never aborts the run; only a listing failure or cancellation does.
func (j *Job) Run(ctx context.Context) (Summary, error) {
	j.mu.Lock()
	if j.running {
		j.mu.Unlock()
		return Summary{}, ErrRunning
	}
	j.running = true
	j.mu.Unlock()
	defer func() {
		j.mu.Lock()
		j.running = false
		j.mu.Unlock()
	}()

	start := j.now()
	sum := Summary{RunID: uuid.NewString()}
	log := j.log.With(map[string]any{"run_id": sum.RunID})

	ids, err := j.lister.VehicleIDs(ctx)
	if err != nil {
		return sum, fmt.Errorf("list vehicles: %w", err)
	}
	sum.Total = len(ids)
	log.Infof("refresh started for %d vehicles", sum.Total)

	var mu sync.Mutex
	tally := func(fn func(*Summary)) {
		mu.Lock()
		fn(&sum)
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(j.cfg.Workers)
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			j.refreshOne(ctx, log, sum.RunID, id, tally)
			return nil
		})
	}
	_ = g.Wait()

	sum.Duration = j.now().Sub(start)
	if err := j.recorder.RecordRefresh(coremetrics.RefreshEvent{
		RunID:        sum.RunID,
		Total:        sum.Total,
		Predicted:    sum.Predicted,
		NoPrediction: sum.NoPrediction,
		Failed:       sum.Failed,
		Skipped:      sum.Skipped,
		Duration:     sum.Duration,
		Time:         start,
	}); err != nil {
		log.Warnf("record refresh: %v", err)
	}
	if err := ctx.Err(); err != nil {
		log.Warnf("refresh interrupted after %d of %d vehicles", sum.processed(), sum.Total)
		return sum, err
	}
	log.Infof("refresh done: predicted=%d no_prediction=%d failed=%d skipped=%d in %s",
		sum.Predicted, sum.NoPrediction, sum.Failed, sum.Skipped, sum.Duration)
	return sum, nil
}

func (j *Job) refreshOne(ctx context.Context, log logger.Logger, runID, id string, tally func(func(*Summary))) {
	release, err := j.locker.TryLock(ctx, lock.VehicleKey(id), j.cfg.LockTTL())
	switch {
	case errors.Is(err, lock.ErrHeld):
		tally(func(s *Summary) { s.Skipped++ })
		return
	case err != nil:
		j.fail(log, runID, id, fmt.Errorf("lock vehicle %s: %w", id, err), tally)
		return
	}
	defer release()

	res, err := j.engine.Predict(ctx, id)
	switch {
	case err != nil:
		j.fail(log, runID, id, err, tally)
	case res == nil:
		tally(func(s *Summary) { s.NoPrediction++ })
	default:
		tally(func(s *Summary) { s.Predicted++ })
	}
}

func (j *Job) fail(log logger.Logger, runID, id string, err error, tally func(func(*Summary))) {
	log.Errorf("refresh vehicle %s: %v", id, err)
	j.monitor.CaptureException(err, map[string]string{"vehicle_id": id, "run_id": runID})
	tally(func(s *Summary) {
		s.Failed++
		s.FailedVehicles = append(s.FailedVehicles, id)
	})
}

func (s Summary) processed() int {
	return s.Predicted + s.NoPrediction + s.Failed + s.Skipped
}

// Start runs the job every cfg.Interval until ctx is canceled. It returns
// immediately when the schedule is disabled.
func (j *Job) Start(ctx context.Context) {
	if j.cfg.Disabled {
		return
	}
	if j.cfg.RunOnStart {
		j.tick(ctx)
	}
	t := time.NewTicker(j.cfg.Interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			j.tick(ctx)
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	defer j.monitor.Recover()
	if _, err := j.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		j.log.Errorf("scheduled refresh: %v", err)
	}
}
