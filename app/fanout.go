package app

import (
	"context"
	"sync"

	"github.com/lubricentro/usagepredict/api/vehicles"
	"github.com/lubricentro/usagepredict/core/prediction"
)

// resultCache is the prediction cache the service keeps in step with the
// store.
type resultCache interface {
	vehicles.Cache
	Set(ctx context.Context, res prediction.Result) error
	Invalidate(ctx context.Context, vehicleID string) error
}

// inflight counts predictions handed to the fan-out that are not yet
// published.
type inflight struct {
	mu   sync.Mutex
	cond *sync.Cond
	n    int
}

func newInflight() *inflight {
	f := &inflight{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

func (f *inflight) add() {
	f.mu.Lock()
	f.n++
	f.mu.Unlock()
}

func (f *inflight) done() {
	f.mu.Lock()
	f.n--
	if f.n <= 0 {
		f.cond.Broadcast()
	}
	f.mu.Unlock()
}

func (f *inflight) wait() {
	f.mu.Lock()
	for f.n > 0 {
		f.cond.Wait()
	}
	f.mu.Unlock()
}

// onPersisted runs after every successful WriteUsage. The cache is written
// before Predict returns so readers never see an older cached value than
// the store holds. MQTT publishing goes through the bus and blocks the
// caller while the fan-out is saturated.
func (s *Service) onPersisted(ctx context.Context, res prediction.Result) {
	if s.cache != nil {
		if err := s.cache.Set(ctx, res); err != nil {
			s.log.Warnf("cache prediction for %s: %v", res.VehicleID, err)
			if err := s.cache.Invalidate(ctx, res.VehicleID); err != nil {
				s.log.Errorf("invalidate cached prediction for %s: %v", res.VehicleID, err)
			}
		}
	}
	if s.publisher == nil {
		return
	}
	s.pending.add()
	if err := s.bus.Publish(ctx, res); err != nil {
		s.pending.done()
		s.log.Warnf("prediction for %s not published: %v", res.VehicleID, err)
	}
}

// startFanOut forwards bus events to the MQTT publisher until the bus is
// closed.
func (s *Service) startFanOut() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopFanOut = cancel
	s.fanDone = s.bus.Consume(ctx, func(res prediction.Result) {
		defer s.pending.done()
		if err := s.publisher.PublishPrediction(res); err != nil {
			s.log.Warnf("publish prediction for %s: %v", res.VehicleID, err)
		}
	})
}
