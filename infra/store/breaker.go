package store

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/lubricentro/usagepredict/core/model"
	corestore "github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/infra/logger"
)

// ErrStoreUnavailable is returned while the circuit breaker is open.
var ErrStoreUnavailable = errors.New("store unavailable: circuit open")

// BreakerStore wraps a store so that repeated infrastructure failures fail
// fast instead of piling up on a dead database. Not-found results do not
// count as failures.
type BreakerStore struct {
	next corestore.Store
	cb   *gobreaker.CircuitBreaker[any]
}

var _ corestore.Store = (*BreakerStore)(nil)

// NewBreakerStore wraps next with a circuit breaker configured by cfg.
func NewBreakerStore(next corestore.Store, cfg BreakerConfig, log logger.Logger) *BreakerStore {
	threshold := cfg.FailureThreshold
	settings := gobreaker.Settings{
		Name:        "store",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, corestore.ErrNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnf("circuit breaker %s changed from %s to %s", name, from, to)
		},
	}
	return &BreakerStore{next: next, cb: gobreaker.NewCircuitBreaker[any](settings)}
}

// State exposes the breaker state for diagnostics.
func (b *BreakerStore) State() gobreaker.State { return b.cb.State() }

func (b *BreakerStore) do(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrStoreUnavailable
	}
	return v, err
}

func (b *BreakerStore) History(ctx context.Context, vehicleID string, limit int) ([]model.ServiceRecord, error) {
	v, err := b.do(func() (any, error) { return b.next.History(ctx, vehicleID, limit) })
	if err != nil {
		return nil, err
	}
	return v.([]model.ServiceRecord), nil
}

func (b *BreakerStore) WriteUsage(ctx context.Context, vehicleID string, u model.UsageFields) error {
	_, err := b.do(func() (any, error) { return nil, b.next.WriteUsage(ctx, vehicleID, u) })
	return err
}

func (b *BreakerStore) VehicleIDs(ctx context.Context) ([]string, error) {
	v, err := b.do(func() (any, error) { return b.next.VehicleIDs(ctx) })
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (b *BreakerStore) UpsertVehicle(ctx context.Context, veh model.Vehicle) error {
	_, err := b.do(func() (any, error) { return nil, b.next.UpsertVehicle(ctx, veh) })
	return err
}

func (b *BreakerStore) Vehicle(ctx context.Context, id string) (model.Vehicle, error) {
	v, err := b.do(func() (any, error) { return b.next.Vehicle(ctx, id) })
	if err != nil {
		return model.Vehicle{}, err
	}
	return v.(model.Vehicle), nil
}

func (b *BreakerStore) AddWorkOrder(ctx context.Context, wo model.WorkOrder) error {
	_, err := b.do(func() (any, error) { return nil, b.next.AddWorkOrder(ctx, wo) })
	return err
}

func (b *BreakerStore) Upcoming(ctx context.Context, before time.Time) ([]model.Vehicle, error) {
	v, err := b.do(func() (any, error) { return b.next.Upcoming(ctx, before) })
	if err != nil {
		return nil, err
	}
	return v.([]model.Vehicle), nil
}

// Ping checks the wrapped store through the breaker. Stores without a
// connection are always healthy.
func (b *BreakerStore) Ping(ctx context.Context) error {
	p, ok := b.next.(corestore.Pinger)
	if !ok {
		return nil
	}
	_, err := b.do(func() (any, error) { return nil, p.Ping(ctx) })
	return err
}

func (b *BreakerStore) Close() error { return b.next.Close() }
