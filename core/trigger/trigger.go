// Package trigger turns "work order completed" notifications into
// predictions for the affected vehicle.
package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lubricentro/usagepredict/core/lock"
	"github.com/lubricentro/usagepredict/core/logger"
	"github.com/lubricentro/usagepredict/core/monitoring"
	"github.com/lubricentro/usagepredict/core/prediction"
)

// Default transport names.
const (
	DefaultTopic = "lubricentro/workorders/completed"
	DefaultQueue = "workorders.completed"
)

// DefaultLockWait is how long Handle waits for a vehicle locked by a batch
// run or another trigger.
const DefaultLockWait = 15 * time.Second

// ErrInvalidEvent is returned for payloads that cannot identify a vehicle.
var ErrInvalidEvent = errors.New("invalid work order event")

// Event announces that a work order reached a completed status.
type Event struct {
	VehicleID   string `json:"vehicle_id"`
	WorkOrderID string `json:"work_order_id"`
}

// Decode parses a JSON payload.
func Decode(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if ev.VehicleID == "" {
		return Event{}, fmt.Errorf("%w: missing vehicle_id", ErrInvalidEvent)
	}
	return ev, nil
}

// Handler runs Predict for the vehicle of each event.
type Handler struct {
	engine   prediction.Engine
	locker   lock.Locker
	lockTTL  time.Duration
	lockWait time.Duration
	log      logger.Logger
	monitor  monitoring.Monitor
}

// HandlerOption customises a Handler.
type HandlerOption func(*Handler)

// WithLockWait sets how long Handle waits for a held vehicle lock. Zero
// gives up at once.
func WithLockWait(d time.Duration) HandlerOption {
	return func(h *Handler) { h.lockWait = d }
}

// NewHandler builds a Handler. A nil locker disables serialisation and a
// nil monitor disables error reporting.
func NewHandler(engine prediction.Engine, locker lock.Locker, lockTTL time.Duration, log logger.Logger, monitor monitoring.Monitor, opts ...HandlerOption) *Handler {
	if locker == nil {
		locker = lock.Nop{}
	}
	if monitor == nil {
		monitor = monitoring.NopMonitor{}
	}
	if lockTTL <= 0 {
		lockTTL = time.Minute
	}
	h := &Handler{engine: engine, locker: locker, lockTTL: lockTTL, lockWait: DefaultLockWait, log: log, monitor: monitor}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Handle predicts and persists the usage of ev.VehicleID. A vehicle locked
// elsewhere is retried until the lock wait elapses; after that Handle
// returns lock.ErrHeld so transports that support redelivery can retry
// later. No prediction is not an error.
func (h *Handler) Handle(ctx context.Context, ev Event) (*prediction.Result, error) {
	release, err := lock.Acquire(ctx, h.locker, lock.VehicleKey(ev.VehicleID), h.lockTTL, h.lockWait)
	if err != nil {
		if errors.Is(err, lock.ErrHeld) {
			h.log.Warnf("work order %s: vehicle %s still locked after %s", ev.WorkOrderID, ev.VehicleID, h.lockWait)
		} else if !errors.Is(err, context.Canceled) {
			h.monitor.CaptureException(err, map[string]string{
				"vehicle_id":    ev.VehicleID,
				"work_order_id": ev.WorkOrderID,
				"module":        "trigger",
			})
		}
		return nil, err
	}
	defer release()

	res, err := h.engine.Predict(ctx, ev.VehicleID)
	if err != nil {
		h.log.Errorf("predict vehicle %s after work order %s: %v", ev.VehicleID, ev.WorkOrderID, err)
		h.monitor.CaptureException(err, map[string]string{
			"vehicle_id":    ev.VehicleID,
			"work_order_id": ev.WorkOrderID,
			"module":        "trigger",
		})
		return nil, err
	}
	if res == nil {
		h.log.Debugf("work order %s: no prediction for vehicle %s", ev.WorkOrderID, ev.VehicleID)
		return nil, nil
	}
	h.log.Infof("work order %s: vehicle %s next service %s", ev.WorkOrderID, ev.VehicleID,
		res.PredictedDate.Format(time.DateOnly))
	return res, nil
}

// HandlePayload decodes and handles a raw message.
func (h *Handler) HandlePayload(ctx context.Context, payload []byte) (*prediction.Result, error) {
	ev, err := Decode(payload)
	if err != nil {
		return nil, err
	}
	return h.Handle(ctx, ev)
}
