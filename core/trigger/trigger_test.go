package trigger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lubricentro/usagepredict/core/lock"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/infra/logger"
)

type recordMonitor struct {
	err  error
	tags map[string]string
}

func (r *recordMonitor) CaptureException(err error, tags map[string]string) {
	r.err = err
	r.tags = tags
}
func (r *recordMonitor) Recover()            {}
func (r *recordMonitor) Flush(time.Duration) {}

func TestDecode(t *testing.T) {
	ev, err := Decode([]byte(`{"vehicle_id":"v1","work_order_id":"wo9"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ev.VehicleID != "v1" || ev.WorkOrderID != "wo9" {
		t.Fatalf("unexpected event %+v", ev)
	}
	for _, bad := range []string{`{`, `{"work_order_id":"x"}`} {
		if _, err := Decode([]byte(bad)); !errors.Is(err, ErrInvalidEvent) {
			t.Fatalf("payload %s: expected ErrInvalidEvent got %v", bad, err)
		}
	}
}

func TestHandlePredicts(t *testing.T) {
	eng := &prediction.MockEngine{Results: map[string]prediction.Result{"v1": {DataPoints: 3}}}
	h := NewHandler(eng, nil, 0, logger.NopLogger{}, nil)
	res, err := h.HandlePayload(context.Background(), []byte(`{"vehicle_id":"v1","work_order_id":"wo1"}`))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res == nil || res.VehicleID != "v1" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(eng.Persisted) != 1 {
		t.Fatalf("expected persisted prediction")
	}
}

func TestHandleNoPrediction(t *testing.T) {
	h := NewHandler(&prediction.MockEngine{}, nil, 0, logger.NopLogger{}, nil)
	res, err := h.Handle(context.Background(), Event{VehicleID: "v2"})
	if err != nil || res != nil {
		t.Fatalf("expected (nil, nil) got (%v, %v)", res, err)
	}
}

func TestHandleFailureCaptured(t *testing.T) {
	eng := &prediction.MockEngine{Errors: map[string]error{"v1": errors.New("db down")}}
	mon := &recordMonitor{}
	h := NewHandler(eng, nil, 0, logger.NopLogger{}, mon)
	if _, err := h.Handle(context.Background(), Event{VehicleID: "v1", WorkOrderID: "wo1"}); err == nil {
		t.Fatal("expected error")
	}
	if mon.err == nil || mon.tags["vehicle_id"] != "v1" || mon.tags["work_order_id"] != "wo1" {
		t.Fatalf("failure not captured: %+v", mon)
	}
}

func TestHandleLockHeld(t *testing.T) {
	l := lock.NewLocal()
	release, err := l.TryLock(context.Background(), lock.VehicleKey("v1"), time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer release()
	eng := &prediction.MockEngine{Results: map[string]prediction.Result{"v1": {}}}
	h := NewHandler(eng, l, time.Minute, logger.NopLogger{}, nil, WithLockWait(0))
	if _, err := h.Handle(context.Background(), Event{VehicleID: "v1"}); !errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected ErrHeld got %v", err)
	}
	if len(eng.Persisted) != 0 {
		t.Fatal("prediction ran while the vehicle was locked")
	}
}

func TestHandleWaitsForBatchLock(t *testing.T) {
	l := lock.NewLocal()
	release, err := l.TryLock(context.Background(), lock.VehicleKey("v1"), time.Minute)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	time.AfterFunc(200*time.Millisecond, release)

	eng := &prediction.MockEngine{Results: map[string]prediction.Result{"v1": {DataPoints: 2}}}
	h := NewHandler(eng, l, time.Minute, logger.NopLogger{}, nil, WithLockWait(5*time.Second))
	res, err := h.Handle(context.Background(), Event{VehicleID: "v1", WorkOrderID: "wo7"})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if res == nil || len(eng.Persisted) != 1 {
		t.Fatalf("expected a persisted prediction once the lock was released, got %+v", res)
	}
}

type downLocker struct{}

func (downLocker) TryLock(context.Context, string, time.Duration) (func(), error) {
	return nil, errors.New("redis: connection refused")
}

func TestHandleLockerFailureCaptured(t *testing.T) {
	mon := &recordMonitor{}
	h := NewHandler(&prediction.MockEngine{}, downLocker{}, time.Minute, logger.NopLogger{}, mon)
	_, err := h.Handle(context.Background(), Event{VehicleID: "v1", WorkOrderID: "wo1"})
	if err == nil || errors.Is(err, lock.ErrHeld) {
		t.Fatalf("expected locker error, got %v", err)
	}
	if mon.err == nil || mon.tags["vehicle_id"] != "v1" {
		t.Fatalf("locker failure not captured: %+v", mon)
	}
}
