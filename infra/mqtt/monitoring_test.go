package mqtt

import (
	"errors"
	"fmt"
	"testing"
	"time"

	coremqtt "github.com/lubricentro/usagepredict/core/mqtt"
	"github.com/lubricentro/usagepredict/core/prediction"
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

func TestPublishErrorCaptured(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), fmt.Errorf("net fail")}}
	restoreClient(t, mc)
	mon := &recordMonitor{}
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", MaxRetries: 1, BackoffMS: 1}
	cli, err := NewPahoClient(cfg, WithMonitor(mon))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	err = cli.PublishPrediction(prediction.Result{VehicleID: "veh1"})
	if !errors.Is(err, coremqtt.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(mc.published))
	}
	if mon.err == nil {
		t.Fatalf("error not captured")
	}
	if mon.tags["vehicle_id"] != "veh1" || mon.tags["module"] != "mqtt" {
		t.Fatalf("tags not set")
	}
}

func TestMockPublisher(t *testing.T) {
	m := NewMockPublisher()
	m.FailIDs["bad"] = true
	if err := m.PublishPrediction(prediction.Result{VehicleID: "ok"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := m.PublishPrediction(prediction.Result{VehicleID: "bad"}); !errors.Is(err, coremqtt.ErrPublish) {
		t.Fatalf("expected ErrPublish got %v", err)
	}
	if _, ok := m.Published("ok"); !ok {
		t.Fatal("result not recorded")
	}
}
