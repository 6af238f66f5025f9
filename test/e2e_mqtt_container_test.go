package test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/lubricentro/usagepredict/app"
	"github.com/lubricentro/usagepredict/config"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/test/util"
)

type predictionMessage struct {
	MessageID  string            `json:"message_id"`
	Prediction prediction.Result `json:"prediction"`
}

func TestWorkOrderTriggerPublishesPrediction(t *testing.T) {
	util.RequireDocker(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker, cleanup, err := util.StartMosquitto(ctx)
	if err != nil {
		t.Fatalf("start mosquitto: %v", err)
	}
	defer cleanup()

	cfg := &config.Config{}
	cfg.Store.Backend = "memory"
	cfg.Refresh.Disabled = true
	cfg.MQTT.Broker = broker
	cfg.MQTT.TriggerTopic = "lubricentro/workorders/completed"
	cfg.SetDefaults()

	ms := seedFleet(t)
	svc, err := app.New(ctx, cfg, app.WithStore(ms))
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	defer svc.Close()
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() { _ = svc.Run(runCtx) }()

	got := make(chan predictionMessage, 4)
	sub := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-sub"))
	if tok := sub.Connect(); tok.Wait() && tok.Error() != nil {
		t.Fatalf("connect subscriber: %v", tok.Error())
	}
	defer sub.Disconnect(100)
	tok := sub.Subscribe("lubricentro/vehicles/+/prediction", 1, func(_ paho.Client, m paho.Message) {
		var msg predictionMessage
		if err := json.Unmarshal(m.Payload(), &msg); err == nil {
			got <- msg
		}
	})
	if tok.Wait() && tok.Error() != nil {
		t.Fatalf("subscribe: %v", tok.Error())
	}

	payload := []byte(`{"vehicle_id":"v1","work_order_id":"c"}`)
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		// the service subscribes asynchronously after connecting
		if tok := sub.Publish(cfg.MQTT.TriggerTopic, 1, false, payload); tok.Wait() && tok.Error() != nil {
			t.Fatalf("publish trigger: %v", tok.Error())
		}
		select {
		case msg := <-got:
			if msg.Prediction.VehicleID != "v1" || msg.Prediction.AverageDailyDistance != 60 {
				t.Fatalf("unexpected prediction %+v", msg.Prediction)
			}
			v, err := ms.Vehicle(ctx, "v1")
			if err != nil || !v.Usage.HasPrediction() {
				t.Fatalf("usage not persisted: %+v %v", v.Usage, err)
			}
			return
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("no prediction published")
		}
	}
}
