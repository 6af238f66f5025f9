package test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/prediction"
	"github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/infra/logger"
	"github.com/lubricentro/usagepredict/infra/metrics"
	"github.com/lubricentro/usagepredict/jobs/refresh"
	"github.com/lubricentro/usagepredict/test/util"
)

func seedFleet(t *testing.T) *store.MemoryStore {
	t.Helper()
	ctx := context.Background()
	ms := store.NewMemoryStore()
	for _, id := range []string{"v1", "v2"} {
		if err := ms.UpsertVehicle(ctx, model.Vehicle{ID: id}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	for i, odo := range []int{50000, 51200, 52400} {
		km := odo
		wo := model.WorkOrder{
			ID:          string(rune('a' + i)),
			VehicleID:   "v1",
			Status:      model.StatusDone,
			CompletedAt: time.Date(2025, 4, 1+20*i, 9, 0, 0, 0, time.UTC),
			Odometer:    &km,
		}
		if err := ms.AddWorkOrder(ctx, wo); err != nil {
			t.Fatalf("work order: %v", err)
		}
	}
	return ms
}

func TestRefreshMetricsHTTPExposure(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewPromSinkWithRegistry(reg)
	if err != nil {
		t.Fatalf("prom sink: %v", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ms := seedFleet(t)
	pred, err := prediction.NewPredictor(ms, ms, prediction.DefaultConfig(), logger.NopLogger{}, prediction.WithRecorder(sink))
	if err != nil {
		t.Fatalf("predictor: %v", err)
	}
	job, err := refresh.New(ms, pred, refresh.Config{Workers: 2}, logger.NopLogger{}, refresh.WithRecorder(sink))
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	sum, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Predicted != 1 || sum.NoPrediction != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}

	ctx, cancel := context.WithTimeout(context.Background(), util.MetricTimeout)
	defer cancel()
	for _, want := range []string{
		`usagepredict_predictions_total{outcome="predicted",persisted="true"} 1`,
		`usagepredict_predictions_total{outcome="insufficient_history",persisted="false"} 1`,
		`usagepredict_refresh_runs_total 1`,
	} {
		if err := util.WaitForMetric(ctx, srv.URL+"/metrics", want); err != nil {
			t.Errorf("metrics: %v", err)
		}
	}
}
