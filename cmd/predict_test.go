package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/prediction"
)

func TestPrintPredictionNoResult(t *testing.T) {
	var buf bytes.Buffer
	printPrediction(&buf, "v1", nil, false)
	if !strings.Contains(buf.String(), "not enough usable history") {
		t.Fatalf("unexpected output: %q", buf.String())
	}
}

func TestPrintPredictionDryRun(t *testing.T) {
	res := &prediction.Result{
		VehicleID:            "v1",
		AverageDailyDistance: 50,
		PredictedDate:        time.Date(2025, 9, 8, 0, 0, 0, 0, time.UTC),
		Confidence:           prediction.ConfidenceHigh,
		LastServiceDate:      time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC),
		LastServiceMileage:   30000,
		NextServiceMileage:   40000,
		DaysRemaining:        200,
		DataPoints:           3,
	}
	var buf bytes.Buffer
	printPrediction(&buf, "v1", res, true)
	out := buf.String()
	for _, want := range []string{"50.0 km", "2025-09-08 at 40000 km", "in 200 days", "HIGH (3 records)", "dry run"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPrintHistoryNeedsTwoRecords(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, []model.ServiceRecord{{Date: time.Now(), Odometer: 1000}})
	if buf.Len() != 0 {
		t.Fatalf("expected no chart, got %q", buf.String())
	}

	printHistory(&buf, []model.ServiceRecord{
		{Date: time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC), Odometer: 12000},
		{Date: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Odometer: 10000},
	})
	if !strings.Contains(buf.String(), "2025-01-01 to 2025-02-01") {
		t.Fatalf("caption not in chronological order: %q", buf.String())
	}
}
