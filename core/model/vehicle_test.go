package model

import (
	"testing"
	"time"
)

func TestWorkOrderServiceRecord(t *testing.T) {
	km := 42000
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec, ok := WorkOrder{Status: StatusDelivered, CompletedAt: at, Odometer: &km}.ServiceRecord()
	if !ok {
		t.Fatalf("expected delivered order to produce a record")
	}
	if rec.Odometer != km || !rec.Date.Equal(at) {
		t.Fatalf("unexpected record %#v", rec)
	}
	if _, ok := (WorkOrder{Status: StatusDone}).ServiceRecord(); ok {
		t.Fatalf("order without odometer must be skipped")
	}
	if _, ok := (WorkOrder{Status: StatusInProgress, Odometer: &km}).ServiceRecord(); ok {
		t.Fatalf("open order must be skipped")
	}
}

func TestParseWorkOrderStatus(t *testing.T) {
	for _, s := range []WorkOrderStatus{StatusPending, StatusInProgress, StatusDone, StatusDelivered, StatusCancelled} {
		got, err := ParseWorkOrderStatus(s.String())
		if err != nil || got != s {
			t.Fatalf("round trip %s: got %v err %v", s, got, err)
		}
	}
	if _, err := ParseWorkOrderStatus("archived"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestDayDropsTimeOfDay(t *testing.T) {
	a := Day(time.Date(2025, 1, 2, 23, 59, 0, 0, time.UTC))
	b := Day(time.Date(2025, 1, 2, 0, 1, 0, 0, time.UTC))
	if !a.Equal(b) {
		t.Fatalf("expected same day, got %v and %v", a, b)
	}
}

func TestUsageHasPrediction(t *testing.T) {
	if (UsageFields{}).HasPrediction() {
		t.Fatalf("zero usage must not report a prediction")
	}
	u := UsageFields{AverageDailyDistance: 50, PredictedNextServiceDate: time.Now()}
	if !u.HasPrediction() {
		t.Fatalf("expected prediction")
	}
}
