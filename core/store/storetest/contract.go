// Package storetest holds the behaviour every store.Store implementation
// must satisfy. Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/store"
)

var base = time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)

// Run exercises the contract against stores returned by newStore. Each
// subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("HistoryFiltersAndOrders", func(t *testing.T) { testHistory(t, newStore(t)) })
	t.Run("HistoryLimit", func(t *testing.T) { testHistoryLimit(t, newStore(t)) })
	t.Run("WriteUsageOverwrites", func(t *testing.T) { testWriteUsage(t, newStore(t)) })
	t.Run("UpsertKeepsUsage", func(t *testing.T) { testUpsertKeepsUsage(t, newStore(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("Upcoming", func(t *testing.T) { testUpcoming(t, newStore(t)) })
}

func km(v int) *int { return &v }

func seed(t *testing.T, s store.Store, id string, orders ...model.WorkOrder) {
	t.Helper()
	ctx := context.Background()
	if err := s.UpsertVehicle(ctx, model.Vehicle{ID: id, Plate: "AB" + id}); err != nil {
		t.Fatalf("upsert %s: %v", id, err)
	}
	for i, wo := range orders {
		wo.VehicleID = id
		if wo.ID == "" {
			wo.ID = fmt.Sprintf("%s-%d", id, i)
		}
		if err := s.AddWorkOrder(ctx, wo); err != nil {
			t.Fatalf("add work order: %v", err)
		}
	}
}

func testHistory(t *testing.T, s store.Store) {
	seed(t, s, "v1",
		model.WorkOrder{Status: model.StatusDone, CompletedAt: base, Odometer: km(10000)},
		model.WorkOrder{Status: model.StatusCancelled, CompletedAt: base.AddDate(0, 0, 5), Odometer: km(10500)},
		model.WorkOrder{Status: model.StatusDelivered, CompletedAt: base.AddDate(0, 0, 30), Odometer: km(13000)},
		model.WorkOrder{Status: model.StatusDone, CompletedAt: base.AddDate(0, 0, 40)},
		model.WorkOrder{Status: model.StatusInProgress, CompletedAt: base.AddDate(0, 0, 50), Odometer: km(15000)},
	)
	seed(t, s, "v2", model.WorkOrder{Status: model.StatusDone, CompletedAt: base, Odometer: km(1)})

	got, err := s.History(context.Background(), "v1", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 completed records with odometer, got %+v", got)
	}
	if got[0].Odometer != 13000 || got[1].Odometer != 10000 {
		t.Fatalf("expected most recent first, got %+v", got)
	}
	if !got[0].Date.Equal(base.AddDate(0, 0, 30)) {
		t.Fatalf("unexpected date %v", got[0].Date)
	}
}

func testHistoryLimit(t *testing.T, s store.Store) {
	var orders []model.WorkOrder
	for i := 0; i < 7; i++ {
		orders = append(orders, model.WorkOrder{Status: model.StatusDone, CompletedAt: base.AddDate(0, 0, 10*i), Odometer: km(1000 * (i + 1))})
	}
	seed(t, s, "v1", orders...)
	got, err := s.History(context.Background(), "v1", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("expected 5 records got %d", len(got))
	}
	if got[0].Odometer != 7000 || got[4].Odometer != 3000 {
		t.Fatalf("expected the five most recent, got %+v", got)
	}
}

func testWriteUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "v1")
	u := model.UsageFields{
		AverageDailyDistance:     42.5,
		LastServiceDate:          base,
		LastServiceMileage:       50000,
		PredictedNextServiceDate: base.AddDate(0, 0, 236),
	}
	for i := 0; i < 2; i++ {
		if err := s.WriteUsage(ctx, "v1", u); err != nil {
			t.Fatalf("write usage: %v", err)
		}
	}
	v, err := s.Vehicle(ctx, "v1")
	if err != nil {
		t.Fatalf("vehicle: %v", err)
	}
	if v.Usage.AverageDailyDistance != u.AverageDailyDistance || v.Usage.LastServiceMileage != u.LastServiceMileage {
		t.Fatalf("usage not stored: %+v", v.Usage)
	}
	if !v.Usage.LastServiceDate.Equal(u.LastServiceDate) || !v.Usage.PredictedNextServiceDate.Equal(u.PredictedNextServiceDate) {
		t.Fatalf("usage dates not stored: %+v", v.Usage)
	}
}

func testUpsertKeepsUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "v1")
	u := model.UsageFields{AverageDailyDistance: 30, LastServiceDate: base, LastServiceMileage: 1000, PredictedNextServiceDate: base.AddDate(0, 0, 334)}
	if err := s.WriteUsage(ctx, "v1", u); err != nil {
		t.Fatalf("write usage: %v", err)
	}
	if err := s.UpsertVehicle(ctx, model.Vehicle{ID: "v1", Plate: "NEW123"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	v, err := s.Vehicle(ctx, "v1")
	if err != nil {
		t.Fatalf("vehicle: %v", err)
	}
	if v.Plate != "NEW123" || v.Usage.AverageDailyDistance != 30 {
		t.Fatalf("unexpected vehicle %+v", v)
	}
	ids, err := s.VehicleIDs(ctx)
	if err != nil || len(ids) != 1 || ids[0] != "v1" {
		t.Fatalf("ids %v err %v", ids, err)
	}
}

func testNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	if _, err := s.Vehicle(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound got %v", err)
	}
	if err := s.WriteUsage(ctx, "missing", model.UsageFields{AverageDailyDistance: 1}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on write got %v", err)
	}
	recs, err := s.History(ctx, "missing", 5)
	if err != nil || len(recs) != 0 {
		t.Fatalf("expected empty history got %v err %v", recs, err)
	}
}

func testUpcoming(t *testing.T, s store.Store) {
	ctx := context.Background()
	seed(t, s, "late")
	seed(t, s, "soon")
	seed(t, s, "none")
	write := func(id string, days int) {
		u := model.UsageFields{AverageDailyDistance: 50, LastServiceDate: base, LastServiceMileage: 1, PredictedNextServiceDate: base.AddDate(0, 0, days)}
		if err := s.WriteUsage(ctx, id, u); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}
	write("late", 90)
	write("soon", 10)
	got, err := s.Upcoming(ctx, base.AddDate(0, 0, 100))
	if err != nil {
		t.Fatalf("upcoming: %v", err)
	}
	if len(got) != 2 || got[0].ID != "soon" || got[1].ID != "late" {
		t.Fatalf("unexpected upcoming %+v", got)
	}
	got, err = s.Upcoming(ctx, base.AddDate(0, 0, 30))
	if err != nil || len(got) != 1 || got[0].ID != "soon" {
		t.Fatalf("unexpected window result %+v err %v", got, err)
	}
}
