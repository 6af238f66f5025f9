package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
	"github.com/lubricentro/usagepredict/core/store"
	"github.com/lubricentro/usagepredict/core/store/storetest"
)

func newStore(t *testing.T) store.Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "lubricentro.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreContract(t *testing.T) {
	storetest.Run(t, newStore)
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lubricentro.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ctx := context.Background()
	if err := s.UpsertVehicle(ctx, model.Vehicle{ID: "v1"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	km := 1200
	at := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	if err := s.AddWorkOrder(ctx, model.WorkOrder{ID: "wo1", VehicleID: "v1", Status: model.StatusInProgress, Odometer: &km}); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Completing the order on the kanban updates the same row.
	if err := s.AddWorkOrder(ctx, model.WorkOrder{ID: "wo1", VehicleID: "v1", Status: model.StatusDone, CompletedAt: at, Odometer: &km}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	recs, err := s.History(ctx, "v1", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(recs) != 1 || recs[0].Odometer != km || !recs[0].Date.Equal(at) {
		t.Fatalf("unexpected history %+v", recs)
	}
}
