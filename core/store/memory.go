package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lubricentro/usagepredict/core/model"
)

// MemoryStore keeps vehicles and work orders in memory for testing or
// lightweight usage.
type MemoryStore struct {
	mu       sync.RWMutex
	vehicles map[string]model.Vehicle
	orders   map[string][]model.WorkOrder
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		vehicles: map[string]model.Vehicle{},
		orders:   map[string][]model.WorkOrder{},
	}
}

// UpsertVehicle inserts the vehicle or updates its identity fields. Usage
// fields of an existing vehicle are preserved.
func (s *MemoryStore) UpsertVehicle(_ context.Context, v model.Vehicle) error {
	if err := v.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.vehicles[v.ID]; ok {
		v.Usage = cur.Usage
	}
	s.vehicles[v.ID] = v
	return nil
}

// Vehicle returns the vehicle or ErrNotFound.
func (s *MemoryStore) Vehicle(_ context.Context, id string) (model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vehicles[id]
	if !ok {
		return model.Vehicle{}, fmt.Errorf("vehicle %s: %w", id, ErrNotFound)
	}
	return v, nil
}

// AddWorkOrder records a work order. The vehicle must exist.
func (s *MemoryStore) AddWorkOrder(_ context.Context, wo model.WorkOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.vehicles[wo.VehicleID]; !ok {
		return fmt.Errorf("vehicle %s: %w", wo.VehicleID, ErrNotFound)
	}
	s.orders[wo.VehicleID] = append(s.orders[wo.VehicleID], wo)
	return nil
}

// History returns up to limit completed records, most recent first.
func (s *MemoryStore) History(_ context.Context, vehicleID string, limit int) ([]model.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.ServiceRecord
	for _, wo := range s.orders[vehicleID] {
		if rec, ok := wo.ServiceRecord(); ok {
			res = append(res, rec)
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Date.After(res[j].Date) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// WriteUsage overwrites the vehicle usage fields.
func (s *MemoryStore) WriteUsage(_ context.Context, vehicleID string, u model.UsageFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.vehicles[vehicleID]
	if !ok {
		return fmt.Errorf("vehicle %s: %w", vehicleID, ErrNotFound)
	}
	v.Usage = u
	s.vehicles[vehicleID] = v
	return nil
}

// VehicleIDs returns all vehicle identifiers in ascending order.
func (s *MemoryStore) VehicleIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.vehicles))
	for id := range s.vehicles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Upcoming returns vehicles predicted to be due before the given time.
func (s *MemoryStore) Upcoming(_ context.Context, before time.Time) ([]model.Vehicle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []model.Vehicle
	for _, v := range s.vehicles {
		if !v.Usage.HasPrediction() || v.Usage.PredictedNextServiceDate.After(before) {
			continue
		}
		res = append(res, v)
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i].Usage.PredictedNextServiceDate, res[j].Usage.PredictedNextServiceDate
		if a.Equal(b) {
			return res[i].ID < res[j].ID
		}
		return a.Before(b)
	})
	return res, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
