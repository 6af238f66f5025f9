package prediction

import (
	"context"
	"sync"
)

// MockEngine returns configured results per vehicle. Vehicles without an
// entry get no prediction.
type MockEngine struct {
	mu        sync.Mutex
	Results   map[string]Result
	Errors    map[string]error
	Persisted []string
}

// Predict returns the configured result and records the vehicle as persisted.
func (m *MockEngine) Predict(_ context.Context, id string) (*Result, error) {
	res, err := m.lookup(id)
	if res != nil {
		m.mu.Lock()
		m.Persisted = append(m.Persisted, id)
		m.mu.Unlock()
	}
	return res, err
}

// Preview returns the configured result without recording anything.
func (m *MockEngine) Preview(_ context.Context, id string) (*Result, error) {
	return m.lookup(id)
}

func (m *MockEngine) lookup(id string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.Errors[id]; ok {
		return nil, err
	}
	r, ok := m.Results[id]
	if !ok {
		return nil, nil
	}
	r.VehicleID = id
	return &r, nil
}
