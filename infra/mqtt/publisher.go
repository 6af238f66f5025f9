package mqtt

import (
	"fmt"
	"sync"
	"time"

	coremqtt "github.com/lubricentro/usagepredict/core/mqtt"
	"github.com/lubricentro/usagepredict/core/prediction"
)

// Publisher mirrors the core mqtt.Publisher interface.
type Publisher = coremqtt.Publisher

// MockPublisher is a simple publisher used in tests.
type MockPublisher struct {
	Messages map[string]prediction.Result
	FailIDs  map[string]bool
	// Delay is slept before each publish to mimic a slow broker.
	Delay time.Duration
	mu    sync.Mutex
}

// NewMockPublisher creates a new MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		Messages: make(map[string]prediction.Result),
		FailIDs:  make(map[string]bool),
	}
}

// PublishPrediction records the result or returns an error if configured to fail.
func (m *MockPublisher) PublishPrediction(res prediction.Result) error {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailIDs[res.VehicleID] {
		return fmt.Errorf("%w: %s", coremqtt.ErrPublish, res.VehicleID)
	}
	m.Messages[res.VehicleID] = res
	return nil
}

// Published returns the last result sent for a vehicle.
func (m *MockPublisher) Published(vehicleID string) (prediction.Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Messages[vehicleID]
	return r, ok
}

// Count returns the number of vehicles with a published result.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Messages)
}
