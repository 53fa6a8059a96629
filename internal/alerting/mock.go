package alerting

import (
	"context"
	"sync"
)

// MockAlerter records alerts in memory. Tests use it in place of real
// channels.
type MockAlerter struct {
	mu     sync.Mutex
	alerts []Alert
	err    error
}

// NewMockAlerter creates an empty recorder.
func NewMockAlerter() *MockAlerter {
	return &MockAlerter{}
}

// FailWith makes Send record the alert and then return err.
func (m *MockAlerter) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockAlerter) Name() string {
	return "mock"
}

func (m *MockAlerter) Send(_ context.Context, alert Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, alert)
	return m.err
}

// Alerts returns a copy of everything sent so far.
func (m *MockAlerter) Alerts() []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Alert(nil), m.alerts...)
}

// Events returns the event of each alert in send order.
func (m *MockAlerter) Events() []AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	events := make([]AlertEvent, len(m.alerts))
	for i, a := range m.alerts {
		events[i] = a.Event
	}
	return events
}

// Find returns the alerts raised for event.
func (m *MockAlerter) Find(event AlertEvent) []Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found []Alert
	for _, a := range m.alerts {
		if a.Event == event {
			found = append(found, a)
		}
	}
	return found
}
