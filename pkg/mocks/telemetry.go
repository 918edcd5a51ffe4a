package mocks

import (
	"sync"

	"github.com/user/remotevideo/pkg/ports"
)

// Event is a recorded telemetry event.
type Event struct {
	Name  string
	Value int
}

// Telemetry is a mock ports.Telemetry.
type Telemetry struct {
	mu     sync.Mutex
	events []Event
}

// NewTelemetry creates a recording telemetry sink.
func NewTelemetry() *Telemetry {
	return &Telemetry{}
}

func (m *Telemetry) RecordEvent(name string, value int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, Event{Name: name, Value: value})
}

// Count returns how many times name was recorded.
func (m *Telemetry) Count(name string) int {
	return len(m.Values(name))
}

// Values returns the values recorded for name, in order.
func (m *Telemetry) Values(name string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []int
	for _, e := range m.events {
		if e.Name == name {
			out = append(out, e.Value)
		}
	}
	return out
}

var _ ports.Telemetry = (*Telemetry)(nil)
