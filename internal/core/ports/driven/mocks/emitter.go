package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var _ driven.EventEmitter = (*MockEventEmitter)(nil)

// MockEventEmitter records emitted events
type MockEventEmitter struct {
	mu     sync.Mutex
	events []domain.ExtractorEvent

	// EmitErr, when set, is returned after recording
	EmitErr error
}

func NewMockEventEmitter() *MockEventEmitter {
	return &MockEventEmitter{}
}

func (m *MockEventEmitter) Emit(ctx context.Context, event domain.ExtractorEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return m.EmitErr
}

// Events returns a copy of every recorded event
func (m *MockEventEmitter) Events() []domain.ExtractorEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExtractorEvent, len(m.events))
	copy(out, m.events)
	return out
}

// Types returns the recorded event types in order
func (m *MockEventEmitter) Types() []domain.ExtractorEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ExtractorEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// Last returns the last recorded event
func (m *MockEventEmitter) Last() (domain.ExtractorEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.events) == 0 {
		return domain.ExtractorEvent{}, false
	}
	return m.events[len(m.events)-1], true
}

// Count returns how many events of type t were recorded
func (m *MockEventEmitter) Count(t domain.ExtractorEventType) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (m *MockEventEmitter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
