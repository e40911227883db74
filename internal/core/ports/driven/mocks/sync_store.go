package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var _ driven.SyncStateStore = (*MockSyncStateStore)(nil)

// MockSyncStateStore is a mock implementation of SyncStateStore for testing.
// States are cloned on the way in and out so callers never share memory with the store.
type MockSyncStateStore struct {
	mu     sync.RWMutex
	states map[string]*domain.SyncState

	// Saves counts successful Save calls
	Saves int

	// SaveErr, when set, fails every Save
	SaveErr error

	// GetErr, when set, fails every Get
	GetErr error
}

// NewMockSyncStateStore creates a new MockSyncStateStore
func NewMockSyncStateStore() *MockSyncStateStore {
	return &MockSyncStateStore{
		states: make(map[string]*domain.SyncState),
	}
}

func (m *MockSyncStateStore) Save(ctx context.Context, syncUnitID string, state *domain.SyncState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.states[syncUnitID] = state.Clone()
	m.Saves++
	return nil
}

func (m *MockSyncStateStore) Get(ctx context.Context, syncUnitID string) (*domain.SyncState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	state, ok := m.states[syncUnitID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return state.Clone(), nil
}

func (m *MockSyncStateStore) Delete(ctx context.Context, syncUnitID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, syncUnitID)
	return nil
}

// Helper methods for testing

// Put seeds a state without counting a save
func (m *MockSyncStateStore) Put(syncUnitID string, state *domain.SyncState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[syncUnitID] = state.Clone()
}

// Phase returns the stored phase for an entity type
func (m *MockSyncStateStore) Phase(syncUnitID string, entityType domain.EntityType) (domain.PhaseState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[syncUnitID]
	if !ok {
		return domain.PhaseState{}, false
	}
	return state.Phase(entityType), true
}

func (m *MockSyncStateStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}
