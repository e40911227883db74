package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var (
	_ driven.Repository         = (*MockRepository)(nil)
	_ driven.RepositoryProvider = (*MockRepositoryProvider)(nil)
)

// MockRepository records every pushed batch
type MockRepository struct {
	mu      sync.Mutex
	Type    string
	Batches [][]domain.NormalizedItem

	// PushErr, when set, fails every Push
	PushErr error

	// PushFunc, when set, runs before the batch is recorded; an error fails the push
	PushFunc func(ctx context.Context, items []domain.NormalizedItem) error
}

func NewMockRepository(itemType string) *MockRepository {
	return &MockRepository{Type: itemType}
}

func (m *MockRepository) ItemType() string {
	return m.Type
}

func (m *MockRepository) Push(ctx context.Context, items []domain.NormalizedItem) error {
	if m.PushFunc != nil {
		if err := m.PushFunc(ctx, items); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PushErr != nil {
		return m.PushErr
	}
	batch := make([]domain.NormalizedItem, len(items))
	copy(batch, items)
	m.Batches = append(m.Batches, batch)
	return nil
}

// Items returns every pushed item in push order
func (m *MockRepository) Items() []domain.NormalizedItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []domain.NormalizedItem
	for _, b := range m.Batches {
		all = append(all, b...)
	}
	return all
}

// PushCount returns the number of accepted batches
func (m *MockRepository) PushCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Batches)
}

// MockRepositoryProvider serves a fixed set of repositories
type MockRepositoryProvider struct {
	Repos map[string]*MockRepository
}

// NewMockRepositoryProvider creates a provider with one repository per item type
func NewMockRepositoryProvider(itemTypes ...string) *MockRepositoryProvider {
	p := &MockRepositoryProvider{Repos: make(map[string]*MockRepository)}
	for _, t := range itemTypes {
		p.Repos[t] = NewMockRepository(t)
	}
	return p
}

func (m *MockRepositoryProvider) GetRepo(itemType string) (driven.Repository, bool) {
	r, ok := m.Repos[itemType]
	if !ok {
		return nil, false
	}
	return r, true
}
