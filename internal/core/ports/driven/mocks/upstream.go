package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var (
	_ driven.UpstreamClient  = (*MockUpstreamClient)(nil)
	_ driven.CursorFetcher   = (*MockCursorFetcher)(nil)
	_ driven.FetcherProvider = (*MockFetcherProvider)(nil)
)

// MockUpstreamClient is a mock implementation of UpstreamClient for testing
type MockUpstreamClient struct {
	mu       sync.Mutex
	ListFn   func(ctx context.Context, req driven.ListRequest) (*driven.ListPage, error)
	Requests []driven.ListRequest
}

func (m *MockUpstreamClient) List(ctx context.Context, req driven.ListRequest) (*driven.ListPage, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	m.mu.Unlock()
	if m.ListFn != nil {
		return m.ListFn(ctx, req)
	}
	return &driven.ListPage{}, nil
}

// FetchResponse is one scripted answer of MockCursorFetcher
type FetchResponse struct {
	Page *driven.Page
	Err  error
}

// MockCursorFetcher replays scripted responses in order. Once the script is
// exhausted the last response repeats.
type MockCursorFetcher struct {
	mu        sync.Mutex
	responses []FetchResponse
	calls     int

	// Cursors records the resume cursor of every call
	Cursors []string
}

// NewMockCursorFetcher creates a fetcher replaying responses
func NewMockCursorFetcher(responses ...FetchResponse) *MockCursorFetcher {
	return &MockCursorFetcher{responses: responses}
}

func (m *MockCursorFetcher) Fetch(ctx context.Context, resumeCursor string) (*driven.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Cursors = append(m.Cursors, resumeCursor)
	if len(m.responses) == 0 {
		return &driven.Page{}, nil
	}
	idx := m.calls
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	m.calls++
	resp := m.responses[idx]
	return resp.Page, resp.Err
}

// Calls returns how many times Fetch ran
func (m *MockCursorFetcher) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// MockFetcherProvider maps entity types to fetchers
type MockFetcherProvider struct {
	Fetchers map[domain.EntityType]driven.CursorFetcher
}

// NewMockFetcherProvider creates a provider serving one fetcher for users
func NewMockFetcherProvider(users driven.CursorFetcher) *MockFetcherProvider {
	return &MockFetcherProvider{Fetchers: map[domain.EntityType]driven.CursorFetcher{
		domain.EntityTypeUsers: users,
	}}
}

func (m *MockFetcherProvider) Fetcher(entityType domain.EntityType) (driven.CursorFetcher, error) {
	f, ok := m.Fetchers[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher for %s", domain.ErrInvalidInput, entityType)
	}
	return f, nil
}

// UserPage builds a page of user records with the given ids
func UserPage(nextCursor string, ids ...string) *driven.Page {
	page := &driven.Page{NextCursor: nextCursor}
	for _, id := range ids {
		page.Items = append(page.Items, domain.NewUserRecord(domain.User{
			ID:     id,
			Name:   "User " + id,
			Emails: []domain.UserEmail{{Email: id + "@example.com", IsPrimary: true}},
		}))
	}
	return page
}
