package driven

import (
	"context"
	"encoding/json"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

// ListRequest is one page request against the unified list API.
// Empty UnifiedModel and IntegratedAccountID fall back to the client's configuration.
type ListRequest struct {
	UnifiedModel        string
	Resource            string
	IntegratedAccountID string
	NextCursor          string
	IgnoreRemoteData    bool
	Filters             map[string]string
}

// ListPage is one raw page returned by the unified list API.
type ListPage struct {
	Items      []json.RawMessage
	NextCursor string
}

// UpstreamClient lists records from the third-party platform.
// Throttled responses surface as *domain.StatusError with StatusCode 429.
type UpstreamClient interface {
	List(ctx context.Context, req ListRequest) (*ListPage, error)
}

// Page is one validated page of records.
// An empty NextCursor signals the end of the listing.
type Page struct {
	Items      []domain.Record
	NextCursor string
}

// CursorFetcher fetches a single page of records for one entity type.
// Failures are either *domain.RateLimitError or *domain.UpstreamError.
type CursorFetcher interface {
	Fetch(ctx context.Context, resumeCursor string) (*Page, error)
}

// FetcherProvider hands out the cursor fetcher for an entity type.
type FetcherProvider interface {
	Fetcher(entityType domain.EntityType) (CursorFetcher, error)
}
