package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// CursorFetcher fetches paged records for one entity type through the
// unified list API and validates them at the boundary.
type CursorFetcher struct {
	client driven.UpstreamClient
	base   driven.ListRequest
	kind   domain.RecordKind
	now    func() time.Time
}

var _ driven.CursorFetcher = (*CursorFetcher)(nil)

// NewCursorFetcher creates a fetcher. base carries every request parameter
// except the cursor.
func NewCursorFetcher(client driven.UpstreamClient, entityType domain.EntityType, base driven.ListRequest) (*CursorFetcher, error) {
	kind, ok := entityType.RecordKind()
	if !ok {
		return nil, fmt.Errorf("%w: unsupported entity type %q", domain.ErrInvalidInput, entityType)
	}
	if base.Resource == "" {
		base.Resource = string(entityType)
	}
	return &CursorFetcher{client: client, base: base, kind: kind, now: time.Now}, nil
}

// Fetch requests the page at resumeCursor. An empty cursor requests the first page.
func (f *CursorFetcher) Fetch(ctx context.Context, resumeCursor string) (*driven.Page, error) {
	req := f.base
	req.NextCursor = resumeCursor

	raw, err := f.client.List(ctx, req)
	if err != nil {
		return nil, f.classify(err)
	}

	page := &driven.Page{NextCursor: raw.NextCursor, Items: make([]domain.Record, 0, len(raw.Items))}
	for i, item := range raw.Items {
		rec, err := domain.DecodeRecord(f.kind, item)
		if err != nil {
			return nil, &domain.UpstreamError{Cause: fmt.Errorf("item %d: %w", i, err)}
		}
		page.Items = append(page.Items, rec)
	}
	return page, nil
}

// classify maps a client failure onto the two fetch error variants.
func (f *CursorFetcher) classify(err error) error {
	var rl *domain.RateLimitError
	if errors.As(err, &rl) {
		return rl
	}
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusTooManyRequests {
		return &domain.RateLimitError{RetryAfterSeconds: ParseRetryAfter(statusErr.RetryAfter, f.now())}
	}
	var upstream *domain.UpstreamError
	if errors.As(err, &upstream) {
		return upstream
	}
	return &domain.UpstreamError{Cause: err}
}

// ParseRetryAfter reads a Retry-After header value as delta-seconds or an
// HTTP date. Missing or unusable values yield domain.DefaultRetryAfterSeconds.
func ParseRetryAfter(value string, now time.Time) int {
	if value == "" {
		return domain.DefaultRetryAfterSeconds
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs < 0 {
			return domain.DefaultRetryAfterSeconds
		}
		return secs
	}
	if at, err := http.ParseTime(value); err == nil {
		wait := at.Sub(now)
		if wait <= 0 {
			return 0
		}
		return int((wait + time.Second - 1) / time.Second)
	}
	return domain.DefaultRetryAfterSeconds
}

// UpstreamFetchers builds cursor fetchers over one upstream client.
type UpstreamFetchers struct {
	client driven.UpstreamClient
	base   driven.ListRequest
}

var _ driven.FetcherProvider = (*UpstreamFetchers)(nil)

// NewUpstreamFetchers creates a provider; base supplies shared request parameters.
func NewUpstreamFetchers(client driven.UpstreamClient, base driven.ListRequest) *UpstreamFetchers {
	return &UpstreamFetchers{client: client, base: base}
}

// Fetcher returns a fetcher listing the resource named after entityType.
func (u *UpstreamFetchers) Fetcher(entityType domain.EntityType) (driven.CursorFetcher, error) {
	req := u.base
	req.Resource = string(entityType)
	return NewCursorFetcher(u.client, entityType, req)
}
