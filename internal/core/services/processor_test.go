package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven/mocks"
)

func TestEntityProcessor_CompletedPhaseSkipsFetch(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher(page("", "u1")))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.PhaseState{Completed: true, TotalFetched: 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.fetcher.Calls() != 0 {
		t.Errorf("expected no fetch, got %d", h.fetcher.Calls())
	}
	if len(result.Items) != 0 {
		t.Errorf("expected no items, got %d", len(result.Items))
	}
	if result.Phase.TotalFetched != 7 {
		t.Errorf("expected phase untouched, got %+v", result.Phase)
	}
}

func TestEntityProcessor_FetchesUntilExhausted(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher(
		page("c1", "u1", "u2"),
		page("", "u3"),
	))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	if !result.Phase.Completed {
		t.Error("expected completed phase")
	}
	if result.Phase.TotalFetched != 3 {
		t.Errorf("expected 3 fetched, got %d", result.Phase.TotalFetched)
	}
	if result.Phase.LastProcessedID != "u3" {
		t.Errorf("expected last id u3, got %q", result.Phase.LastProcessedID)
	}
	if result.Phase.NextCursor != "" {
		t.Errorf("completed phase must not keep a cursor, got %q", result.Phase.NextCursor)
	}
	if got := h.fetcher.Cursors; len(got) != 2 || got[0] != "" || got[1] != "c1" {
		t.Errorf("unexpected cursors %v", got)
	}
	if len(h.emitter.Events()) != 0 {
		t.Errorf("expected no events from a clean pass, got %v", h.emitter.Types())
	}
}

func TestEntityProcessor_ResumesFromCursor(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher(page("", "u9")))

	phase := domain.PhaseState{NextCursor: "c4", TotalFetched: 8}
	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, phase)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.fetcher.Cursors[0] != "c4" {
		t.Errorf("expected resume at c4, got %q", h.fetcher.Cursors[0])
	}
	if result.Phase.TotalFetched != 9 {
		t.Errorf("expected running total 9, got %d", result.Phase.TotalFetched)
	}
}

func TestEntityProcessor_RateLimitKeepsCursor(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher(
		page("c1", "u1"),
		rateLimited(30),
	))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if err != nil {
		t.Fatalf("rate limits must not surface as errors: %v", err)
	}

	if !result.Suspended {
		t.Error("expected suspension after exhausting retries")
	}
	if result.Phase.Completed {
		t.Error("expected incomplete phase")
	}
	if result.Phase.NextCursor != "c1" {
		t.Errorf("expected cursor c1 kept, got %q", result.Phase.NextCursor)
	}
	if !result.Phase.RateLimited {
		t.Error("expected rate limited flag")
	}
	if len(result.Items) != 1 {
		t.Errorf("expected first page items kept, got %d", len(result.Items))
	}

	// one successful fetch plus DefaultMaxRateLimitRetries+1 throttled ones
	if h.fetcher.Calls() != 2+DefaultMaxRateLimitRetries {
		t.Errorf("expected %d fetches, got %d", 2+DefaultMaxRateLimitRetries, h.fetcher.Calls())
	}
	for _, c := range h.fetcher.Cursors[1:] {
		if c != "c1" {
			t.Errorf("throttled retries must reuse c1, got %q", c)
		}
	}

	delays := 0
	for _, e := range h.emitter.Events() {
		if e.Type == domain.ExtractionDataDelay {
			delays++
			if e.Delay == nil || *e.Delay != 30 {
				t.Errorf("expected delay 30, got %v", e.Delay)
			}
			if e.SyncUnitID != testSyncUnit {
				t.Errorf("expected sync unit on delay event, got %q", e.SyncUnitID)
			}
		}
	}
	if delays != DefaultMaxRateLimitRetries+1 {
		t.Errorf("expected %d delay events, got %d", DefaultMaxRateLimitRetries+1, delays)
	}
	if h.emitter.Count(domain.ExtractionDataError) != delays {
		t.Errorf("expected an error report per throttled fetch")
	}
}

func TestEntityProcessor_HonorPolicyWaits(t *testing.T) {
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	h := newHarness(t, mocks.NewMockCursorFetcher(
		page("c1", "u1"),
		rateLimited(12),
		page("", "u2"),
	), withRateLimitPolicy(domain.RateLimitPolicyHonor, sleep))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(slept) != 1 || slept[0] != 12*time.Second {
		t.Errorf("expected one 12s wait, got %v", slept)
	}
	if !result.Phase.Completed || result.Phase.RateLimited {
		t.Errorf("expected clean completion, got %+v", result.Phase)
	}
	if len(result.Items) != 2 {
		t.Errorf("expected 2 items, got %d", len(result.Items))
	}
}

func TestEntityProcessor_HonorPolicyWaitInterrupted(t *testing.T) {
	sleep := func(ctx context.Context, d time.Duration) error {
		return context.DeadlineExceeded
	}
	h := newHarness(t, mocks.NewMockCursorFetcher(rateLimited(60)),
		withRateLimitPolicy(domain.RateLimitPolicyHonor, sleep))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Suspended {
		t.Error("expected suspension when the wait is cut short")
	}
	if h.fetcher.Calls() != 1 {
		t.Errorf("expected a single fetch, got %d", h.fetcher.Calls())
	}
}

func TestEntityProcessor_UpstreamErrorStops(t *testing.T) {
	boom := &domain.UpstreamError{Cause: errors.New("connection reset")}
	h := newHarness(t, mocks.NewMockCursorFetcher(
		page("c1", "u1"),
		mocks.FetchResponse{Err: boom},
	))

	result, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if !errors.Is(err, boom) {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if result.Phase.NextCursor != "c1" || len(result.Items) != 1 {
		t.Errorf("expected progress up to c1 kept, got %+v", result)
	}

	last, ok := h.emitter.Last()
	if !ok || last.Type != domain.ExtractionDataError {
		t.Fatalf("expected error event, got %v", h.emitter.Types())
	}
	if last.Error.Message != boom.Error() {
		t.Errorf("expected cause message, got %q", last.Error.Message)
	}
}

func TestEntityProcessor_ExpiredContextSuspends(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher(page("", "u1")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.processor.Process(ctx, testSyncUnit, domain.EntityTypeUsers, domain.NewPhaseState())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Suspended {
		t.Error("expected suspension")
	}
	if h.fetcher.Calls() != 0 {
		t.Errorf("expected no fetch after budget expired, got %d", h.fetcher.Calls())
	}
}

func TestEntityProcessor_UnknownEntityType(t *testing.T) {
	h := newHarness(t, mocks.NewMockCursorFetcher())

	_, err := h.processor.Process(context.Background(), testSyncUnit, domain.EntityType("tickets"), domain.NewPhaseState())
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if h.emitter.Count(domain.ExtractionDataError) != 1 {
		t.Error("expected the failure to be reported")
	}
}
