package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven/mocks"
	"github.com/custodia-labs/sercha-extractor/internal/normalisers"
)

const testSyncUnit = "unit-1"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// harness wires the extraction components over in-memory mocks.
type harness struct {
	fetcher      *mocks.MockCursorFetcher
	fetchers     *mocks.MockFetcherProvider
	repos        *mocks.MockRepositoryProvider
	store        *mocks.MockSyncStateStore
	emitter      *mocks.MockEventEmitter
	processor    *EntityProcessor
	pusher       *RepositoryPusher
	orchestrator *SyncOrchestrator
}

type harnessOption func(*SyncOrchestratorConfig, *EntityProcessorConfig)

func withResetPolicy(p domain.ResetPolicy) harnessOption {
	return func(o *SyncOrchestratorConfig, _ *EntityProcessorConfig) { o.ResetPolicy = p }
}

func withRateLimitPolicy(p domain.RateLimitPolicy, sleep func(ctx context.Context, d time.Duration) error) harnessOption {
	return func(_ *SyncOrchestratorConfig, c *EntityProcessorConfig) {
		c.RateLimitPolicy = p
		c.Sleep = sleep
	}
}

func withMaxRateLimitRetries(n int) harnessOption {
	return func(_ *SyncOrchestratorConfig, c *EntityProcessorConfig) { c.MaxRateLimitRetries = n }
}

func newHarness(t *testing.T, fetcher *mocks.MockCursorFetcher, opts ...harnessOption) *harness {
	t.Helper()

	h := &harness{
		fetcher:  fetcher,
		fetchers: mocks.NewMockFetcherProvider(fetcher),
		repos:    mocks.NewMockRepositoryProvider("users"),
		store:    mocks.NewMockSyncStateStore(),
		emitter:  mocks.NewMockEventEmitter(),
	}

	ocfg := SyncOrchestratorConfig{Emitter: h.emitter, Logger: discardLogger()}
	pcfg := EntityProcessorConfig{Fetchers: h.fetchers, Emitter: h.emitter, Logger: discardLogger()}
	for _, opt := range opts {
		opt(&ocfg, &pcfg)
	}

	h.processor = NewEntityProcessor(pcfg)
	h.pusher = NewRepositoryPusher(RepositoryPusherConfig{
		Repos:       h.repos,
		Normalisers: normalisers.DefaultRegistry(),
		Store:       h.store,
		Emitter:     h.emitter,
		Logger:      discardLogger(),
	})
	ocfg.Processor = h.processor
	ocfg.Pusher = h.pusher
	h.orchestrator = NewSyncOrchestrator(ocfg)
	return h
}

func (h *harness) users() *mocks.MockRepository {
	return h.repos.Repos["users"]
}

func rateLimited(secs int) mocks.FetchResponse {
	return mocks.FetchResponse{Err: &domain.RateLimitError{RetryAfterSeconds: secs}}
}

func page(next string, ids ...string) mocks.FetchResponse {
	return mocks.FetchResponse{Page: mocks.UserPage(next, ids...)}
}
