package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// DefaultMaxRateLimitRetries bounds consecutive throttled fetches per invocation.
const DefaultMaxRateLimitRetries = 3

// ProcessResult is what one entity-type pass produced.
type ProcessResult struct {
	EntityType domain.EntityType
	Items      []domain.Record
	Phase      domain.PhaseState

	// Suspended is set when the pass stopped before completion without
	// an upstream failure (time budget or exhausted rate-limit retries).
	Suspended bool
}

// EntityProcessor drives the cursor loop for one entity type.
type EntityProcessor struct {
	fetchers   driven.FetcherProvider
	emitter    driven.EventEmitter
	reporter   *ErrorReporter
	policy     domain.RateLimitPolicy
	maxRetries int
	sleep      func(ctx context.Context, d time.Duration) error
	logger     *slog.Logger
}

// EntityProcessorConfig holds dependencies for EntityProcessor.
type EntityProcessorConfig struct {
	Fetchers        driven.FetcherProvider
	Emitter         driven.EventEmitter
	Reporter        *ErrorReporter
	RateLimitPolicy domain.RateLimitPolicy

	// MaxRateLimitRetries caps consecutive throttled fetches; negative means unbounded.
	MaxRateLimitRetries int

	// Sleep waits under the honor policy (default: context-aware timer)
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// NewEntityProcessor creates a new entity processor.
func NewEntityProcessor(cfg EntityProcessorConfig) *EntityProcessor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = NewErrorReporter(cfg.Emitter, logger)
	}
	policy := cfg.RateLimitPolicy
	if policy == "" {
		policy = domain.RateLimitPolicyImmediate
	}
	maxRetries := cfg.MaxRateLimitRetries
	if maxRetries == 0 {
		maxRetries = DefaultMaxRateLimitRetries
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	return &EntityProcessor{
		fetchers:   cfg.Fetchers,
		emitter:    cfg.Emitter,
		reporter:   reporter,
		policy:     policy,
		maxRetries: maxRetries,
		sleep:      sleep,
		logger:     logger,
	}
}

// Process accumulates records for entityType starting from phase.
// A completed phase returns immediately with no items and no fetch.
// Non-rate-limit failures are reported and returned together with the
// items and phase reached so far.
func (p *EntityProcessor) Process(ctx context.Context, syncUnitID string, entityType domain.EntityType, phase domain.PhaseState) (*ProcessResult, error) {
	result := &ProcessResult{EntityType: entityType, Phase: phase}
	if phase.Completed {
		return result, nil
	}

	reporter := p.reporter.ForSyncUnit(syncUnitID)
	logger := p.logger.With("sync_unit_id", syncUnitID, "entity_type", entityType)

	fetcher, err := p.fetchers.Fetcher(entityType)
	if err != nil {
		reporter.Report(ctx, domain.ExtractionDataError, msgProcessUsers, err)
		return result, err
	}

	throttled := 0
	for {
		if ctx.Err() != nil {
			logger.Info("time budget reached, suspending", "total_fetched", result.Phase.TotalFetched)
			result.Suspended = true
			return result, nil
		}

		page, err := fetcher.Fetch(ctx, result.Phase.NextCursor)
		if err != nil {
			if secs, ok := domain.RetryAfter(err); ok {
				throttled++
				result.Phase.RateLimited = true
				p.emitDelay(ctx, syncUnitID, secs)
				reporter.Report(ctx, domain.ExtractionDataError, msgProcessUsers, err)

				if p.maxRetries > 0 && throttled > p.maxRetries {
					logger.Warn("rate limit retries exhausted, suspending", "attempts", throttled)
					result.Suspended = true
					return result, nil
				}
				if p.policy == domain.RateLimitPolicyHonor {
					if err := p.sleep(ctx, time.Duration(secs)*time.Second); err != nil {
						result.Suspended = true
						return result, nil
					}
				}
				continue
			}

			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				logger.Info("time budget reached during fetch, suspending")
				result.Suspended = true
				return result, nil
			}

			reporter.Report(ctx, domain.ExtractionDataError, msgProcessUsers, err)
			return result, err
		}

		throttled = 0
		lastID := ""
		if n := len(page.Items); n > 0 {
			lastID = page.Items[n-1].ID()
		}
		result.Items = append(result.Items, page.Items...)
		result.Phase.Advance(len(page.Items), lastID, page.NextCursor)

		logger.Debug("fetched page", "items", len(page.Items), "total_fetched", result.Phase.TotalFetched)

		if page.NextCursor == "" {
			result.Phase.Complete()
			return result, nil
		}
	}
}

func (p *EntityProcessor) emitDelay(ctx context.Context, syncUnitID string, secs int) {
	event := domain.NewDelayEvent(domain.ExtractionDataDelay, secs)
	event.SyncUnitID = syncUnitID
	if err := p.emitter.Emit(ctx, event); err != nil {
		p.logger.Warn("failed to emit delay event", "sync_unit_id", syncUnitID, "error", err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
