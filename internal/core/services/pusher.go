package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// DefaultPushConcurrency bounds concurrent destination writes in PushAll.
const DefaultPushConcurrency = 4

// PushRequest is one fully fetched batch bound for its destinations.
type PushRequest struct {
	EntityType domain.EntityType
	Items      []domain.Record
	Phase      domain.PhaseState

	// ItemTypes names the destinations; empty means the entity type itself.
	ItemTypes []string

	// Progress, when set, is emitted after the commit unless Phase is completed.
	Progress *int
}

func (r PushRequest) targets() []string {
	if len(r.ItemTypes) == 0 {
		return []string{string(r.EntityType)}
	}
	return r.ItemTypes
}

// RepositoryPusher writes batches to destinations and commits the matching
// phase only after every destination accepted the batch.
type RepositoryPusher struct {
	repos       driven.RepositoryProvider
	normalisers driven.NormaliserRegistry
	store       driven.SyncStateStore
	emitter     driven.EventEmitter
	reporter    *ErrorReporter
	concurrency int
	logger      *slog.Logger

	// commit serializes state mutation and persistence
	commit sync.Mutex
}

// RepositoryPusherConfig holds dependencies for RepositoryPusher.
type RepositoryPusherConfig struct {
	Repos       driven.RepositoryProvider
	Normalisers driven.NormaliserRegistry
	Store       driven.SyncStateStore
	Emitter     driven.EventEmitter
	Reporter    *ErrorReporter
	Concurrency int
	Logger      *slog.Logger
}

// NewRepositoryPusher creates a new pusher.
func NewRepositoryPusher(cfg RepositoryPusherConfig) *RepositoryPusher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := cfg.Reporter
	if reporter == nil {
		reporter = NewErrorReporter(cfg.Emitter, logger)
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultPushConcurrency
	}

	return &RepositoryPusher{
		repos:       cfg.Repos,
		normalisers: cfg.Normalisers,
		store:       cfg.Store,
		emitter:     cfg.Emitter,
		reporter:    reporter,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Push writes items for entityType and, on success, commits updated into
// state and persists it. On failure state is left untouched and the error
// is returned after being reported.
func (p *RepositoryPusher) Push(ctx context.Context, syncUnitID string, state *domain.SyncState, entityType domain.EntityType, items []domain.Record, updated domain.PhaseState, progress *int) error {
	return p.PushAll(ctx, syncUnitID, state, []PushRequest{{
		EntityType: entityType,
		Items:      items,
		Phase:      updated,
		Progress:   progress,
	}})
}

// PushAll fans every request out to its destinations concurrently. A
// request's phase is committed only when all of its destinations accepted
// the batch; failed requests leave their phase untouched. The returned
// error joins every failure.
func (p *RepositoryPusher) PushAll(ctx context.Context, syncUnitID string, state *domain.SyncState, reqs []PushRequest) error {
	reporter := p.reporter.ForSyncUnit(syncUnitID)

	type job struct {
		req      int
		itemType string
		repo     driven.Repository
		items    []domain.NormalizedItem
	}

	var jobs []job
	failed := make([]error, len(reqs))
	for i, req := range reqs {
		for _, itemType := range req.targets() {
			repo, ok := p.repos.GetRepo(itemType)
			if !ok {
				err := fmt.Errorf("%w for %s", domain.ErrRepositoryNotFound, itemType)
				reporter.Report(ctx, domain.ExtractionDataError, pushContext(itemType), err)
				failed[i] = errors.Join(failed[i], err)
				continue
			}
			items, err := p.normalise(itemType, req.Items)
			if err != nil {
				reporter.Report(ctx, domain.ExtractionDataError, pushContext(itemType), err)
				failed[i] = errors.Join(failed[i], err)
				continue
			}
			jobs = append(jobs, job{req: i, itemType: itemType, repo: repo, items: items})
		}
	}

	// skip is fixed before any destination write starts; only the jobs
	// below write to failed, and only under mu.
	skip := make([]bool, len(reqs))
	for i := range reqs {
		skip[i] = failed[i] != nil
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(p.concurrency)
	for _, j := range jobs {
		if skip[j.req] {
			continue
		}
		g.Go(func() error {
			if err := j.repo.Push(ctx, j.items); err != nil {
				perr := &domain.PushError{ItemType: j.itemType, Cause: err}
				reporter.Report(ctx, domain.ExtractionDataError, pushContext(j.itemType), perr)
				mu.Lock()
				failed[j.req] = errors.Join(failed[j.req], perr)
				mu.Unlock()
				return perr
			}
			p.logger.Debug("pushed batch", "sync_unit_id", syncUnitID, "item_type", j.itemType, "items", len(j.items))
			return nil
		})
	}
	_ = g.Wait()

	if err := p.commitSucceeded(ctx, syncUnitID, state, reqs, failed, reporter); err != nil {
		return errors.Join(append(failed, err)...)
	}
	return errors.Join(failed...)
}

// commitSucceeded applies and persists the phases of every request that did
// not fail, then emits their progress.
func (p *RepositoryPusher) commitSucceeded(ctx context.Context, syncUnitID string, state *domain.SyncState, reqs []PushRequest, failed []error, reporter *ErrorReporter) error {
	p.commit.Lock()
	defer p.commit.Unlock()

	next := state.Clone()
	committed := 0
	for i, req := range reqs {
		if failed[i] != nil {
			continue
		}
		next.SetPhase(req.EntityType, req.Phase)
		committed++
	}
	if committed == 0 {
		return nil
	}

	if err := p.store.Save(ctx, syncUnitID, next); err != nil {
		err = fmt.Errorf("persist sync state: %w", err)
		reporter.Report(ctx, domain.ExtractionDataError, msgExtractData, err)
		return err
	}
	*state = *next

	for i, req := range reqs {
		if failed[i] != nil || req.Progress == nil || req.Phase.Completed {
			continue
		}
		event := domain.NewProgressEvent(domain.ExtractionDataProgress, *req.Progress)
		event.SyncUnitID = syncUnitID
		if err := p.emitter.Emit(ctx, event); err != nil {
			p.logger.Warn("failed to emit progress event", "sync_unit_id", syncUnitID, "error", err)
		}
	}
	return nil
}

func (p *RepositoryPusher) normalise(itemType string, records []domain.Record) ([]domain.NormalizedItem, error) {
	n := p.normalisers.Get(itemType)
	if n == nil {
		return nil, fmt.Errorf("%w: no normaliser for %s", domain.ErrMalformedRecord, itemType)
	}
	items := make([]domain.NormalizedItem, 0, len(records))
	for _, rec := range records {
		item, err := n.Normalise(rec)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func pushContext(itemType string) string {
	if itemType == string(domain.EntityTypeUsers) {
		return msgPushUsers
	}
	return "Error while pushing " + itemType + " data to repository"
}
