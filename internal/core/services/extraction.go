package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driving"
)

// MetadataItemType is the destination of the external domain metadata document.
const MetadataItemType = "external_domain_metadata"

// DefaultCheckpointTimeout bounds the post-timeout checkpoint (state save and final signal).
const DefaultCheckpointTimeout = 5 * time.Second

// ExtractionService dispatches invocation events to their handlers and
// guarantees every invocation signals upward at least once.
type ExtractionService struct {
	orchestrator      *SyncOrchestrator
	repos             driven.RepositoryProvider
	store             driven.SyncStateStore
	emitter           driven.EventEmitter
	reporter          *ErrorReporter
	syncUnits         []domain.ExternalSyncUnit
	metadata          json.RawMessage
	checkpointTimeout time.Duration
	logger            *slog.Logger
}

var _ driving.ExtractionService = (*ExtractionService)(nil)

// ExtractionServiceConfig holds dependencies for ExtractionService.
type ExtractionServiceConfig struct {
	Fetchers    driven.FetcherProvider
	Repos       driven.RepositoryProvider
	Normalisers driven.NormaliserRegistry
	Store       driven.SyncStateStore
	Emitter     driven.EventEmitter

	SyncUnits []domain.ExternalSyncUnit
	Metadata  json.RawMessage

	EntityTypes         []domain.EntityType
	Targets             map[domain.EntityType][]string
	ResetPolicy         domain.ResetPolicy
	RateLimitPolicy     domain.RateLimitPolicy
	MaxRateLimitRetries int
	PushConcurrency     int
	CheckpointMargin    time.Duration
	CheckpointTimeout   time.Duration

	Sleep  func(ctx context.Context, d time.Duration) error
	Now    func() time.Time
	Logger *slog.Logger
}

// NewExtractionService wires the processor, pusher and orchestrator over
// the given ports.
func NewExtractionService(cfg ExtractionServiceConfig) *ExtractionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := NewRecordingEmitter(cfg.Emitter)
	reporter := NewErrorReporter(emitter, logger)

	processor := NewEntityProcessor(EntityProcessorConfig{
		Fetchers:            cfg.Fetchers,
		Emitter:             emitter,
		Reporter:            reporter,
		RateLimitPolicy:     cfg.RateLimitPolicy,
		MaxRateLimitRetries: cfg.MaxRateLimitRetries,
		Sleep:               cfg.Sleep,
		Logger:              logger,
	})
	pusher := NewRepositoryPusher(RepositoryPusherConfig{
		Repos:       cfg.Repos,
		Normalisers: cfg.Normalisers,
		Store:       cfg.Store,
		Emitter:     emitter,
		Reporter:    reporter,
		Concurrency: cfg.PushConcurrency,
		Logger:      logger,
	})
	orchestrator := NewSyncOrchestrator(SyncOrchestratorConfig{
		Processor:         processor,
		Pusher:            pusher,
		Emitter:           emitter,
		EntityTypes:       cfg.EntityTypes,
		Targets:           cfg.Targets,
		ResetPolicy:       cfg.ResetPolicy,
		CheckpointMargin:  cfg.CheckpointMargin,
		CheckpointTimeout: cfg.CheckpointTimeout,
		Now:               cfg.Now,
		Logger:            logger,
	})

	checkpointTimeout := cfg.CheckpointTimeout
	if checkpointTimeout <= 0 {
		checkpointTimeout = DefaultCheckpointTimeout
	}

	return &ExtractionService{
		orchestrator:      orchestrator,
		repos:             cfg.Repos,
		store:             cfg.Store,
		emitter:           emitter,
		reporter:          reporter,
		syncUnits:         cfg.SyncUnits,
		metadata:          cfg.Metadata,
		checkpointTimeout: checkpointTimeout,
		logger:            logger,
	}
}

// Handle runs one invocation. Unknown event types and events without a
// sync unit are rejected before anything is emitted.
func (s *ExtractionService) Handle(ctx context.Context, event domain.InvocationEvent) (*domain.InvocationResult, error) {
	if !event.EventType.IsKnown() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownEventType, event.EventType)
	}
	if event.SyncUnitID == "" {
		return nil, fmt.Errorf("%w: sync_unit_id is required", domain.ErrInvalidInput)
	}

	rec := &invocationRecorder{}
	ctx = withRecorder(ctx, rec)
	logger := s.logger.With("sync_unit_id", event.SyncUnitID, "event_type", event.EventType)
	start := time.Now()

	var err error
	switch event.EventType {
	case domain.EventExtractionExternalSyncUnitsStart:
		err = s.extractExternalSyncUnits(ctx, event)
	case domain.EventExtractionMetadataStart:
		err = s.extractMetadata(ctx, event)
	case domain.EventExtractionDataStart, domain.EventExtractionDataContinue:
		err = s.extractData(ctx, event)
	case domain.EventExtractionDataDelete:
		s.emit(ctx, event, domain.NewDoneEvent(domain.ExtractionDataDeleteDone, nil))
	case domain.EventExtractionAttachmentsStart, domain.EventExtractionAttachmentsContinue:
		err = s.extractAttachments(ctx, event)
	}

	if needsFallback(event.EventType, rec) {
		s.signalFallback(ctx, event)
	}

	result := rec.result()
	logger.Info("invocation finished",
		"signal", result.Signal,
		"events", result.Events,
		"duration", time.Since(start),
		"error", err,
	)
	return result, err
}

func (s *ExtractionService) extractExternalSyncUnits(ctx context.Context, event domain.InvocationEvent) error {
	if ctx.Err() != nil {
		s.emitCheckpoint(ctx, event, domain.NewErrorEvent(domain.ExtractionExternalSyncUnitsError, msgSyncUnitsTimeout))
		return ctx.Err()
	}
	done := domain.NewDoneEvent(domain.ExtractionExternalSyncUnitsDone, nil)
	done.ExternalSyncUnits = s.syncUnits
	s.emit(ctx, event, done)
	return nil
}

func (s *ExtractionService) extractMetadata(ctx context.Context, event domain.InvocationEvent) error {
	reporter := s.reporter.ForSyncUnit(event.SyncUnitID)

	repo, ok := s.repos.GetRepo(MetadataItemType)
	if !ok {
		err := fmt.Errorf("%w for %s", domain.ErrRepositoryNotFound, MetadataItemType)
		reporter.Report(ctx, domain.ExtractionMetadataError, msgMetadataPush, err)
		return err
	}

	var data map[string]any
	if err := json.Unmarshal(s.metadata, &data); err != nil {
		err = fmt.Errorf("decode external domain metadata: %w", err)
		reporter.Report(ctx, domain.ExtractionMetadataError, msgMetadataPush, err)
		return err
	}

	item := domain.NormalizedItem{ID: MetadataItemType, Data: data}
	if err := repo.Push(ctx, []domain.NormalizedItem{item}); err != nil {
		if ctx.Err() != nil {
			s.emitCheckpoint(ctx, event, domain.NewErrorEvent(domain.ExtractionMetadataError, msgMetadataTimeout))
			return err
		}
		reporter.Report(ctx, domain.ExtractionMetadataError, msgMetadataPush, &domain.PushError{ItemType: MetadataItemType, Cause: err})
		return err
	}

	s.emit(ctx, event, domain.NewDoneEvent(domain.ExtractionMetadataDone, nil))
	return nil
}

func (s *ExtractionService) extractData(ctx context.Context, event domain.InvocationEvent) error {
	reporter := s.reporter.ForSyncUnit(event.SyncUnitID)

	state, err := s.loadState(ctx, event.SyncUnitID)
	if err != nil {
		reporter.Report(ctx, domain.ExtractionDataError, msgLoadState, err)
		s.emitCheckpoint(ctx, event, domain.NewProgressEvent(domain.ExtractionDataProgress, domain.ProgressMedium))
		return err
	}

	if event.EventType == domain.EventExtractionDataStart {
		err = s.orchestrator.Start(ctx, event.SyncUnitID, state, event.Mode)
	} else {
		err = s.orchestrator.Run(ctx, event.SyncUnitID, state, RunOptions{})
	}

	// Persist whatever was committed in memory, including the cycle start stamp.
	cctx, cancel := s.checkpointContext(ctx)
	defer cancel()
	if saveErr := s.store.Save(cctx, event.SyncUnitID, state); saveErr != nil {
		s.logger.Error("failed to persist sync state", "sync_unit_id", event.SyncUnitID, "error", saveErr)
		err = errors.Join(err, fmt.Errorf("persist sync state: %w", saveErr))
	}
	return err
}

// extractAttachments has nothing to stream for user records; it still
// checkpoints like any other phase when the budget is already spent.
func (s *ExtractionService) extractAttachments(ctx context.Context, event domain.InvocationEvent) error {
	if ctx.Err() != nil {
		s.emitCheckpoint(ctx, event, domain.NewProgressEvent(domain.ExtractionAttachmentsProgress, domain.ProgressMedium))
		return nil
	}
	s.emit(ctx, event, domain.NewDoneEvent(domain.ExtractionAttachmentsDone, nil))
	return nil
}

func (s *ExtractionService) loadState(ctx context.Context, syncUnitID string) (*domain.SyncState, error) {
	state, err := s.store.Get(ctx, syncUnitID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewSyncState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync state: %w", err)
	}
	return state, nil
}

// needsFallback reports whether the invocation ended without a signal the
// scheduler can act on. Data and attachment cycles must end on progress,
// delay or done; an error alone would stop the cycle.
func needsFallback(t domain.EventType, rec *invocationRecorder) bool {
	last, ok := rec.lastSignal()
	if !ok {
		return true
	}
	switch t {
	case domain.EventExtractionDataStart, domain.EventExtractionDataContinue,
		domain.EventExtractionAttachmentsStart, domain.EventExtractionAttachmentsContinue:
		return last == domain.SignalError
	default:
		return false
	}
}

// signalFallback emits the checkpoint signal of the event's family, so no
// invocation ends silently.
func (s *ExtractionService) signalFallback(ctx context.Context, event domain.InvocationEvent) {
	var fallback domain.ExtractorEvent
	switch event.EventType {
	case domain.EventExtractionExternalSyncUnitsStart:
		fallback = domain.NewErrorEvent(domain.ExtractionExternalSyncUnitsError, msgSyncUnitsTimeout)
	case domain.EventExtractionMetadataStart:
		fallback = domain.NewErrorEvent(domain.ExtractionMetadataError, msgMetadataTimeout)
	case domain.EventExtractionDataDelete:
		fallback = domain.NewErrorEvent(domain.ExtractionDataDeleteError, msgExtractData)
	case domain.EventExtractionAttachmentsStart, domain.EventExtractionAttachmentsContinue:
		fallback = domain.NewProgressEvent(domain.ExtractionAttachmentsProgress, domain.ProgressMedium)
	default:
		fallback = domain.NewProgressEvent(domain.ExtractionDataProgress, domain.ProgressMedium)
	}
	s.logger.Warn("handler delivered no signal, emitting fallback",
		"sync_unit_id", event.SyncUnitID,
		"event_type", fallback.Type,
	)
	s.emitCheckpoint(ctx, event, fallback)
}

func (s *ExtractionService) emit(ctx context.Context, event domain.InvocationEvent, out domain.ExtractorEvent) {
	out.SyncUnitID = event.SyncUnitID
	if err := s.emitter.Emit(ctx, out); err != nil {
		s.logger.Warn("failed to emit event", "sync_unit_id", event.SyncUnitID, "event_type", out.Type, "error", err)
	}
}

// emitCheckpoint emits even when ctx is already done.
func (s *ExtractionService) emitCheckpoint(ctx context.Context, event domain.InvocationEvent, out domain.ExtractorEvent) {
	cctx, cancel := s.checkpointContext(ctx)
	defer cancel()
	s.emit(cctx, event, out)
}

// checkpointContext detaches from ctx's cancellation but keeps its values.
func (s *ExtractionService) checkpointContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.checkpointTimeout)
}
