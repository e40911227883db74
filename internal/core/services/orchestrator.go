package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// RunOptions tunes one orchestrator run.
type RunOptions struct {
	// Cached holds records already known for an entity type. A cached,
	// incomplete entity type is pushed and completed without fetching.
	Cached map[domain.EntityType][]domain.Record
}

// SyncOrchestrator walks entity types in priority order within one invocation.
type SyncOrchestrator struct {
	processor   *EntityProcessor
	pusher      *RepositoryPusher
	emitter     driven.EventEmitter
	entityTypes []domain.EntityType
	targets     map[domain.EntityType][]string
	resetPolicy domain.ResetPolicy
	margin      time.Duration
	signalWait  time.Duration
	now         func() time.Time
	logger      *slog.Logger
}

// DefaultCheckpointMargin is the slice of the invocation budget reserved
// for pushing and persisting what was fetched.
const DefaultCheckpointMargin = 10 * time.Second

// SyncOrchestratorConfig holds dependencies for SyncOrchestrator.
type SyncOrchestratorConfig struct {
	Processor *EntityProcessor
	Pusher    *RepositoryPusher
	Emitter   driven.EventEmitter

	// EntityTypes is the extraction order (default: domain.EntityPriority)
	EntityTypes []domain.EntityType

	// Targets maps an entity type to its destination item types
	// (default: the entity type name)
	Targets map[domain.EntityType][]string

	ResetPolicy domain.ResetPolicy

	// CheckpointMargin stops fetching this long before the context deadline
	CheckpointMargin time.Duration

	// CheckpointTimeout bounds the final signal once the invocation context
	// is done (default: DefaultCheckpointTimeout)
	CheckpointTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// NewSyncOrchestrator creates a new sync orchestrator.
func NewSyncOrchestrator(cfg SyncOrchestratorConfig) *SyncOrchestrator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	entityTypes := cfg.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = domain.EntityPriority
	}
	resetPolicy := cfg.ResetPolicy
	if resetPolicy == "" {
		resetPolicy = domain.ResetPolicyAlways
	}
	margin := cfg.CheckpointMargin
	if margin == 0 {
		margin = DefaultCheckpointMargin
	}
	signalWait := cfg.CheckpointTimeout
	if signalWait <= 0 {
		signalWait = DefaultCheckpointTimeout
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &SyncOrchestrator{
		processor:   cfg.Processor,
		pusher:      cfg.Pusher,
		emitter:     cfg.Emitter,
		entityTypes: entityTypes,
		targets:     cfg.Targets,
		resetPolicy: resetPolicy,
		margin:      margin,
		signalWait:  signalWait,
		now:         now,
		logger:      logger,
	}
}

// Start begins a new cycle: it stamps the sync marker, resets phases as the
// reset policy dictates, then runs.
func (o *SyncOrchestrator) Start(ctx context.Context, syncUnitID string, state *domain.SyncState, mode domain.SyncMode) error {
	previous := state.LastSuccessfulSyncStarted
	started := o.now().UTC()
	state.LastSuccessfulSyncStarted = &started

	for _, t := range o.entityTypes {
		if o.resetPolicy.ShouldReset(mode, state.Phase(t), previous) {
			state.ResetPhase(t)
		}
	}

	o.logger.Info("extraction cycle started",
		"sync_unit_id", syncUnitID,
		"mode", mode,
		"reset_policy", o.resetPolicy,
	)
	return o.Run(ctx, syncUnitID, state, RunOptions{})
}

// Run resumes the cycle from the persisted phases. It stops at the first
// entity type that does not complete and emits a mid-progress event; the
// done event is emitted only when every entity type completed without error.
// Failures were already reported by the processor or the pusher.
// The final signal goes out even when ctx is already done.
func (o *SyncOrchestrator) Run(ctx context.Context, syncUnitID string, state *domain.SyncState, opts RunOptions) error {
	for _, t := range o.entityTypes {
		completed, err := o.processEntity(ctx, syncUnitID, state, t, opts)
		if err != nil {
			o.logger.Warn("entity type failed, suspending cycle", "sync_unit_id", syncUnitID, "entity_type", t, "error", err)
			o.emitFinal(ctx, syncUnitID, domain.NewProgressEvent(domain.ExtractionDataProgress, domain.ProgressMedium))
			return err
		}
		if !completed {
			o.emitFinal(ctx, syncUnitID, domain.NewProgressEvent(domain.ExtractionDataProgress, domain.ProgressMedium))
			return nil
		}
	}

	progress := domain.ProgressCompletion
	o.emitFinal(ctx, syncUnitID, domain.NewDoneEvent(domain.ExtractionDataDone, &progress))
	o.logger.Info("extraction cycle completed", "sync_unit_id", syncUnitID)
	return nil
}

// processEntity returns whether the entity type ended completed.
func (o *SyncOrchestrator) processEntity(ctx context.Context, syncUnitID string, state *domain.SyncState, t domain.EntityType, opts RunOptions) (bool, error) {
	phase := state.Phase(t)
	if phase.Completed {
		return true, nil
	}

	progress := domain.ProgressUsers

	if cached, ok := opts.Cached[t]; ok {
		phase.TotalFetched = len(cached)
		if n := len(cached); n > 0 {
			phase.LastProcessedID = cached[n-1].ID()
		}
		phase.Complete()
		if err := o.pusher.PushAll(ctx, syncUnitID, state, []PushRequest{o.request(t, cached, phase, &progress)}); err != nil {
			return false, err
		}
		return true, nil
	}

	fetchCtx, cancel := o.fetchContext(ctx)
	result, procErr := o.processor.Process(fetchCtx, syncUnitID, t, phase)
	cancel()
	if procErr != nil && len(result.Items) == 0 {
		return false, procErr
	}

	// Records fetched before a failure still land, so the cursor they
	// advanced to is never lost.
	pushErr := o.pusher.PushAll(ctx, syncUnitID, state, []PushRequest{o.request(t, result.Items, result.Phase, &progress)})
	if procErr != nil {
		return false, procErr
	}
	if pushErr != nil {
		return false, pushErr
	}
	return result.Phase.Completed, nil
}

// fetchContext ends fetching CheckpointMargin before ctx's deadline so the
// accumulated batch can still be pushed and persisted under ctx.
func (o *SyncOrchestrator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok || o.margin < 0 {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-o.margin))
}

func (o *SyncOrchestrator) request(t domain.EntityType, items []domain.Record, phase domain.PhaseState, progress *int) PushRequest {
	return PushRequest{
		EntityType: t,
		Items:      items,
		Phase:      phase,
		ItemTypes:  o.targets[t],
		Progress:   progress,
	}
}

// emitFinal detaches from ctx's cancellation so a spent budget cannot
// swallow the signal the scheduler acts on.
func (o *SyncOrchestrator) emitFinal(ctx context.Context, syncUnitID string, event domain.ExtractorEvent) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.signalWait)
	defer cancel()
	o.emit(fctx, syncUnitID, event)
}

func (o *SyncOrchestrator) emit(ctx context.Context, syncUnitID string, event domain.ExtractorEvent) {
	event.SyncUnitID = syncUnitID
	if err := o.emitter.Emit(ctx, event); err != nil {
		o.logger.Warn("failed to emit event", "sync_unit_id", syncUnitID, "event_type", event.Type, "error", err)
	}
}
