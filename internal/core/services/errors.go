package services

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Messages reported alongside failures.
const (
	msgProcessUsers     = "Error processing users"
	msgExtractData      = "Error while extracting data"
	msgPushUsers        = "Error while pushing users data to repository"
	msgLoadState        = "Error while loading sync state"
	msgSyncUnitsTimeout = "Failed to extract external sync units. Lambda timeout."
	msgMetadataTimeout  = "Failed to extract metadata. Lambda timeout."
	msgMetadataPush     = "Error while pushing external domain metadata"
)

// ErrorReporter is the single path every failure takes: a structured log
// line plus an error event on the event channel.
type ErrorReporter struct {
	emitter    driven.EventEmitter
	syncUnitID string
	logger     *slog.Logger
}

// NewErrorReporter creates a reporter emitting on emitter.
func NewErrorReporter(emitter driven.EventEmitter, logger *slog.Logger) *ErrorReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &ErrorReporter{emitter: emitter, logger: logger}
}

// ForSyncUnit returns a copy that tags emitted events with syncUnitID.
func (r *ErrorReporter) ForSyncUnit(syncUnitID string) *ErrorReporter {
	return &ErrorReporter{
		emitter:    r.emitter,
		syncUnitID: syncUnitID,
		logger:     r.logger.With("sync_unit_id", syncUnitID),
	}
}

// Report logs the failure and emits an error event of type t.
// The event carries the error's message when err is set, else message.
func (r *ErrorReporter) Report(ctx context.Context, t domain.ExtractorEventType, message string, err error) {
	r.logger.Error(message, "event_type", t, "error", err)

	text := message
	if err != nil {
		text = err.Error()
	}
	event := domain.NewErrorEvent(t, text)
	event.SyncUnitID = r.syncUnitID
	if emitErr := r.emitter.Emit(ctx, event); emitErr != nil {
		r.logger.Warn("failed to emit error event", "event_type", t, "error", emitErr)
	}
}
