package events

import (
	"context"
	"log/slog"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventEmitter = (*LoggingEmitter)(nil)

// LoggingEmitter logs every event before handing it to next.
// A nil next only logs.
type LoggingEmitter struct {
	next   driven.EventEmitter
	logger *slog.Logger
}

// NewLoggingEmitter wraps next
func NewLoggingEmitter(next driven.EventEmitter, logger *slog.Logger) *LoggingEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEmitter{next: next, logger: logger}
}

func (e *LoggingEmitter) Emit(ctx context.Context, event domain.ExtractorEvent) error {
	attrs := []any{"event_type", event.Type, "sync_unit_id", event.SyncUnitID}
	if event.Progress != nil {
		attrs = append(attrs, "progress", *event.Progress)
	}
	if event.Delay != nil {
		attrs = append(attrs, "delay", *event.Delay)
	}
	if event.Error != nil {
		attrs = append(attrs, "message", event.Error.Message)
	}
	e.logger.Info("emitting event", attrs...)

	if e.next == nil {
		return nil
	}
	if err := e.next.Emit(ctx, event); err != nil {
		e.logger.Error("event delivery failed", "event_type", event.Type, "error", err)
		return err
	}
	return nil
}
