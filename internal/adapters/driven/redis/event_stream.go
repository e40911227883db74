package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.EventEmitter = (*EventStream)(nil)

const (
	// DefaultEventStream is the stream outgoing signals are appended to
	DefaultEventStream = "extractor:events"

	// DefaultEventStreamMaxLen caps the stream length
	DefaultEventStreamMaxLen = 10000
)

// EventStreamConfig holds configuration for EventStream
type EventStreamConfig struct {
	Stream string
	MaxLen int64
}

// EventStream emits extractor events onto a Redis stream. Each entry holds
// the event type, the sync unit and the full JSON payload.
type EventStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewEventStream creates a stream emitter
func NewEventStream(client *redis.Client, cfg EventStreamConfig) *EventStream {
	if cfg.Stream == "" {
		cfg.Stream = DefaultEventStream
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = DefaultEventStreamMaxLen
	}
	return &EventStream{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
}

// Emit appends the event to the stream
func (e *EventStream) Emit(ctx context.Context, event domain.ExtractorEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	err = e.client.XAdd(ctx, &redis.XAddArgs{
		Stream: e.stream,
		MaxLen: e.maxLen,
		Values: map[string]any{
			"event_type":   string(event.Type),
			"sync_unit_id": event.SyncUnitID,
			"payload":      payload,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("emit %s: %w", event.Type, err)
	}
	return nil
}
