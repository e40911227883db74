package driven

import (
	"context"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

// EventEmitter publishes outgoing signals to the orchestration platform.
type EventEmitter interface {
	Emit(ctx context.Context, event domain.ExtractorEvent) error
}
