package driving

import (
	"context"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

// ExtractionService handles one time-boxed invocation.
// Every invocation ends with at least one signal on the event channel.
type ExtractionService interface {
	// Handle dispatches the event and reports what was signalled upward.
	// The returned error is informational: the failure has already been
	// reported on the event channel.
	Handle(ctx context.Context, event domain.InvocationEvent) (*domain.InvocationResult, error)
}

// Scheduler triggers incremental cycles for configured sync units
type Scheduler interface {
	// Start begins the scheduler loop
	Start(ctx context.Context) error

	// Stop stops the scheduler
	Stop()
}
