package driven

import (
	"context"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

// SyncStateStore persists sync state per sync unit (Redis or PostgreSQL).
// Save replaces the whole state atomically.
type SyncStateStore interface {
	// Get retrieves the state for a sync unit. Returns domain.ErrNotFound when none exists.
	Get(ctx context.Context, syncUnitID string) (*domain.SyncState, error)

	// Save creates or replaces the state for a sync unit
	Save(ctx context.Context, syncUnitID string, state *domain.SyncState) error

	// Delete removes the state for a sync unit
	Delete(ctx context.Context, syncUnitID string) error
}
