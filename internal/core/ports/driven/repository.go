package driven

import (
	"context"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
)

// Repository is a named destination for normalized records of one item type.
type Repository interface {
	// ItemType is the destination name (e.g. "users").
	ItemType() string

	// Push writes a batch. Either the whole batch is accepted or an error is returned.
	Push(ctx context.Context, items []domain.NormalizedItem) error
}

// RepositoryProvider looks up destinations by item type.
type RepositoryProvider interface {
	GetRepo(itemType string) (Repository, bool)
}
