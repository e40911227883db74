package normalisers

import (
	"fmt"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var _ driven.Normaliser = (*UserNormaliser)(nil)

// UserNormaliser maps user records onto the "users" destination.
type UserNormaliser struct {
	// Type overrides the item type (default "users"), for mirrored destinations
	Type string
}

func (n *UserNormaliser) ItemType() string {
	if n.Type != "" {
		return n.Type
	}
	return string(domain.EntityTypeUsers)
}

// Normalise keeps the id and dates and reduces the payload to email and name.
func (n *UserNormaliser) Normalise(record domain.Record) (domain.NormalizedItem, error) {
	if record.Kind != domain.RecordKindUser || record.User == nil {
		return domain.NormalizedItem{}, fmt.Errorf("%w: %s normaliser got %q record", domain.ErrMalformedRecord, n.ItemType(), record.Kind)
	}
	u := record.User

	return domain.NormalizedItem{
		ID:           u.ID,
		CreatedDate:  u.CreatedAt,
		ModifiedDate: u.LastModified(),
		Data: map[string]any{
			"email": u.PrimaryEmail(),
			"name":  u.Name,
		},
	}, nil
}
