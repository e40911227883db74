package driven

import "github.com/custodia-labs/sercha-extractor/internal/core/domain"

// Normaliser converts a source record into its destination shape.
type Normaliser interface {
	// ItemType is the destination item type this normaliser feeds.
	ItemType() string

	// Normalise transforms a record. Records of the wrong kind fail with
	// domain.ErrMalformedRecord.
	Normalise(record domain.Record) (domain.NormalizedItem, error)
}

// NormaliserRegistry manages normalisers by item type.
type NormaliserRegistry interface {
	// Get retrieves the normaliser for an item type, or nil.
	Get(itemType string) Normaliser

	// Register registers a normaliser, replacing any previous one for its item type.
	Register(normaliser Normaliser)

	// List returns all registered item types.
	List() []string
}
