package mocks

import (
	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
)

var _ driven.Normaliser = (*MockNormaliser)(nil)

// MockNormaliser is a mock implementation of Normaliser for testing
type MockNormaliser struct {
	Type        string
	NormaliseFn func(record domain.Record) (domain.NormalizedItem, error)
}

func NewMockNormaliser(itemType string) *MockNormaliser {
	return &MockNormaliser{Type: itemType}
}

func (m *MockNormaliser) ItemType() string {
	return m.Type
}

// Normalise passes the record id through unless NormaliseFn is set
func (m *MockNormaliser) Normalise(record domain.Record) (domain.NormalizedItem, error) {
	if m.NormaliseFn != nil {
		return m.NormaliseFn(record)
	}
	return domain.NormalizedItem{ID: record.ID(), Data: map[string]any{}}, nil
}
