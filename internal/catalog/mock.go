package catalog

import (
	"context"

	"product-picker/internal/model"
)

// Mock implements Searcher for testing.
type Mock struct {
	SearchFunc func(ctx context.Context, q Query) ([]model.Product, error)
}

// Search calls SearchFunc or returns an empty page.
func (m *Mock) Search(ctx context.Context, q Query) ([]model.Product, error) {
	if m.SearchFunc != nil {
		return m.SearchFunc(ctx, q)
	}
	return []model.Product{}, nil
}

// Verify Mock implements Searcher interface at compile time.
var _ Searcher = (*Mock)(nil)
