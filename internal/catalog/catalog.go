// Package catalog talks to the remote product search endpoint.
// The endpoint is paginated by page index and page size, filtered by an
// optional search substring, and authenticated with a static x-api-key header.
package catalog

import (
	"context"

	"product-picker/internal/model"
)

// DefaultPageSize is the number of products requested per page.
const DefaultPageSize = 10

// Query selects one page of search results.
type Query struct {
	Page  int    // 0-based
	Limit int    // page size; DefaultPageSize when zero
	Text  string // search substring; empty lists everything
}

// Searcher fetches one page of products. An empty, error-free result means
// the query has no further pages.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]model.Product, error)
}
