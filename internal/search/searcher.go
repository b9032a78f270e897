// Package search provides similarity search over named vector collections,
// both in-process and over HTTP.
package search

import (
	"context"
	"errors"
)

var (
	// ErrUnknownCollection is returned when a collection reference does
	// not match any loaded collection.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrDimensionMismatch is returned when a query vector's length does
	// not match the collection's dimension.
	ErrDimensionMismatch = errors.New("query dimension mismatch")

	// ErrServiceUnavailable is returned when the search service cannot
	// be reached.
	ErrServiceUnavailable = errors.New("search service unavailable")
)

// Searcher answers similarity queries against named collections. It is
// implemented by the in-process Service and by the HTTP Client, so callers
// such as the fusion retriever do not care where the vectors live.
type Searcher interface {
	// Collections returns the collection names in registration order.
	Collections(ctx context.Context) ([]string, error)

	// Search runs a top-k query against the referenced collection.
	// The in-process Service treats limit <= 0 as the full ranking;
	// the HTTP Client substitutes the server's default limit instead.
	Search(ctx context.Context, ref CollectionRef, query []float32, limit int) ([]Result, error)
}

// Result is a single similarity hit: the record's position in the
// collection and its cosine similarity to the query.
type Result struct {
	ID         int     `json:"id"`
	Similarity float64 `json:"similarity"`
}
