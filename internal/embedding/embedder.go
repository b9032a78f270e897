// Package embedding provides text embedding via an OpenAI-compatible
// HTTP API, with caching.
package embedding

import (
	"context"
	"errors"
)

// ErrEmbedding is returned when the embedding backend fails to produce
// a vector. Callers treat it as fatal for the current request.
var ErrEmbedding = errors.New("embedding failed")

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
