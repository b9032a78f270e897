package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIEmbedder produces embeddings through an OpenAI-compatible
// /embeddings endpoint. Repeated texts are served from an LRU cache.
type OpenAIEmbedder struct {
	endpoint   string
	apiKey     string
	model      string
	dimensions int
	cache      *EmbeddingCache
	http       *http.Client
}

// OpenAIConfig configures an OpenAIEmbedder.
type OpenAIConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Dimensions int
	CacheSize  int
}

// NewOpenAIEmbedder creates an embedder for the given endpoint.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 384
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1000
	}
	return &OpenAIEmbedder{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		cache:      NewEmbeddingCache(cfg.CacheSize),
		http:       &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed returns the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if emb, ok := e.cache.Get(text); ok {
		return emb, nil
	}
	embs, err := e.request(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	e.cache.Set(text, embs[0])
	return embs[0], nil
}

// EmbedBatch embeds multiple texts in a single request. Cached texts are
// not re-sent; results come back in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		if emb, ok := e.cache.Get(text); ok {
			results[i] = emb
			continue
		}
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return results, nil
	}
	embs, err := e.request(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, emb := range embs {
		results[missingIdx[j]] = emb
		e.cache.Set(missing[j], emb)
	}
	return results, nil
}

func (e *OpenAIEmbedder) request(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: e.model, Input: texts})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbedding, resp.StatusCode, bytes.TrimSpace(raw))
	}
	var out embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: bad response: %v", ErrEmbedding, err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbedding, len(texts), len(out.Data))
	}

	// The API may return entries out of order; index restores submission order.
	embs := make([][]float32, len(texts))
	for _, d := range out.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrEmbedding, d.Index)
		}
		if len(d.Embedding) != e.dimensions {
			return nil, fmt.Errorf("%w: expected dimension %d, got %d", ErrEmbedding, e.dimensions, len(d.Embedding))
		}
		embs[d.Index] = d.Embedding
	}
	for i, emb := range embs {
		if emb == nil {
			return nil, fmt.Errorf("%w: missing embedding for input %d", ErrEmbedding, i)
		}
	}
	return embs, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the HTTP client holds no resources to release.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
