package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/fusion"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
)

type testEnv struct {
	srv   *httptest.Server
	store *storage.SQLiteStore
}

func newTestEnv(t *testing.T, withRetriever bool) *testEnv {
	t.Helper()
	dir := t.TempDir()

	titles := filepath.Join(dir, "titles.vec")
	if err := vector.WriteFile(titles, [][]float32{{1, 0, 0}, {0, 1, 0}}, 3); err != nil {
		t.Fatalf("failed to write titles: %v", err)
	}
	chunks := filepath.Join(dir, "chunks.vec")
	if err := vector.WriteFile(chunks, [][]float32{{0, 0, 1}}, 3); err != nil {
		t.Fatalf("failed to write chunks: %v", err)
	}

	engine, err := vector.NewEngine("scan", 0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	service, err := search.NewService([]search.CollectionSpec{
		{Name: "titles", Path: titles, Dimension: 3},
		{Name: "chunks", Path: chunks, Dimension: 3},
	}, engine, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	store, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	for i, name := range []string{"Alan Turing", "Ada Lovelace"} {
		item := &models.Item{Name: name, ItemIdx: i}
		if err := store.CreateItem(ctx, item); err != nil {
			t.Fatalf("failed to create item: %v", err)
		}
	}

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Storage.DatabasePath = filepath.Join(dir, "test.db")
	cfg.Storage.VectorPath = dir

	var retriever *fusion.Retriever
	if withRetriever {
		retriever = fusion.NewRetriever(service, store, embedding.NewMockEmbedder(3),
			fusion.Config{Items: 5, Lang: "en", Threshold: -1}, zap.NewNop())
	}

	s := NewServer(service, retriever, store, cfg, zap.NewNop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store}
}

func TestCollectionsEndpoint(t *testing.T) {
	env := newTestEnv(t, false)
	for _, path := range []string{"/collections", "/"} {
		resp, err := http.Get(env.srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s failed: %v", path, err)
		}
		var names []string
		if err := json.NewDecoder(resp.Body).Decode(&names); err != nil {
			t.Fatalf("failed to decode %s: %v", path, err)
		}
		resp.Body.Close()
		if len(names) != 2 || names[0] != "titles" || names[1] != "chunks" {
			t.Errorf("GET %s: unexpected names %v", path, names)
		}
	}
}

func TestSearchEndpointViaClient(t *testing.T) {
	env := newTestEnv(t, false)
	client := search.NewClient(env.srv.URL)
	ctx := context.Background()

	results, err := client.Search(ctx, search.RefByName("titles"), []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(results) != 2 || results[0].ID != 0 {
		t.Errorf("unexpected results: %+v", results)
	}
	if results[0].Similarity < 0.999 {
		t.Errorf("expected near-perfect similarity, got %f", results[0].Similarity)
	}

	// Index references resolve through registration order.
	byIdx, err := client.Search(ctx, search.RefByIndex(1), []float32{0, 0, 1}, 1)
	if err != nil {
		t.Fatalf("index search failed: %v", err)
	}
	if len(byIdx) != 1 || byIdx[0].ID != 0 {
		t.Errorf("unexpected results: %+v", byIdx)
	}

	if _, err := client.Search(ctx, search.RefByName("nope"), []float32{1, 0, 0}, 1); !errors.Is(err, search.ErrUnknownCollection) {
		t.Errorf("expected ErrUnknownCollection, got %v", err)
	}
	if _, err := client.Search(ctx, search.RefByName("titles"), []float32{1, 0}, 1); !errors.Is(err, search.ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestSearchEndpointBadRequests(t *testing.T) {
	env := newTestEnv(t, false)

	tests := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{`},
		{name: "no vectors", body: `{"collection": "titles"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.srv.URL+"/search", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
			var e map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
				t.Fatalf("error body must be JSON: %v", err)
			}
			if e["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}

func TestSearchEndpointNegativeLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "titles.vec")
	rows := [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	if err := vector.WriteFile(path, rows, 3); err != nil {
		t.Fatalf("failed to write vectors: %v", err)
	}
	engine, err := vector.NewEngine("scan", 0)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	service, err := search.NewService([]search.CollectionSpec{
		{Name: "titles", Path: path, Dimension: 3},
	}, engine, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	store, err := storage.NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Search.DefaultLimit = 1

	s := NewServer(service, nil, store, cfg, zap.NewNop())
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	// Negative limits must fall back to the default, not the full corpus.
	for _, body := range []string{
		`{"vectors": [[1, 0, 0]], "collection": "titles", "limit": -1}`,
		`{"vectors": [[1, 0, 0]], "collection": "titles"}`,
	} {
		resp, err := http.Post(srv.URL+"/search", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		var out search.Response
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		resp.Body.Close()
		if len(out.Data) != 1 {
			t.Errorf("body %s: expected 1 result, got %d", body, len(out.Data))
		}
	}
}

func TestRetrieveEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Post(env.srv.URL+"/retrieve", "application/json",
		strings.NewReader(`{"query": "computing pioneers"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var bundle fusion.Context
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		t.Fatalf("failed to decode bundle: %v", err)
	}
	if len(bundle.Sources) == 0 {
		t.Error("expected sources with threshold disabled")
	}
}

func TestRetrieveEndpointUnconfigured(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := http.Post(env.srv.URL+"/retrieve", "application/json",
		strings.NewReader(`{"query": "x"}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", resp.StatusCode)
	}
}

func TestRetrieveEndpointEmptyQuery(t *testing.T) {
	env := newTestEnv(t, true)

	resp, err := http.Post(env.srv.URL+"/retrieve", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHealthAndStatus(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := http.Get(env.srv.URL + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(env.srv.URL + "/status")
	if err != nil {
		t.Fatalf("status request failed: %v", err)
	}
	defer resp.Body.Close()
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}
	if status["items"].(float64) != 2 {
		t.Errorf("expected 2 items, got %v", status["items"])
	}
	if _, ok := status["disk_usage_bytes"]; !ok {
		t.Error("expected disk usage in status")
	}
	colls, ok := status["collections"].([]interface{})
	if !ok || len(colls) != 2 {
		t.Errorf("expected 2 collections in status, got %v", status["collections"])
	}
}
