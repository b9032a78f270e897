package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kensaku/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func mustCreateItem(t *testing.T, store *SQLiteStore, name string, idx int) *models.Item {
	t.Helper()
	item := &models.Item{Name: name, ItemIdx: idx}
	if err := store.CreateItem(context.Background(), item); err != nil {
		t.Fatalf("failed to create item %s: %v", name, err)
	}
	return item
}

func TestProjectSingleton(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	p := &models.Project{
		Name:       "wiki",
		Langs:      "de,en",
		EmbedModel: "multilingual-e5-small",
		EmbedSize:  384,
		VectorName: "wiki",
		VectorPath: "/data/vectors",
	}
	if err := store.CreateProject(ctx, p); err != nil {
		t.Fatalf("failed to create project: %v", err)
	}
	if p.ID != 1 {
		t.Errorf("expected project id 1, got %d", p.ID)
	}

	// The CHECK (id = 1) constraint makes a second row impossible.
	if err := store.CreateProject(ctx, &models.Project{Name: "other", VectorName: "o", VectorPath: "/x"}); err == nil {
		t.Error("expected error creating second project")
	}

	got, err := store.GetProject(ctx)
	if err != nil {
		t.Fatalf("failed to get project: %v", err)
	}
	if got.Name != "wiki" || got.EmbedSize != 384 {
		t.Errorf("unexpected project: %+v", got)
	}
	if got.LangList()[0] != "de" || got.LangList()[1] != "en" {
		t.Errorf("unexpected lang list: %v", got.LangList())
	}

	got.Description = "test corpus"
	got.IndexName = "wiki-idx"
	if err := store.UpdateProject(ctx, got); err != nil {
		t.Fatalf("failed to update project: %v", err)
	}
	got2, err := store.GetProject(ctx)
	if err != nil {
		t.Fatalf("failed to re-read project: %v", err)
	}
	if got2.Description != "test corpus" || got2.IndexName != "wiki-idx" {
		t.Errorf("update not persisted: %+v", got2)
	}
}

func TestItemCRUD(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	if item.ID == 0 {
		t.Error("expected generated item id")
	}
	if item.Created.IsZero() {
		t.Error("expected creation time to be set")
	}

	// Names are unique.
	if err := store.CreateItem(ctx, &models.Item{Name: "Alan Turing", ItemIdx: 1}); err == nil {
		t.Error("expected error for duplicate name")
	}

	byName, err := store.GetItemByName(ctx, "Alan Turing")
	if err != nil {
		t.Fatalf("failed to get item by name: %v", err)
	}
	if byName.ID != item.ID {
		t.Errorf("expected id %d, got %d", item.ID, byName.ID)
	}

	item.URL = "https://example.org/turing"
	if err := store.UpdateItem(ctx, item); err != nil {
		t.Fatalf("failed to update item: %v", err)
	}
	got, err := store.GetItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to get item: %v", err)
	}
	if got.URL != "https://example.org/turing" {
		t.Errorf("expected url to be set, got %q", got.URL)
	}
	if got.Modified == nil {
		t.Error("expected modified time after update")
	}

	mustCreateItem(t, store, "Ada Lovelace", 1)
	items, err := store.ListItems(ctx)
	if err != nil {
		t.Fatalf("failed to list items: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0].ItemIdx != 0 || items[1].ItemIdx != 1 {
		t.Error("expected items ordered by position")
	}

	if _, err := store.GetItem(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.DeleteItem(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting missing item, got %v", err)
	}
}

func TestDeleteItemCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	keep := mustCreateItem(t, store, "Ada Lovelace", 1)

	chunk := &models.Chunk{ChunkIdx: 0, ItemID: item.ID}
	if err := store.CreateChunk(ctx, chunk); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}
	keepChunk := &models.Chunk{ChunkIdx: 1, ItemID: keep.ID}
	if err := store.CreateChunk(ctx, keepChunk); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}

	titleSnip := &models.Snippet{RefIdx: 0, ItemID: &item.ID, Lang: "en", Type: models.SnippetTitle, Content: "Alan Turing"}
	chunkSnip := &models.Snippet{RefIdx: 0, ChunkID: &chunk.ID, Lang: "en", Type: models.SnippetContent, Content: "Turing was a mathematician."}
	keepSnip := &models.Snippet{RefIdx: 1, ItemID: &keep.ID, Lang: "en", Type: models.SnippetTitle, Content: "Ada Lovelace"}
	for _, sn := range []*models.Snippet{titleSnip, chunkSnip, keepSnip} {
		if err := store.CreateSnippet(ctx, sn); err != nil {
			t.Fatalf("failed to create snippet: %v", err)
		}
	}
	if err := store.TagItem(ctx, item.ID, []string{"person", "computing"}); err != nil {
		t.Fatalf("failed to tag item: %v", err)
	}

	if err := store.DeleteItem(ctx, item.ID); err != nil {
		t.Fatalf("failed to delete item: %v", err)
	}

	if _, err := store.GetChunk(ctx, chunk.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected chunk to cascade, got %v", err)
	}
	snippets, err := store.SearchSnippets(ctx, SnippetFilter{})
	if err != nil {
		t.Fatalf("failed to search snippets: %v", err)
	}
	if len(snippets) != 1 {
		t.Fatalf("expected only the surviving snippet, got %d", len(snippets))
	}
	if snippets[0].Content != "Ada Lovelace" {
		t.Errorf("wrong snippet survived: %q", snippets[0].Content)
	}
	tags, err := store.ItemTags(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to read tags: %v", err)
	}
	if len(tags) != 0 {
		t.Errorf("expected tag associations to cascade, got %v", tags)
	}

	// The tag rows themselves survive for reuse.
	tag, err := store.EnsureTag(ctx, "person")
	if err != nil {
		t.Fatalf("failed to ensure tag: %v", err)
	}
	if tag.ID == 0 {
		t.Error("expected existing tag id")
	}
}

func TestChunksByItem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	for i := 2; i >= 0; i-- {
		if err := store.CreateChunk(ctx, &models.Chunk{ChunkIdx: i, ItemID: item.ID}); err != nil {
			t.Fatalf("failed to create chunk: %v", err)
		}
	}

	chunks, err := store.ChunksByItem(ctx, item.ID)
	if err != nil {
		t.Fatalf("failed to list chunks: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkIdx != i {
			t.Errorf("chunk %d: expected position %d, got %d", i, i, c.ChunkIdx)
		}
	}

	// Chunks require an existing parent item.
	if err := store.CreateChunk(ctx, &models.Chunk{ChunkIdx: 0, ItemID: 9999}); err == nil {
		t.Error("expected foreign key error for orphan chunk")
	}
}

func TestPositionResolution(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	turing := mustCreateItem(t, store, "Alan Turing", 0)
	lovelace := mustCreateItem(t, store, "Ada Lovelace", 1)

	c0 := &models.Chunk{ChunkIdx: 0, ItemID: turing.ID}
	c1 := &models.Chunk{ChunkIdx: 1, ItemID: lovelace.ID}
	for _, c := range []*models.Chunk{c0, c1} {
		if err := store.CreateChunk(ctx, c); err != nil {
			t.Fatalf("failed to create chunk: %v", err)
		}
	}

	items, err := store.ItemsByTitlePositions(ctx, []int{1, 0, 7})
	if err != nil {
		t.Fatalf("failed to resolve item positions: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 resolved items, got %d", len(items))
	}
	if items[0].Name != "Alan Turing" || items[1].Name != "Ada Lovelace" {
		t.Errorf("wrong resolution: %v %v", items[0], items[1])
	}
	if _, ok := items[7]; ok {
		t.Error("position 7 must stay unresolved")
	}

	chunks, err := store.ChunksByPositions(ctx, []int{0, 1, 42})
	if err != nil {
		t.Fatalf("failed to resolve chunk positions: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 resolved chunks, got %d", len(chunks))
	}
	if chunks[0].ItemID != turing.ID || chunks[1].ItemID != lovelace.ID {
		t.Error("chunk positions resolved to wrong items")
	}

	empty, err := store.ItemsByTitlePositions(ctx, nil)
	if err != nil {
		t.Fatalf("failed on empty positions: %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected empty map, got %d entries", len(empty))
	}
}

func TestSnippetConstraints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	chunk := &models.Chunk{ChunkIdx: 0, ItemID: item.ID}
	if err := store.CreateChunk(ctx, chunk); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}

	tests := []struct {
		name    string
		snippet models.Snippet
		wantErr bool
	}{
		{
			name:    "item title",
			snippet: models.Snippet{RefIdx: 0, ItemID: &item.ID, Lang: "en", Type: models.SnippetTitle, Content: "Alan Turing"},
		},
		{
			name:    "chunk content",
			snippet: models.Snippet{RefIdx: 0, ChunkID: &chunk.ID, Lang: "en", Type: models.SnippetContent, Content: "text"},
		},
		{
			name:    "unowned fact",
			snippet: models.Snippet{RefIdx: 1, Lang: "en", Type: models.SnippetFact, Content: "born 1912"},
		},
		{
			name:    "both owners",
			snippet: models.Snippet{RefIdx: 2, ItemID: &item.ID, ChunkID: &chunk.ID, Lang: "en", Type: models.SnippetSummary, Content: "x"},
			wantErr: true,
		},
		{
			name:    "unowned content",
			snippet: models.Snippet{RefIdx: 3, Lang: "en", Type: models.SnippetContent, Content: "x"},
			wantErr: true,
		},
		{
			name:    "invalid type",
			snippet: models.Snippet{RefIdx: 4, ItemID: &item.ID, Lang: "en", Type: "poem", Content: "x"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sn := tt.snippet
			err := store.CreateSnippet(ctx, &sn)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateSnippet() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSearchSnippets(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	chunk := &models.Chunk{ChunkIdx: 0, ItemID: item.ID}
	if err := store.CreateChunk(ctx, chunk); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}

	seed := []*models.Snippet{
		{RefIdx: 2, ItemID: &item.ID, Lang: "en", Type: models.SnippetTitle, Content: "Alan Turing"},
		{RefIdx: 0, ItemID: &item.ID, Lang: "de", Type: models.SnippetTitle, Content: "Alan Turing (de)"},
		{RefIdx: 1, ItemID: &item.ID, Lang: "en", Type: models.SnippetSummary, Content: "A mathematician."},
		{RefIdx: 0, ChunkID: &chunk.ID, Lang: "en", Type: models.SnippetContent, Content: "Turing worked at Bletchley Park."},
	}
	for _, sn := range seed {
		if err := store.CreateSnippet(ctx, sn); err != nil {
			t.Fatalf("failed to create snippet: %v", err)
		}
	}

	chunkOwned := true
	notChunkOwned := false

	t.Run("lang and type", func(t *testing.T) {
		got, err := store.SearchSnippets(ctx, SnippetFilter{Lang: "en", Type: models.SnippetTitle})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 1 || got[0].Content != "Alan Turing" {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("chunk owned content", func(t *testing.T) {
		got, err := store.SearchSnippets(ctx, SnippetFilter{Type: models.SnippetContent, ChunkOwned: &chunkOwned})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 1 || got[0].ChunkID == nil {
			t.Errorf("unexpected result: %+v", got)
		}
	})

	t.Run("item owned ordered by ref", func(t *testing.T) {
		got, err := store.SearchSnippets(ctx, SnippetFilter{ChunkOwned: &notChunkOwned, OrderByRef: true})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 3 {
			t.Fatalf("expected 3 snippets, got %d", len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].RefIdx > got[i].RefIdx {
				t.Error("results not ordered by ref_idx")
			}
		}
	})

	t.Run("by item ids", func(t *testing.T) {
		got, err := store.SearchSnippets(ctx, SnippetFilter{ItemIDs: []int64{item.ID}, Lang: "de"})
		if err != nil {
			t.Fatalf("search failed: %v", err)
		}
		if len(got) != 1 || got[0].Lang != "de" {
			t.Errorf("unexpected result: %+v", got)
		}
	})
}

func TestTags(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.EnsureTag(ctx, "person")
	if err != nil {
		t.Fatalf("failed to ensure tag: %v", err)
	}
	second, err := store.EnsureTag(ctx, "person")
	if err != nil {
		t.Fatalf("failed to re-ensure tag: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("EnsureTag not idempotent: %d != %d", first.ID, second.ID)
	}
	if _, err := store.EnsureTag(ctx, ""); err == nil {
		t.Error("expected error for empty tag name")
	}

	turing := mustCreateItem(t, store, "Alan Turing", 0)
	lovelace := mustCreateItem(t, store, "Ada Lovelace", 1)
	if err := store.TagItem(ctx, turing.ID, []string{"person", "computing"}); err != nil {
		t.Fatalf("failed to tag item: %v", err)
	}
	// Re-tagging with an overlap is fine.
	if err := store.TagItem(ctx, turing.ID, []string{"person", "cryptography"}); err != nil {
		t.Fatalf("failed to re-tag item: %v", err)
	}
	if err := store.TagItem(ctx, lovelace.ID, []string{"person"}); err != nil {
		t.Fatalf("failed to tag item: %v", err)
	}

	tags, err := store.ItemTags(ctx, turing.ID)
	if err != nil {
		t.Fatalf("failed to list tags: %v", err)
	}
	if len(tags) != 3 {
		t.Errorf("expected 3 tags, got %v", tags)
	}

	ids, err := store.ItemsByTags(ctx, []string{"computing"})
	if err != nil {
		t.Fatalf("failed to query by tags: %v", err)
	}
	if len(ids) != 1 || ids[0] != turing.ID {
		t.Errorf("unexpected ids: %v", ids)
	}
	ids, err = store.ItemsByTags(ctx, []string{"person"})
	if err != nil {
		t.Fatalf("failed to query by tags: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("expected both items, got %v", ids)
	}
}

func TestCounts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	item := mustCreateItem(t, store, "Alan Turing", 0)
	chunk := &models.Chunk{ChunkIdx: 0, ItemID: item.ID}
	if err := store.CreateChunk(ctx, chunk); err != nil {
		t.Fatalf("failed to create chunk: %v", err)
	}
	sn := &models.Snippet{RefIdx: 0, ChunkID: &chunk.ID, Lang: "en", Type: models.SnippetContent, Content: "x"}
	if err := store.CreateSnippet(ctx, sn); err != nil {
		t.Fatalf("failed to create snippet: %v", err)
	}

	for name, fn := range map[string]func(context.Context) (int64, error){
		"items":    store.CountItems,
		"chunks":   store.CountChunks,
		"snippets": store.CountSnippets,
	} {
		n, err := fn(ctx)
		if err != nil {
			t.Fatalf("count %s failed: %v", name, err)
		}
		if n != 1 {
			t.Errorf("count %s: expected 1, got %d", name, n)
		}
	}
}
