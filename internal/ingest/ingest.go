// Package ingest loads documents into the identity store: items, chunks,
// and the snippets the exporter later embeds. Collection positions are
// assigned here, append-only, so existing vector files stay valid until
// the next export.
package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Document is one unit of ingestion.
type Document struct {
	Name    string   `json:"name"`
	Lang    string   `json:"lang"`
	Title   string   `json:"title"`
	Summary string   `json:"summary,omitempty"`
	Content string   `json:"content"`
	URL     string   `json:"url,omitempty"`
	License string   `json:"license,omitempty"`
	Tags    []string `json:"tags,omitempty"`
}

// Ingester writes documents into the store.
type Ingester struct {
	store   storage.Store
	chunker *Chunker
	logger  *zap.Logger
}

// New creates an ingester. chunkSize and chunkOverlap are in words.
func New(store storage.Store, chunkSize, chunkOverlap int, logger *zap.Logger) *Ingester {
	return &Ingester{
		store:   store,
		chunker: NewChunker(chunkSize, chunkOverlap),
		logger:  logger,
	}
}

// Ingest stores one document as an item with chunks and snippets. A
// missing name gets a generated one. The item takes the next free title
// position; its chunks take the next free chunk positions.
func (ing *Ingester) Ingest(ctx context.Context, doc *Document) (*models.Item, error) {
	if doc.Lang == "" {
		return nil, fmt.Errorf("document language is required")
	}
	if doc.Title == "" {
		return nil, fmt.Errorf("document title is required")
	}
	name := doc.Name
	if name == "" {
		name = uuid.New().String()
	}

	itemCount, err := ing.store.CountItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count items: %w", err)
	}
	item := &models.Item{
		Name:    name,
		ItemIdx: int(itemCount),
		URL:     doc.URL,
		License: doc.License,
	}
	if err := ing.store.CreateItem(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	// Item-owned snippets share the item's title position.
	title := &models.Snippet{
		RefIdx:  item.ItemIdx,
		ItemID:  &item.ID,
		Lang:    doc.Lang,
		Type:    models.SnippetTitle,
		Content: doc.Title,
	}
	if err := ing.store.CreateSnippet(ctx, title); err != nil {
		return nil, fmt.Errorf("failed to create title snippet: %w", err)
	}
	if doc.Summary != "" {
		summary := &models.Snippet{
			RefIdx:  item.ItemIdx,
			ItemID:  &item.ID,
			Lang:    doc.Lang,
			Type:    models.SnippetSummary,
			Content: doc.Summary,
		}
		if err := ing.store.CreateSnippet(ctx, summary); err != nil {
			return nil, fmt.Errorf("failed to create summary snippet: %w", err)
		}
	}

	chunkCount, err := ing.store.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count chunks: %w", err)
	}
	texts := ing.chunker.Chunk(Preprocess(doc.Content))
	for i, text := range texts {
		chunk := &models.Chunk{
			ChunkIdx: int(chunkCount) + i,
			ItemID:   item.ID,
		}
		if err := ing.store.CreateChunk(ctx, chunk); err != nil {
			return nil, fmt.Errorf("failed to create chunk: %w", err)
		}
		content := &models.Snippet{
			RefIdx:  chunk.ChunkIdx,
			ChunkID: &chunk.ID,
			Lang:    doc.Lang,
			Type:    models.SnippetContent,
			Content: text,
		}
		if err := ing.store.CreateSnippet(ctx, content); err != nil {
			return nil, fmt.Errorf("failed to create content snippet: %w", err)
		}
	}

	if len(doc.Tags) > 0 {
		if err := ing.store.TagItem(ctx, item.ID, doc.Tags); err != nil {
			return nil, fmt.Errorf("failed to tag item: %w", err)
		}
	}

	ing.logger.Info("ingested document",
		zap.String("name", item.Name),
		zap.Int("item_idx", item.ItemIdx),
		zap.Int("chunks", len(texts)),
		zap.String("lang", doc.Lang))
	return item, nil
}

// IngestAll ingests documents in order, stopping at the first failure.
func (ing *Ingester) IngestAll(ctx context.Context, docs []*Document) ([]*models.Item, error) {
	items := make([]*models.Item, 0, len(docs))
	for i, doc := range docs {
		item, err := ing.Ingest(ctx, doc)
		if err != nil {
			return items, fmt.Errorf("document %d: %w", i, err)
		}
		items = append(items, item)
	}
	return items, nil
}
