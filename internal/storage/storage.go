// Package storage defines the identity store: the relational schema that
// anchors vector-file positions to durable items, chunks, and their text.
package storage

import (
	"context"
	"errors"

	"github.com/hyperjump/kensaku/internal/models"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// SnippetFilter selects snippets by compound predicates. Zero-value fields
// are ignored. ChunkOwned distinguishes chunk-level from item-level
// snippets: true selects snippets owned by a chunk, false selects snippets
// owned directly by an item, nil selects both.
type SnippetFilter struct {
	Lang       string
	Type       models.SnippetType
	ItemIDs    []int64
	ChunkIDs   []int64
	ChunkOwned *bool
	OrderByRef bool // order by ref_idx ascending (vector export order)
}

// Store defines identity-store persistence operations. Every operation
// runs its own short-lived transaction; no transaction spans calls.
type Store interface {
	// Project (singleton row)
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error

	// Items. ItemIdx is immutable after creation; deleting an item
	// cascades to its chunks and every snippet owned by the item or
	// its chunks.
	CreateItem(ctx context.Context, item *models.Item) error
	GetItem(ctx context.Context, id int64) (*models.Item, error)
	GetItemByName(ctx context.Context, name string) (*models.Item, error)
	ListItems(ctx context.Context) ([]*models.Item, error)
	UpdateItem(ctx context.Context, item *models.Item) error
	DeleteItem(ctx context.Context, id int64) error

	// Chunks. Deleting a chunk cascades to its snippets.
	CreateChunk(ctx context.Context, chunk *models.Chunk) error
	GetChunk(ctx context.Context, id int64) (*models.Chunk, error)
	ChunksByItem(ctx context.Context, itemID int64) ([]*models.Chunk, error)
	DeleteChunk(ctx context.Context, id int64) error

	// Position resolution for retrieval fusion. Positions with no
	// matching row are simply absent from the returned map.
	ItemsByTitlePositions(ctx context.Context, positions []int) (map[int]*models.Item, error)
	ChunksByPositions(ctx context.Context, positions []int) (map[int]*models.Chunk, error)

	// Snippets
	CreateSnippet(ctx context.Context, s *models.Snippet) error
	UpdateSnippet(ctx context.Context, s *models.Snippet) error
	SearchSnippets(ctx context.Context, f SnippetFilter) ([]*models.Snippet, error)

	// Tags. EnsureTag is idempotent: re-adding an existing name returns
	// the existing row.
	EnsureTag(ctx context.Context, name string) (*models.Tag, error)
	TagItem(ctx context.Context, itemID int64, tagNames []string) error
	ItemTags(ctx context.Context, itemID int64) ([]string, error)
	ItemsByTags(ctx context.Context, tagNames []string) ([]int64, error)

	// Stats
	CountItems(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)
	CountSnippets(ctx context.Context) (int64, error)

	Close() error
}
