package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kensaku/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and
// initializes the schema. Foreign keys are enabled on every pooled
// connection so the cascade deletes actually fire. Parent directories are
// created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		langs TEXT NOT NULL DEFAULT 'de,en',
		embed_model TEXT NOT NULL DEFAULT '',
		embed_size INTEGER NOT NULL DEFAULT 384,
		vector_name TEXT NOT NULL,
		vector_path TEXT NOT NULL,
		index_name TEXT,
		index_path TEXT
	);

	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		item_idx INTEGER NOT NULL,
		created TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		modified TIMESTAMP,
		url TEXT,
		license TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_items_item_idx ON items(item_idx);

	CREATE TABLE IF NOT EXISTS tags (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS item_tags (
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
		PRIMARY KEY (item_id, tag_id)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chunk_idx INTEGER NOT NULL,
		item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_chunk_idx ON chunks(chunk_idx);
	CREATE INDEX IF NOT EXISTS idx_chunks_item_id ON chunks(item_id);

	CREATE TABLE IF NOT EXISTS snippets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ref_idx INTEGER NOT NULL,
		item_id INTEGER REFERENCES items(id) ON DELETE CASCADE,
		chunk_id INTEGER REFERENCES chunks(id) ON DELETE CASCADE,
		lang TEXT NOT NULL,
		type TEXT NOT NULL CHECK (type IN ('content', 'title', 'summary', 'fact')),
		content TEXT NOT NULL,
		CHECK (NOT (item_id IS NOT NULL AND chunk_id IS NOT NULL)),
		CHECK (type != 'content' OR item_id IS NOT NULL OR chunk_id IS NOT NULL)
	);

	CREATE INDEX IF NOT EXISTS idx_snippets_item_id ON snippets(item_id);
	CREATE INDEX IF NOT EXISTS idx_snippets_chunk_id ON snippets(chunk_id);
	CREATE INDEX IF NOT EXISTS idx_snippets_lang_type ON snippets(lang, type);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateProject inserts the singleton project row (id is forced to 1).
func (s *SQLiteStore) CreateProject(ctx context.Context, p *models.Project) error {
	if p.Langs == "" {
		p.Langs = "de,en"
	}
	if p.EmbedSize == 0 {
		p.EmbedSize = 384
	}
	p.ID = 1
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, langs, embed_model, embed_size, vector_name, vector_path, index_name, index_path)
		 VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.Langs, p.EmbedModel, p.EmbedSize,
		p.VectorName, p.VectorPath, nullString(p.IndexName), nullString(p.IndexPath),
	)
	return err
}

// GetProject returns the singleton project row.
func (s *SQLiteStore) GetProject(ctx context.Context) (*models.Project, error) {
	var p models.Project
	var desc, indexName, indexPath sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, langs, embed_model, embed_size, vector_name, vector_path, index_name, index_path
		 FROM projects WHERE id = 1`,
	).Scan(&p.ID, &p.Name, &desc, &p.Langs, &p.EmbedModel, &p.EmbedSize,
		&p.VectorName, &p.VectorPath, &indexName, &indexPath)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project: %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	p.Description = desc.String
	p.IndexName = indexName.String
	p.IndexPath = indexPath.String
	return &p, nil
}

// UpdateProject updates the singleton project row.
func (s *SQLiteStore) UpdateProject(ctx context.Context, p *models.Project) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, description = ?, langs = ?, embed_model = ?, embed_size = ?,
		 vector_name = ?, vector_path = ?, index_name = ?, index_path = ? WHERE id = 1`,
		p.Name, p.Description, p.Langs, p.EmbedModel, p.EmbedSize,
		p.VectorName, p.VectorPath, nullString(p.IndexName), nullString(p.IndexPath),
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("project: %w", ErrNotFound)
	}
	return nil
}

// CreateItem inserts an item and sets its generated ID and creation time.
// item_idx is written once here and never updated afterwards.
func (s *SQLiteStore) CreateItem(ctx context.Context, item *models.Item) error {
	item.Created = time.Now()
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO items (name, item_idx, created, url, license) VALUES (?, ?, ?, ?, ?)`,
		item.Name, item.ItemIdx, item.Created, nullString(item.URL), nullString(item.License),
	)
	if err != nil {
		return err
	}
	item.ID, err = result.LastInsertId()
	return err
}

func scanItem(row interface{ Scan(...any) error }) (*models.Item, error) {
	var item models.Item
	var modified sql.NullTime
	var url, license sql.NullString
	err := row.Scan(&item.ID, &item.Name, &item.ItemIdx, &item.Created, &modified, &url, &license)
	if err != nil {
		return nil, err
	}
	if modified.Valid {
		item.Modified = &modified.Time
	}
	item.URL = url.String
	item.License = license.String
	return &item, nil
}

const itemColumns = `id, name, item_idx, created, modified, url, license`

// GetItem returns an item by ID.
func (s *SQLiteStore) GetItem(ctx context.Context, id int64) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return item, err
}

// GetItemByName returns an item by its unique name.
func (s *SQLiteStore) GetItemByName(ctx context.Context, name string) (*models.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx,
		`SELECT `+itemColumns+` FROM items WHERE name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %q: %w", name, ErrNotFound)
	}
	return item, err
}

// ListItems returns all items ordered by item_idx ascending.
func (s *SQLiteStore) ListItems(ctx context.Context) ([]*models.Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM items ORDER BY item_idx ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateItem updates an item's mutable fields. item_idx is deliberately
// not part of the statement: positions are immutable after creation.
func (s *SQLiteStore) UpdateItem(ctx context.Context, item *models.Item) error {
	now := time.Now()
	item.Modified = &now
	result, err := s.db.ExecContext(ctx,
		`UPDATE items SET name = ?, modified = ?, url = ?, license = ? WHERE id = ?`,
		item.Name, item.Modified, nullString(item.URL), nullString(item.License), item.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", item.ID, ErrNotFound)
	}
	return nil
}

// DeleteItem removes an item. Foreign keys cascade the delete to the
// item's chunks and to every snippet owned by the item or its chunks.
func (s *SQLiteStore) DeleteItem(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("item %d: %w", id, ErrNotFound)
	}
	return nil
}

// CreateChunk inserts a chunk and sets its generated ID.
func (s *SQLiteStore) CreateChunk(ctx context.Context, chunk *models.Chunk) error {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO chunks (chunk_idx, item_id) VALUES (?, ?)`,
		chunk.ChunkIdx, chunk.ItemID,
	)
	if err != nil {
		return err
	}
	chunk.ID, err = result.LastInsertId()
	return err
}

// GetChunk returns a chunk by ID.
func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*models.Chunk, error) {
	var chunk models.Chunk
	err := s.db.QueryRowContext(ctx,
		`SELECT id, chunk_idx, item_id FROM chunks WHERE id = ?`, id,
	).Scan(&chunk.ID, &chunk.ChunkIdx, &chunk.ItemID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("chunk %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &chunk, nil
}

// ChunksByItem returns the chunks of an item ordered by chunk_idx.
func (s *SQLiteStore) ChunksByItem(ctx context.Context, itemID int64) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chunk_idx, item_id FROM chunks WHERE item_id = ? ORDER BY chunk_idx ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectChunks(rows)
}

// DeleteChunk removes a chunk; its snippets cascade.
func (s *SQLiteStore) DeleteChunk(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("chunk %d: %w", id, ErrNotFound)
	}
	return nil
}

// ItemsByTitlePositions resolves title-collection positions to items via
// item_idx. Positions without a matching row are absent from the map.
func (s *SQLiteStore) ItemsByTitlePositions(ctx context.Context, positions []int) (map[int]*models.Item, error) {
	result := make(map[int]*models.Item)
	if len(positions) == 0 {
		return result, nil
	}
	query := `SELECT ` + itemColumns + ` FROM items WHERE item_idx IN (` + placeholders(len(positions)) + `)`
	rows, err := s.db.QueryContext(ctx, query, intArgs(positions)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		result[item.ItemIdx] = item
	}
	return result, rows.Err()
}

// ChunksByPositions resolves chunk-collection positions to chunks via
// chunk_idx. Positions without a matching row are absent from the map.
func (s *SQLiteStore) ChunksByPositions(ctx context.Context, positions []int) (map[int]*models.Chunk, error) {
	result := make(map[int]*models.Chunk)
	if len(positions) == 0 {
		return result, nil
	}
	query := `SELECT id, chunk_idx, item_id FROM chunks WHERE chunk_idx IN (` + placeholders(len(positions)) + `)`
	rows, err := s.db.QueryContext(ctx, query, intArgs(positions)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.ChunkIdx, &chunk.ItemID); err != nil {
			return nil, err
		}
		result[chunk.ChunkIdx] = &chunk
	}
	return result, rows.Err()
}

// CreateSnippet inserts a snippet and sets its generated ID.
func (s *SQLiteStore) CreateSnippet(ctx context.Context, snippet *models.Snippet) error {
	if !snippet.Type.Valid() {
		return fmt.Errorf("invalid snippet type: %s", snippet.Type)
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO snippets (ref_idx, item_id, chunk_id, lang, type, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snippet.RefIdx, snippet.ItemID, snippet.ChunkID, snippet.Lang, string(snippet.Type), snippet.Content,
	)
	if err != nil {
		return err
	}
	snippet.ID, err = result.LastInsertId()
	return err
}

// UpdateSnippet updates a snippet's content. Ownership and ref_idx are
// fixed at creation.
func (s *SQLiteStore) UpdateSnippet(ctx context.Context, snippet *models.Snippet) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE snippets SET lang = ?, content = ? WHERE id = ?`,
		snippet.Lang, snippet.Content, snippet.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("snippet %d: %w", snippet.ID, ErrNotFound)
	}
	return nil
}

// SearchSnippets returns snippets matching all set predicates of f.
func (s *SQLiteStore) SearchSnippets(ctx context.Context, f SnippetFilter) ([]*models.Snippet, error) {
	query := `SELECT id, ref_idx, item_id, chunk_id, lang, type, content FROM snippets`
	var conds []string
	var args []any

	if f.Lang != "" {
		conds = append(conds, "lang = ?")
		args = append(args, f.Lang)
	}
	if f.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, string(f.Type))
	}
	if len(f.ItemIDs) > 0 {
		conds = append(conds, "item_id IN ("+placeholders(len(f.ItemIDs))+")")
		for _, id := range f.ItemIDs {
			args = append(args, id)
		}
	}
	if len(f.ChunkIDs) > 0 {
		conds = append(conds, "chunk_id IN ("+placeholders(len(f.ChunkIDs))+")")
		for _, id := range f.ChunkIDs {
			args = append(args, id)
		}
	}
	if f.ChunkOwned != nil {
		if *f.ChunkOwned {
			conds = append(conds, "chunk_id IS NOT NULL")
		} else {
			conds = append(conds, "chunk_id IS NULL")
		}
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	if f.OrderByRef {
		query += " ORDER BY ref_idx ASC"
	} else {
		query += " ORDER BY id ASC"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snippets []*models.Snippet
	for rows.Next() {
		var sn models.Snippet
		var itemID, chunkID sql.NullInt64
		var typ string
		if err := rows.Scan(&sn.ID, &sn.RefIdx, &itemID, &chunkID, &sn.Lang, &typ, &sn.Content); err != nil {
			return nil, err
		}
		sn.Type = models.SnippetType(typ)
		if itemID.Valid {
			sn.ItemID = &itemID.Int64
		}
		if chunkID.Valid {
			sn.ChunkID = &chunkID.Int64
		}
		snippets = append(snippets, &sn)
	}
	return snippets, rows.Err()
}

// EnsureTag returns the tag with the given name, creating it if absent.
// The uniqueness constraint makes re-adding a no-op, never a duplicate.
func (s *SQLiteStore) EnsureTag(ctx context.Context, name string) (*models.Tag, error) {
	if name == "" {
		return nil, fmt.Errorf("tag name cannot be empty")
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name); err != nil {
		return nil, err
	}
	var tag models.Tag
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM tags WHERE name = ?`, name,
	).Scan(&tag.ID, &tag.Name)
	if err != nil {
		return nil, err
	}
	return &tag, nil
}

// TagItem associates the named tags with an item, creating tags as needed.
// Existing associations are kept.
func (s *SQLiteStore) TagItem(ctx context.Context, itemID int64, tagNames []string) error {
	if _, err := s.GetItem(ctx, itemID); err != nil {
		return err
	}
	for _, name := range tagNames {
		tag, err := s.EnsureTag(ctx, name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO item_tags (item_id, tag_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			itemID, tag.ID); err != nil {
			return err
		}
	}
	return nil
}

// ItemTags returns the tag names of an item.
func (s *SQLiteStore) ItemTags(ctx context.Context, itemID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM tags t
		 JOIN item_tags it ON it.tag_id = t.id
		 WHERE it.item_id = ? ORDER BY t.name`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// ItemsByTags returns the IDs of items carrying any of the named tags.
func (s *SQLiteStore) ItemsByTags(ctx context.Context, tagNames []string) ([]int64, error) {
	if len(tagNames) == 0 {
		return nil, fmt.Errorf("at least one tag name required")
	}
	query := `SELECT DISTINCT it.item_id FROM item_tags it
		 JOIN tags t ON t.id = it.tag_id
		 WHERE t.name IN (` + placeholders(len(tagNames)) + `) ORDER BY it.item_id`
	args := make([]any, len(tagNames))
	for i, n := range tagNames {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountItems returns the total number of items.
func (s *SQLiteStore) CountItems(ctx context.Context) (int64, error) {
	return s.count(ctx, "items")
}

// CountChunks returns the total number of chunks.
func (s *SQLiteStore) CountChunks(ctx context.Context) (int64, error) {
	return s.count(ctx, "chunks")
}

// CountSnippets returns the total number of snippets.
func (s *SQLiteStore) CountSnippets(ctx context.Context) (int64, error) {
	return s.count(ctx, "snippets")
}

func (s *SQLiteStore) count(ctx context.Context, table string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n)
	return n, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func collectChunks(rows *sql.Rows) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.ChunkIdx, &chunk.ItemID); err != nil {
			return nil, err
		}
		chunks = append(chunks, &chunk)
	}
	return chunks, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func intArgs(vals []int) []any {
	args := make([]any, len(vals))
	for i, v := range vals {
		args[i] = v
	}
	return args
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
