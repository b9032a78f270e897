// Package models defines the durable entities of the identity store:
// the project, its items, their chunks, and the language-tagged snippets
// carrying the actual text.
package models

import (
	"strings"
	"time"
)

// Project is the singleton configuration row describing the corpus: which
// languages it carries, which embedding model produced its vectors, and
// where the vector files live. There is exactly one project per store.
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Langs       string `json:"langs"`       // comma-separated, e.g. "de,en"
	EmbedModel  string `json:"embed_model"` // model that produced the vector files
	EmbedSize   int    `json:"embed_size"`  // vector dimension
	VectorName  string `json:"vector_name"` // base name for vector files
	VectorPath  string `json:"vector_path"` // directory holding vector files
	IndexName   string `json:"index_name,omitempty"` // empty means brute-force search
	IndexPath   string `json:"index_path,omitempty"`
}

// LangList returns the project languages as a slice.
func (p *Project) LangList() []string {
	var langs []string
	for _, l := range strings.Split(p.Langs, ",") {
		if l = strings.TrimSpace(l); l != "" {
			langs = append(langs, l)
		}
	}
	return langs
}

// Item is the durable retrievable content unit. ItemIdx is the position of
// the item's title vector in the title collection file; it is assigned at
// creation and never changes afterwards.
type Item struct {
	ID       int64      `json:"id"`
	Name     string     `json:"name"`
	ItemIdx  int        `json:"item_idx"`
	Created  time.Time  `json:"created"`
	Modified *time.Time `json:"modified,omitempty"`
	URL      string     `json:"url,omitempty"`
	License  string     `json:"license,omitempty"`
}

// Tag is a named label, many-to-many with items, unique by name.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Chunk is a sub-unit of an item's content. ChunkIdx is the position of
// the chunk's vector in the chunk collection file, immutable after
// creation. A chunk belongs to exactly one item.
type Chunk struct {
	ID       int64 `json:"id"`
	ChunkIdx int   `json:"chunk_idx"`
	ItemID   int64 `json:"item_id"`
}

// SnippetType enumerates the kinds of text a snippet can carry.
type SnippetType string

const (
	SnippetContent SnippetType = "content"
	SnippetTitle   SnippetType = "title"
	SnippetSummary SnippetType = "summary"
	SnippetFact    SnippetType = "fact"
)

// Valid reports whether t is one of the known snippet types.
func (t SnippetType) Valid() bool {
	switch t {
	case SnippetContent, SnippetTitle, SnippetSummary, SnippetFact:
		return true
	}
	return false
}

// Snippet is a typed, language-tagged text payload attached to exactly one
// of an item or a chunk. RefIdx mirrors the owner's vector position for the
// facet the snippet feeds.
type Snippet struct {
	ID      int64       `json:"id"`
	RefIdx  int         `json:"ref_idx"`
	ItemID  *int64      `json:"item_id,omitempty"`
	ChunkID *int64      `json:"chunk_id,omitempty"`
	Lang    string      `json:"lang"`
	Type    SnippetType `json:"type"`
	Content string      `json:"content"`
}
