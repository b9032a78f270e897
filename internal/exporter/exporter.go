// Package exporter builds flat vector files from the identity store's
// snippets. Record order follows ref_idx so that vector positions and
// database rows stay in lockstep.
package exporter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/storage"
	"github.com/hyperjump/kensaku/internal/vector"
	"github.com/hyperjump/kensaku/pkg/utils"
)

// Facet names the snippet slice a vector file is built from.
type Facet string

const (
	FacetTitle   Facet = "title"
	FacetChunk   Facet = "chunk"
	FacetSummary Facet = "summary"
)

// ExportedFile describes one written vector file.
type ExportedFile struct {
	Facet     Facet
	Lang      string
	Path      string
	Rows      int
	Dimension int
}

// Exporter writes one vector file per language and facet.
type Exporter struct {
	store    storage.Store
	embedder embedding.Embedder
	logger   *zap.Logger
}

// New creates an exporter.
func New(store storage.Store, embedder embedding.Embedder, logger *zap.Logger) *Exporter {
	return &Exporter{store: store, embedder: embedder, logger: logger}
}

// Export embeds every snippet facet of the project and writes the vector
// files under the project's vector path. It fails if any facet's ref_idx
// sequence has gaps: a file exported from a gapped sequence would shift
// every later position and silently corrupt lookups.
func (e *Exporter) Export(ctx context.Context) ([]ExportedFile, error) {
	project, err := e.store.GetProject(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load project: %w", err)
	}
	if err := os.MkdirAll(project.VectorPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector path: %w", err)
	}

	var files []ExportedFile
	for _, lang := range project.LangList() {
		for _, facet := range []Facet{FacetTitle, FacetChunk, FacetSummary} {
			file, err := e.exportFacet(ctx, project, facet, lang)
			if err != nil {
				return nil, fmt.Errorf("failed to export %s/%s: %w", facet, lang, err)
			}
			if file != nil {
				files = append(files, *file)
			}
		}
	}
	return files, nil
}

func (e *Exporter) exportFacet(ctx context.Context, project *models.Project, facet Facet, lang string) (*ExportedFile, error) {
	snips, err := e.facetSnippets(ctx, facet, lang)
	if err != nil {
		return nil, err
	}
	if len(snips) == 0 {
		e.logger.Debug("skipping empty facet",
			zap.String("facet", string(facet)),
			zap.String("lang", lang))
		return nil, nil
	}
	if err := checkContiguous(snips); err != nil {
		return nil, err
	}

	texts := make([]string, len(snips))
	for i, sn := range snips {
		texts[i] = sn.Content
	}
	embs, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	for _, emb := range embs {
		if len(emb) != project.EmbedSize {
			return nil, fmt.Errorf("embedding dimension %d does not match project size %d", len(emb), project.EmbedSize)
		}
		// Zero vectors stay zero and score nothing at query time.
		utils.NormalizeL2(emb)
	}

	path := filepath.Join(project.VectorPath, FileName(project.VectorName, project.EmbedSize, facet, lang))
	if err := writeVectors(path, embs, project.EmbedSize); err != nil {
		return nil, err
	}
	e.logger.Info("exported vector file",
		zap.String("path", path),
		zap.Int("rows", len(embs)),
		zap.Int("dimension", project.EmbedSize))
	return &ExportedFile{
		Facet:     facet,
		Lang:      lang,
		Path:      path,
		Rows:      len(embs),
		Dimension: project.EmbedSize,
	}, nil
}

func (e *Exporter) facetSnippets(ctx context.Context, facet Facet, lang string) ([]*models.Snippet, error) {
	chunkOwned := facet == FacetChunk
	filter := storage.SnippetFilter{
		Lang:       lang,
		ChunkOwned: &chunkOwned,
		OrderByRef: true,
	}
	switch facet {
	case FacetTitle:
		filter.Type = models.SnippetTitle
	case FacetChunk:
		filter.Type = models.SnippetContent
	case FacetSummary:
		filter.Type = models.SnippetSummary
	default:
		return nil, fmt.Errorf("unknown facet %q", facet)
	}
	return e.store.SearchSnippets(ctx, filter)
}

// checkContiguous verifies that ref_idx runs 0..n-1 without gaps or
// duplicates.
func checkContiguous(snips []*models.Snippet) error {
	for i, sn := range snips {
		if sn.RefIdx != i {
			return fmt.Errorf("ref_idx gap: expected %d, found %d", i, sn.RefIdx)
		}
	}
	return nil
}

// FileName builds the canonical vector file name for a facet.
func FileName(base string, size int, facet Facet, lang string) string {
	return fmt.Sprintf("%s_%04d_%s_%s.vec", base, size, facet, lang)
}

// writeVectors writes through a temp file so a half-written file never
// replaces a good one.
func writeVectors(path string, rows [][]float32, dim int) error {
	tmp := path + ".tmp"
	if err := vector.WriteFile(tmp, rows, dim); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}
