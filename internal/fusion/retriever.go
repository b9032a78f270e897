package fusion

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kensaku/internal/embedding"
	"github.com/hyperjump/kensaku/internal/models"
	"github.com/hyperjump/kensaku/internal/search"
	"github.com/hyperjump/kensaku/internal/storage"
)

// Config controls retrieval fusion.
type Config struct {
	// Items is the number of distinct items in the final bundle.
	Items int
	// Lang selects the snippet language for titles and content.
	Lang string
	// Threshold is the minimum similarity a hit must reach to be
	// considered at all.
	Threshold float64
	// TitleOverfetch and ChunkOverfetch are the per-collection
	// multipliers applied to Items when querying, so that thresholding
	// and deduplication still leave enough candidates.
	TitleOverfetch int
	ChunkOverfetch int
	// TitleCollection and ChunkCollection name the two collections.
	TitleCollection string
	ChunkCollection string
}

// Normalize fills zero fields with the standard defaults.
func (c *Config) Normalize() {
	if c.Items <= 0 {
		c.Items = 5
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.Threshold == 0 {
		c.Threshold = 0.35
	}
	if c.TitleOverfetch <= 0 {
		c.TitleOverfetch = 2
	}
	if c.ChunkOverfetch <= 0 {
		c.ChunkOverfetch = 5
	}
	if c.TitleCollection == "" {
		c.TitleCollection = "titles"
	}
	if c.ChunkCollection == "" {
		c.ChunkCollection = "chunks"
	}
}

// Source identifies one item that contributed to a context bundle.
type Source struct {
	Name  string  `json:"name"`
	URL   string  `json:"url,omitempty"`
	Score float64 `json:"score"`
}

// Context is the assembled retrieval result: concatenated text blocks
// and the items they came from, both in rank order. An empty Text with
// no Sources means nothing relevant was found.
type Context struct {
	Text    string   `json:"text"`
	Sources []Source `json:"sources"`
}

// Retriever turns a free-text query into a context bundle by fusing
// title-level and chunk-level similarity search with the identity store.
type Retriever struct {
	searcher search.Searcher
	store    storage.Store
	embedder embedding.Embedder
	config   Config
	logger   *zap.Logger
}

// NewRetriever creates a retriever with the given dependencies.
func NewRetriever(
	searcher search.Searcher,
	store storage.Store,
	embedder embedding.Embedder,
	cfg Config,
	logger *zap.Logger,
) *Retriever {
	cfg.Normalize()
	return &Retriever{
		searcher: searcher,
		store:    store,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
}

// Retrieve embeds the query once, fans it out to the title and chunk
// collections, and fuses the resolved hits into a ranked bundle.
func (r *Retriever) Retrieve(ctx context.Context, query string) (*Context, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	var titleHits, chunkHits []search.Result
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := r.searcher.Search(gctx, search.RefByName(r.config.TitleCollection), vec, r.config.Items*r.config.TitleOverfetch)
		if err != nil {
			return fmt.Errorf("title search failed: %w", err)
		}
		titleHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := r.searcher.Search(gctx, search.RefByName(r.config.ChunkCollection), vec, r.config.Items*r.config.ChunkOverfetch)
		if err != nil {
			return fmt.Errorf("chunk search failed: %w", err)
		}
		chunkHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	titleHits = thresholdResults(titleHits, r.config.Threshold)
	chunkHits = thresholdResults(chunkHits, r.config.Threshold)

	titleCands, err := r.resolveTitleHits(ctx, titleHits)
	if err != nil {
		return nil, err
	}
	chunkCands, err := r.resolveChunkHits(ctx, chunkHits)
	if err != nil {
		return nil, err
	}

	fused := dedupByItem(mergeByScore(titleCands, chunkCands))
	if len(fused) > r.config.Items {
		fused = fused[:r.config.Items]
	}
	return r.assemble(ctx, fused)
}

// resolveTitleHits maps title-collection positions to items. Positions
// with no item row are logged and dropped rather than failing the call.
func (r *Retriever) resolveTitleHits(ctx context.Context, hits []search.Result) ([]candidate, error) {
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.ID
	}
	items, err := r.store.ItemsByTitlePositions(ctx, positions)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve title positions: %w", err)
	}
	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		item, ok := items[h.ID]
		if !ok {
			r.logger.Warn("dropping unresolvable title hit",
				zap.Int("position", h.ID),
				zap.Float64("score", h.Similarity))
			continue
		}
		cands = append(cands, candidate{Item: item, Score: h.Similarity})
	}
	return cands, nil
}

// resolveChunkHits maps chunk-collection positions to chunks and their
// owning items, with the same drop-and-log policy as title hits.
func (r *Retriever) resolveChunkHits(ctx context.Context, hits []search.Result) ([]candidate, error) {
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.ID
	}
	chunks, err := r.store.ChunksByPositions(ctx, positions)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve chunk positions: %w", err)
	}
	cands := make([]candidate, 0, len(hits))
	for _, h := range hits {
		chunk, ok := chunks[h.ID]
		if !ok {
			r.logger.Warn("dropping unresolvable chunk hit",
				zap.Int("position", h.ID),
				zap.Float64("score", h.Similarity))
			continue
		}
		item, err := r.store.GetItem(ctx, chunk.ItemID)
		if err != nil {
			r.logger.Warn("dropping chunk hit with missing item",
				zap.Int("position", h.ID),
				zap.Int64("item_id", chunk.ItemID),
				zap.Error(err))
			continue
		}
		cands = append(cands, candidate{Item: item, Chunk: chunk, Score: h.Similarity})
	}
	return cands, nil
}

// assemble builds the final text blocks and source list in rank order.
func (r *Retriever) assemble(ctx context.Context, cands []candidate) (*Context, error) {
	out := &Context{Sources: []Source{}}
	var blocks []string
	for _, c := range cands {
		title, err := r.itemSnippet(ctx, c.Item.ID, models.SnippetTitle)
		if err != nil {
			return nil, err
		}
		if title == "" {
			title = c.Item.Name
		}

		var content string
		if c.Chunk != nil {
			content, err = r.chunkContent(ctx, c.Chunk.ID)
			if err != nil {
				return nil, err
			}
		}
		if content == "" {
			content, err = r.itemSnippet(ctx, c.Item.ID, models.SnippetSummary)
			if err != nil {
				return nil, err
			}
		}

		blocks = append(blocks, fmt.Sprintf("%s:%s\n%s", c.Item.Name, title, content))
		out.Sources = append(out.Sources, Source{Name: c.Item.Name, URL: c.Item.URL, Score: c.Score})
	}
	out.Text = strings.Join(blocks, "\n\n")
	return out, nil
}

func (r *Retriever) itemSnippet(ctx context.Context, itemID int64, typ models.SnippetType) (string, error) {
	snips, err := r.store.SearchSnippets(ctx, storage.SnippetFilter{
		Lang:       r.config.Lang,
		Type:       typ,
		ItemIDs:    []int64{itemID},
		OrderByRef: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to load %s snippet: %w", typ, err)
	}
	if len(snips) == 0 {
		return "", nil
	}
	return snips[0].Content, nil
}

func (r *Retriever) chunkContent(ctx context.Context, chunkID int64) (string, error) {
	snips, err := r.store.SearchSnippets(ctx, storage.SnippetFilter{
		Lang:     r.config.Lang,
		Type:     models.SnippetContent,
		ChunkIDs: []int64{chunkID},
	})
	if err != nil {
		return "", fmt.Errorf("failed to load chunk content: %w", err)
	}
	if len(snips) == 0 {
		return "", nil
	}
	return snips[0].Content, nil
}
