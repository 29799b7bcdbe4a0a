package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
	"github.com/JakeFAU/sitecrawl/internal/id/pointid"
)

// ChangeDetector is the slice of the frontier the adapter needs: the
// stored-hash comparison that lets unchanged recrawls skip downstream work.
type ChangeDetector interface {
	ShouldProcessContent(ctx context.Context, url, newHash string) (bool, error)
}

// Config controls the adapter.
type Config struct {
	Domain      string
	ContentType string
	Chunker     ChunkerConfig
	BatchSize   int
}

// Result summarizes one page's trip through the pipeline.
type Result struct {
	ContentHash string
	Processed   bool
	Chunks      int
}

// Adapter is the boundary between the crawl loop and the retrieval
// collaborators.
type Adapter struct {
	detector ChangeDetector
	embedder crawler.Embedder
	store    crawler.VectorStore
	hasher   crawler.Hasher
	cfg      Config
	logger   *zap.Logger
}

// New constructs an Adapter.
func New(
	detector ChangeDetector,
	embedder crawler.Embedder,
	store crawler.VectorStore,
	hasher crawler.Hasher,
	cfg Config,
	logger *zap.Logger,
) *Adapter {
	if cfg.ContentType == "" {
		cfg.ContentType = "webpage"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Adapter{
		detector: detector,
		embedder: embedder,
		store:    store,
		hasher:   hasher,
		cfg:      cfg,
		logger:   logger,
	}
}

// Process hashes the page text, short-circuits when the content is unchanged
// since the last crawl, and otherwise chunks, embeds and upserts it. Failures
// surface to the caller so the whole page attempt is re-classified at the
// frontier.
func (a *Adapter) Process(ctx context.Context, page crawler.PageContent) (Result, error) {
	hash, err := a.hasher.Hash([]byte(page.Text))
	if err != nil {
		return Result{}, fmt.Errorf("hash content: %w", err)
	}
	result := Result{ContentHash: hash}

	process, err := a.detector.ShouldProcessContent(ctx, page.URL, hash)
	if err != nil {
		return result, fmt.Errorf("change detection: %w", err)
	}
	if !process {
		a.logger.Debug("content unchanged; skipping pipeline", zap.String("url", page.URL))
		return result, nil
	}
	if page.Text == "" {
		// Non-HTML or empty pages are recorded but never embedded.
		return result, nil
	}

	chunks, err := ChunkText(page.Text, a.cfg.Chunker)
	if err != nil {
		return result, fmt.Errorf("chunk %s: %w", page.URL, err)
	}
	if len(chunks) == 0 {
		return result, nil
	}

	for start := 0; start < len(chunks); start += a.cfg.BatchSize {
		end := min(start+a.cfg.BatchSize, len(chunks))
		if err := a.upsertBatch(ctx, page, chunks[start:end], start); err != nil {
			return result, err
		}
	}

	result.Processed = true
	result.Chunks = len(chunks)
	a.logger.Debug("page embedded",
		zap.String("url", page.URL),
		zap.Int("chunks", len(chunks)),
	)
	return result, nil
}

func (a *Adapter) upsertBatch(ctx context.Context, page crawler.PageContent, batch []string, offset int) error {
	vectors, err := a.embedder.Embed(ctx, batch)
	if err != nil {
		return fmt.Errorf("embed %s: %w", page.URL, err)
	}
	if len(vectors) != len(batch) {
		return fmt.Errorf("embed %s: got %d vectors for %d chunks", page.URL, len(vectors), len(batch))
	}

	points := make([]crawler.Point, 0, len(batch))
	for i, chunk := range batch {
		index := offset + i
		points = append(points, crawler.Point{
			ID: pointid.New(pointid.Key{
				ContentType: a.cfg.ContentType,
				Domain:      a.cfg.Domain,
				Title:       page.Title,
				URL:         page.URL,
				ChunkIndex:  index,
			}),
			Vector: vectors[i],
			Metadata: map[string]any{
				"url":          page.URL,
				"domain":       a.cfg.Domain,
				"title":        page.Title,
				"content_type": a.cfg.ContentType,
				"chunk_index":  index,
				"text":         chunk,
				"fetched_at":   page.FetchedAt,
			},
		})
	}
	if err := a.store.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert %s: %w", page.URL, err)
	}
	return nil
}
