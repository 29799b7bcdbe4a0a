package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
	md5hash "github.com/JakeFAU/sitecrawl/internal/hash/md5"
	"github.com/JakeFAU/sitecrawl/internal/vector/memory"
)

type stubDetector struct {
	process bool
	lastURL string
	lastKey string
}

func (d *stubDetector) ShouldProcessContent(_ context.Context, url, newHash string) (bool, error) {
	d.lastURL = url
	d.lastKey = newHash
	return d.process, nil
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("embedding backend unavailable")
}

func testPage() crawler.PageContent {
	return crawler.PageContent{
		URL:       "https://example.com/widgets",
		Title:     "Widgets",
		Text:      strings.Repeat("widgets are small and useful ", 40),
		FetchedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

func newTestAdapter(detector ChangeDetector, embedder crawler.Embedder, store crawler.VectorStore) *Adapter {
	return New(detector, embedder, store, md5hash.New(), Config{
		Domain:  "example.com",
		Chunker: ChunkerConfig{MaxTokens: 64, Overlap: 8},
	}, zap.NewNop())
}

func TestAdapter_ProcessEmbedsAndUpserts(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{process: true}
	store := memory.NewVectorStore()
	adapter := newTestAdapter(detector, memory.NewEmbedder(8), store)

	result, err := adapter.Process(context.Background(), testPage())
	require.NoError(t, err)
	require.True(t, result.Processed)
	require.Positive(t, result.Chunks)
	require.Equal(t, result.Chunks, store.Len())
	require.Equal(t, "https://example.com/widgets", detector.lastURL)
	require.Equal(t, md5hash.Sum([]byte(testPage().Text)), result.ContentHash)
}

func TestAdapter_UnchangedContentShortCircuits(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{process: false}
	store := memory.NewVectorStore()
	adapter := newTestAdapter(detector, memory.NewEmbedder(8), store)

	result, err := adapter.Process(context.Background(), testPage())
	require.NoError(t, err)
	require.False(t, result.Processed)
	require.Zero(t, result.Chunks)
	require.Zero(t, store.Len())
	require.NotEmpty(t, result.ContentHash)
}

func TestAdapter_ReingestionIsIdempotent(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{process: true}
	store := memory.NewVectorStore()
	adapter := newTestAdapter(detector, memory.NewEmbedder(8), store)

	first, err := adapter.Process(context.Background(), testPage())
	require.NoError(t, err)
	second, err := adapter.Process(context.Background(), testPage())
	require.NoError(t, err)

	require.Equal(t, first.Chunks, second.Chunks)
	// Same page, same chunk indexes, same deterministic IDs: no duplicates.
	require.Equal(t, first.Chunks, store.Len())
}

func TestAdapter_EmptyTextSkipsEmbedding(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{process: true}
	store := memory.NewVectorStore()
	adapter := newTestAdapter(detector, memory.NewEmbedder(8), store)

	page := testPage()
	page.Text = ""
	result, err := adapter.Process(context.Background(), page)
	require.NoError(t, err)
	require.False(t, result.Processed)
	require.Zero(t, store.Len())
	require.NotEmpty(t, result.ContentHash)
}

func TestAdapter_EmbedFailurePropagates(t *testing.T) {
	t.Parallel()

	detector := &stubDetector{process: true}
	adapter := newTestAdapter(detector, failingEmbedder{}, memory.NewVectorStore())

	_, err := adapter.Process(context.Background(), testPage())
	require.Error(t, err)
	require.Contains(t, err.Error(), "embedding backend unavailable")
}

func TestChunkText_RespectsBounds(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("alpha beta gamma delta epsilon. ", 200)
	chunks, err := ChunkText(text, ChunkerConfig{MaxTokens: 100, Overlap: 10})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		require.LessOrEqual(t, countTokens(chunk), 120, "chunk should stay near the token budget")
	}
}

func TestChunkText_EmptyInput(t *testing.T) {
	t.Parallel()

	chunks, err := ChunkText("   ", ChunkerConfig{})
	require.NoError(t, err)
	require.Empty(t, chunks)
}
