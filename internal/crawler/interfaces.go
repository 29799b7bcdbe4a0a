package crawler

import (
	"context"
	"time"
)

// Frontier is the durable set of known URLs and their crawl state. It is the
// sole source of truth for what to fetch next. All mutations are transactional.
type Frontier interface {
	// Add normalizes url and inserts it as pending. Known URLs are left
	// untouched regardless of status.
	Add(ctx context.Context, url string) error

	// AddSeed inserts url as pending with the given priority and optional
	// externally supplied modification hint.
	AddSeed(ctx context.Context, url string, priority int, modified *time.Time) error

	// IsVisited reports whether url has been successfully crawled.
	IsVisited(ctx context.Context, url string) (bool, error)

	// ShouldProcessContent reports whether newHash differs from the stored
	// content hash (or the URL is unknown), enabling the recrawl
	// change-detection short circuit.
	ShouldProcessContent(ctx context.Context, url, newHash string) (bool, error)

	// MarkVisited records a successful crawl and schedules the next one.
	MarkVisited(ctx context.Context, url, contentHash string) error

	// MarkFailed classifies cause and either schedules a backed-off retry
	// (temporary) or parks the record as permanently failed.
	MarkFailed(ctx context.Context, url string, cause error) error

	// NextDue returns the highest-priority ready record, or nil when nothing
	// is due.
	NextDue(ctx context.Context) (*CrawlRecord, error)

	// RetryFailed resets every permanently failed record to pending and
	// returns how many were reset. Temporary failures already scheduled for
	// retry are left untouched.
	RetryFailed(ctx context.Context) (int64, error)

	// ListFailed returns all permanently failed records for reporting.
	ListFailed(ctx context.Context) ([]CrawlRecord, error)

	// Stats returns record counts by status.
	Stats(ctx context.Context) (FrontierStats, error)
}

// Fetcher fetches a URL and returns the rendered document plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// SessionFetcher is a Fetcher backed by a long-lived browser session that can
// be torn down and relaunched when the session turns unhealthy.
type SessionFetcher interface {
	Fetcher
	Restart(ctx context.Context) error
	Close() error
}

// Embedder is the embedding-model collaborator.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Point is one vector-store row.
type Point struct {
	ID       string
	Vector   []float32
	Metadata map[string]any
}

// VectorStore is the vector-database collaborator. Upserts are idempotent by
// construction of the point ID.
type VectorStore interface {
	Upsert(ctx context.Context, points []Point) error
}

// RobotsPolicy answers whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Hasher computes content digests for change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
