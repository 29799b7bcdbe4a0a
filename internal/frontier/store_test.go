package frontier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store, err := Open(t.TempDir(), "example.com", Options{
		DefaultFrequencyDays: 7,
		Clock:                clock,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store, clock
}

func TestStore_AddDeduplicatesVariants(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/docs/"))
	require.NoError(t, store.Add(ctx, "https://www.example.com/docs"))
	require.NoError(t, store.Add(ctx, "EXAMPLE.COM/docs#top"))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Total())
}

func TestStore_AddDoesNotTouchKnownRecords(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkVisited(ctx, "https://example.com/a", "hash-1"))

	// Re-discovering the URL must not reset it to pending.
	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	visited, err := store.IsVisited(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.True(t, visited)
}

func TestStore_MarkVisitedSetsHashAndSchedule(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkVisited(ctx, "https://example.com/a", "hash-1"))

	record, err := store.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, crawler.StatusVisited, record.Status)
	require.Equal(t, "hash-1", record.ContentHash)
	require.NotNil(t, record.LastCrawl)
	require.NotNil(t, record.NextCrawl)
	require.True(t, record.NextCrawl.Equal(clock.now.AddDate(0, 0, 7)),
		"next_crawl %v should be one frequency after %v", record.NextCrawl, clock.now)
	require.Equal(t, crawler.FailureNone, record.FailureType)
	require.Nil(t, record.RetryAfter)
}

func TestStore_ShouldProcessContent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	// Unknown URL is always processed.
	ok, err := store.ShouldProcessContent(ctx, "https://example.com/new", "h")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkVisited(ctx, "https://example.com/a", "h1"))

	same, err := store.ShouldProcessContent(ctx, "https://example.com/a", "h1")
	require.NoError(t, err)
	require.False(t, same)

	changed, err := store.ShouldProcessContent(ctx, "https://example.com/a", "h2")
	require.NoError(t, err)
	require.True(t, changed)
}

func TestStore_TemporaryFailureBacksOff(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/flaky"))
	cause := &crawler.HTTPError{StatusCode: 503, URL: "https://example.com/flaky"}
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/flaky", cause))

	record, err := store.Get(ctx, "https://example.com/flaky")
	require.NoError(t, err)
	require.Equal(t, crawler.StatusPending, record.Status)
	require.Equal(t, crawler.FailureTemporary, record.FailureType)
	require.Equal(t, 1, record.RetryCount)
	require.NotNil(t, record.RetryAfter)
	require.True(t, record.RetryAfter.After(clock.now))
	firstRetryAfter := *record.RetryAfter

	// A second temporary failure backs off further.
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/flaky", cause))
	record, err = store.Get(ctx, "https://example.com/flaky")
	require.NoError(t, err)
	require.Equal(t, 2, record.RetryCount)
	require.True(t, record.RetryAfter.After(firstRetryAfter))
}

func TestStore_PermanentFailureParksRecord(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/gone"))
	cause := &crawler.HTTPError{StatusCode: 404, URL: "https://example.com/gone"}
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/gone", cause))

	record, err := store.Get(ctx, "https://example.com/gone")
	require.NoError(t, err)
	require.Equal(t, crawler.StatusFailed, record.Status)
	require.Equal(t, crawler.FailurePermanent, record.FailureType)
	require.Equal(t, 0, record.RetryCount)
	require.Nil(t, record.RetryAfter)
	require.Contains(t, record.LastError, "404")
}

func TestStore_MarkFailedUnknownURL(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	err := store.MarkFailed(context.Background(), "https://example.com/ghost", errors.New("boom"))
	require.ErrorIs(t, err, ErrUnknownURL)
}

func TestStore_NextDueOrderingAndReadiness(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore(t)
	ctx := context.Background()

	// Empty frontier yields nothing.
	record, err := store.NextDue(ctx)
	require.NoError(t, err)
	require.Nil(t, record)

	require.NoError(t, store.Add(ctx, "https://example.com/low"))
	require.NoError(t, store.AddSeed(ctx, "https://example.com", 100, nil))

	record, err = store.NextDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "https://example.com", record.URL)

	// A temporarily failed URL is not ready until its backoff elapses.
	require.NoError(t, store.MarkVisited(ctx, "https://example.com", "h"))
	cause := &crawler.HTTPError{StatusCode: 500, URL: "https://example.com/low"}
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/low", cause))

	record, err = store.NextDue(ctx)
	require.NoError(t, err)
	require.Nil(t, record)

	clock.Advance(6 * time.Minute)
	record, err = store.NextDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "https://example.com/low", record.URL)
}

func TestStore_VisitedBecomesDueForRecrawl(t *testing.T) {
	t.Parallel()

	store, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkVisited(ctx, "https://example.com/a", "h"))

	record, err := store.NextDue(ctx)
	require.NoError(t, err)
	require.Nil(t, record)

	clock.Advance(8 * 24 * time.Hour)
	record, err = store.NextDue(ctx)
	require.NoError(t, err)
	require.NotNil(t, record)
	require.Equal(t, "https://example.com/a", record.URL)
	require.Equal(t, crawler.StatusVisited, record.Status)
}

func TestStore_RetryFailedResetsOnlyPermanent(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/dead"))
	require.NoError(t, store.Add(ctx, "https://example.com/flaky"))

	require.NoError(t, store.MarkFailed(ctx, "https://example.com/dead",
		&crawler.HTTPError{StatusCode: 410, URL: "https://example.com/dead"}))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/flaky",
		&crawler.HTTPError{StatusCode: 503, URL: "https://example.com/flaky"}))

	n, err := store.RetryFailed(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	dead, err := store.Get(ctx, "https://example.com/dead")
	require.NoError(t, err)
	require.Equal(t, crawler.StatusPending, dead.Status)
	require.Equal(t, crawler.FailureNone, dead.FailureType)
	require.Zero(t, dead.RetryCount)
	require.Empty(t, dead.LastError)

	// The pending temporary failure keeps its scheduled retry.
	flaky, err := store.Get(ctx, "https://example.com/flaky")
	require.NoError(t, err)
	require.Equal(t, crawler.FailureTemporary, flaky.FailureType)
	require.Equal(t, 1, flaky.RetryCount)
	require.NotNil(t, flaky.RetryAfter)
}

func TestStore_ListFailed(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, "https://example.com/dead"))
	require.NoError(t, store.MarkFailed(ctx, "https://example.com/dead",
		&crawler.HTTPError{StatusCode: 404, URL: "https://example.com/dead"}))

	failed, err := store.ListFailed(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, "https://example.com/dead", failed[0].URL)
	require.Contains(t, failed[0].LastError, "404")
}

func TestStore_SurvivesReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	store, err := Open(dir, "example.com", Options{Clock: clock}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Add(ctx, "https://example.com/a"))
	require.NoError(t, store.MarkVisited(ctx, "https://example.com/a", "h1"))
	require.NoError(t, store.Close())

	reopened, err := Open(dir, "example.com", Options{Clock: clock}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	visited, err := reopened.IsVisited(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.True(t, visited)
}

func TestStore_FreshStartResets(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := Open(dir, "example.com", Options{}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), "https://example.com/a"))
	require.NoError(t, store.Close())

	fresh, err := Open(dir, "example.com", Options{Reset: true}, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = fresh.Close() }()

	stats, err := fresh.Stats(context.Background())
	require.NoError(t, err)
	require.Zero(t, stats.Total())
}
