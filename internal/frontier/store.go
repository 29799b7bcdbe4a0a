// Package frontier implements the durable crawl frontier on embedded SQLite.
// One database file per target domain; every mutation is transactional so a
// crash mid-update cannot leave a URL in an inconsistent status/retry state.
package frontier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/sitecrawl/internal/crawler"
)

// timeLayout is a fixed-width UTC format so lexicographic comparison of
// stored timestamps matches chronological order.
const timeLayout = "2006-01-02T15:04:05Z"

// ErrUnknownURL is returned when a status mutation targets a URL the
// frontier has never seen.
var ErrUnknownURL = errors.New("frontier: unknown url")

// Options configures Store behavior.
type Options struct {
	// DefaultFrequencyDays is the recrawl interval assigned to newly
	// discovered URLs.
	DefaultFrequencyDays int

	// Classifier tags failures as temporary or permanent. Defaults to
	// crawler.DefaultClassifier.
	Classifier *crawler.Classifier

	// Backoff schedules retries of temporary failures. Defaults to
	// crawler.DefaultBackoff.
	Backoff crawler.Backoff

	// Clock supplies the current time. Defaults to the system clock.
	Clock crawler.Clock

	// Reset drops all existing records on open (fresh-start mode).
	Reset bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Store is the SQLite-backed crawler.Frontier implementation.
type Store struct {
	db         *sql.DB
	dbPath     string
	clock      crawler.Clock
	classifier *crawler.Classifier
	backoff    crawler.Backoff
	frequency  int
	logger     *zap.Logger
}

// Open opens or creates the frontier database for domain under dir.
func Open(dir, domain string, opts Options, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create frontier directory: %w", err)
	}
	dbPath := filepath.Join(dir, domain+".db")

	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open frontier database: %w", err)
	}

	// SQLite supports a single writer; one pooled connection avoids
	// SQLITE_BUSY under the daemon's serial write pattern.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if opts.DefaultFrequencyDays <= 0 {
		opts.DefaultFrequencyDays = 14
	}
	if opts.Classifier == nil {
		opts.Classifier = crawler.DefaultClassifier()
	}
	if opts.Backoff == (crawler.Backoff{}) {
		opts.Backoff = crawler.DefaultBackoff()
	}
	if opts.Clock == nil {
		opts.Clock = systemClock{}
	}

	s := &Store{
		db:         db,
		dbPath:     dbPath,
		clock:      opts.Clock,
		classifier: opts.Classifier,
		backoff:    opts.Backoff,
		frequency:  opts.DefaultFrequencyDays,
		logger:     logger,
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create frontier schema: %w", err)
	}

	if opts.Reset {
		if _, err := db.ExecContext(context.Background(), "DELETE FROM frontier"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("reset frontier: %w", err)
		}
		logger.Info("frontier reset for fresh start", zap.String("db", dbPath))
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.dbPath
}

func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS frontier (
		url TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'pending',
		last_crawl TEXT,
		next_crawl TEXT,
		crawl_frequency INTEGER NOT NULL,
		content_hash TEXT,
		last_error TEXT,
		failure_type TEXT,
		retry_count INTEGER NOT NULL DEFAULT 0,
		retry_after TEXT,
		priority INTEGER NOT NULL DEFAULT 0,
		modified_date TEXT,
		discovered_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_frontier_status ON frontier(status);
	CREATE INDEX IF NOT EXISTS idx_frontier_ready ON frontier(status, priority, retry_after, next_crawl);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// Add implements crawler.Frontier. Inserting an already known URL (any
// status) is a no-op.
func (s *Store) Add(ctx context.Context, rawURL string) error {
	return s.insert(ctx, rawURL, 0, nil)
}

// AddSeed inserts a seed URL with elevated priority and an optional external
// modification hint. Re-seeding a known URL refreshes priority and hint but
// never touches crawl state.
func (s *Store) AddSeed(ctx context.Context, rawURL string, priority int, modified *time.Time) error {
	return s.insert(ctx, rawURL, priority, modified)
}

func (s *Store) insert(ctx context.Context, rawURL string, priority int, modified *time.Time) error {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", rawURL, err)
	}

	query := `
	INSERT INTO frontier (url, status, crawl_frequency, priority, modified_date, discovered_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(url) DO UPDATE SET
		priority = MAX(priority, excluded.priority),
		modified_date = COALESCE(excluded.modified_date, modified_date)
	`
	_, err = s.db.ExecContext(ctx, query,
		key,
		crawler.StatusPending,
		s.frequency,
		priority,
		s.nullTime(modified),
		s.clock.Now().UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert %s: %w", key, err)
	}
	return nil
}

// IsVisited implements crawler.Frontier.
func (s *Store) IsVisited(ctx context.Context, rawURL string) (bool, error) {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return false, fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	var status string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM frontier WHERE url = ?", key).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query status of %s: %w", key, err)
	}
	return crawler.Status(status) == crawler.StatusVisited, nil
}

// ShouldProcessContent implements crawler.Frontier: true when the URL is
// unknown or its stored hash differs from newHash.
func (s *Store) ShouldProcessContent(ctx context.Context, rawURL, newHash string) (bool, error) {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return false, fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	var stored sql.NullString
	err = s.db.QueryRowContext(ctx, "SELECT content_hash FROM frontier WHERE url = ?", key).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("query hash of %s: %w", key, err)
	}
	return !stored.Valid || stored.String != newHash, nil
}

// MarkVisited implements crawler.Frontier. It records the crawl, stores the
// content hash, schedules the next recrawl and clears all failure metadata.
func (s *Store) MarkVisited(ctx context.Context, rawURL, contentHash string) error {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	now := s.clock.Now().UTC()

	query := `
	UPDATE frontier SET
		status = ?,
		content_hash = ?,
		last_crawl = ?,
		next_crawl = datetime(?, '+' || crawl_frequency || ' days'),
		last_error = NULL,
		failure_type = NULL,
		retry_count = 0,
		retry_after = NULL
	WHERE url = ?
	`
	result, err := s.db.ExecContext(ctx, query,
		crawler.StatusVisited,
		contentHash,
		now.Format(timeLayout),
		now.Format(timeLayout),
		key,
	)
	if err != nil {
		return fmt.Errorf("mark visited %s: %w", key, err)
	}
	return s.requireRow(result, key)
}

// MarkFailed implements crawler.Frontier. Temporary failures stay pending
// with an increased retry count and a backed-off retry_after; permanent
// failures are parked with retry metadata cleared.
func (s *Store) MarkFailed(ctx context.Context, rawURL string, cause error) error {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	now := s.clock.Now().UTC()

	tag := s.classifier.Classify(cause)
	if tag == crawler.FailureNone {
		tag = crawler.FailurePermanent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin failure update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if tag == crawler.FailureTemporary {
		var retries int
		err = tx.QueryRowContext(ctx, "SELECT retry_count FROM frontier WHERE url = ?", key).Scan(&retries)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownURL, key)
		}
		if err != nil {
			return fmt.Errorf("query retry count of %s: %w", key, err)
		}
		retries++
		retryAfter := now.Add(s.backoff.Delay(retries))

		_, err = tx.ExecContext(ctx, `
			UPDATE frontier SET
				status = ?,
				last_crawl = ?,
				last_error = ?,
				failure_type = ?,
				retry_count = ?,
				retry_after = ?
			WHERE url = ?`,
			crawler.StatusPending,
			now.Format(timeLayout),
			message,
			crawler.FailureTemporary,
			retries,
			retryAfter.Format(timeLayout),
			key,
		)
		if err != nil {
			return fmt.Errorf("mark temporary failure %s: %w", key, err)
		}
	} else {
		result, execErr := tx.ExecContext(ctx, `
			UPDATE frontier SET
				status = ?,
				last_crawl = ?,
				last_error = ?,
				failure_type = ?,
				retry_count = 0,
				retry_after = NULL
			WHERE url = ?`,
			crawler.StatusFailed,
			now.Format(timeLayout),
			message,
			crawler.FailurePermanent,
			key,
		)
		if execErr != nil {
			return fmt.Errorf("mark permanent failure %s: %w", key, execErr)
		}
		if err := s.requireRow(result, key); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit failure update: %w", err)
	}
	s.logger.Debug("failure recorded",
		zap.String("url", key),
		zap.String("failure_type", string(tag)),
		zap.String("error", message),
	)
	return nil
}

// NextDue implements crawler.Frontier. Readiness: pending with no (or
// elapsed) retry_after, or visited with an elapsed next_crawl. Highest
// priority first; ties broken by earliest last crawl, then insertion order.
func (s *Store) NextDue(ctx context.Context) (*crawler.CrawlRecord, error) {
	now := s.clock.Now().UTC().Format(timeLayout)
	query := `
	SELECT url, status, last_crawl, next_crawl, crawl_frequency, content_hash,
	       last_error, failure_type, retry_count, retry_after, priority, modified_date
	FROM frontier
	WHERE (status = 'pending' AND (retry_after IS NULL OR datetime(retry_after) <= datetime(?)))
	   OR (status = 'visited' AND next_crawl IS NOT NULL AND datetime(next_crawl) <= datetime(?))
	ORDER BY priority DESC, COALESCE(last_crawl, '') ASC, rowid ASC
	LIMIT 1
	`
	row := s.db.QueryRowContext(ctx, query, now, now)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select next due: %w", err)
	}
	return record, nil
}

// RetryFailed implements crawler.Frontier: bulk reset of permanent failures
// back to pending with cleared retry metadata.
func (s *Store) RetryFailed(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE frontier SET
			status = ?,
			failure_type = NULL,
			retry_count = 0,
			retry_after = NULL,
			last_error = NULL
		WHERE status = ?`,
		crawler.StatusPending,
		crawler.StatusFailed,
	)
	if err != nil {
		return 0, fmt.Errorf("retry failed urls: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("count retried urls: %w", err)
	}
	s.logger.Info("permanently failed urls requeued", zap.Int64("count", n))
	return n, nil
}

// ListFailed implements crawler.Frontier.
func (s *Store) ListFailed(ctx context.Context) ([]crawler.CrawlRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT url, status, last_crawl, next_crawl, crawl_frequency, content_hash,
		       last_error, failure_type, retry_count, retry_after, priority, modified_date
		FROM frontier
		WHERE status = ?
		ORDER BY url`,
		crawler.StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("list failed urls: %w", err)
	}
	defer rows.Close()

	var records []crawler.CrawlRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan failed url: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

// Get returns the record for rawURL, or nil when unknown.
func (s *Store) Get(ctx context.Context, rawURL string) (*crawler.CrawlRecord, error) {
	key, err := crawler.NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalize %q: %w", rawURL, err)
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT url, status, last_crawl, next_crawl, crawl_frequency, content_hash,
		       last_error, failure_type, retry_count, retry_after, priority, modified_date
		FROM frontier WHERE url = ?`, key)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return record, nil
}

// Stats implements crawler.Frontier.
func (s *Store) Stats(ctx context.Context) (crawler.FrontierStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM frontier GROUP BY status")
	if err != nil {
		return crawler.FrontierStats{}, fmt.Errorf("query frontier stats: %w", err)
	}
	defer rows.Close()

	var stats crawler.FrontierStats
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return crawler.FrontierStats{}, fmt.Errorf("scan frontier stats: %w", err)
		}
		switch crawler.Status(status) {
		case crawler.StatusPending:
			stats.Pending = count
		case crawler.StatusVisited:
			stats.Visited = count
		case crawler.StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

func (s *Store) requireRow(result sql.Result, key string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", key, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownURL, key)
	}
	return nil
}

func (s *Store) nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*crawler.CrawlRecord, error) {
	var (
		record      crawler.CrawlRecord
		status      string
		lastCrawl   sql.NullString
		nextCrawl   sql.NullString
		contentHash sql.NullString
		lastError   sql.NullString
		failureType sql.NullString
		retryAfter  sql.NullString
		modified    sql.NullString
	)
	err := row.Scan(
		&record.URL,
		&status,
		&lastCrawl,
		&nextCrawl,
		&record.CrawlFrequency,
		&contentHash,
		&lastError,
		&failureType,
		&record.RetryCount,
		&retryAfter,
		&record.Priority,
		&modified,
	)
	if err != nil {
		return nil, err
	}

	record.Status = crawler.Status(status)
	record.ContentHash = contentHash.String
	record.LastError = lastError.String
	record.FailureType = crawler.FailureType(failureType.String)
	record.LastCrawl = parseNullTime(lastCrawl)
	record.NextCrawl = parseNullTime(nextCrawl)
	record.RetryAfter = parseNullTime(retryAfter)
	record.ModifiedDate = parseNullTime(modified)
	return &record, nil
}

// sqliteLayouts covers the formats SQLite hands back: our fixed layout for
// values written by Go, and the datetime() function's default for values it
// computed (next_crawl).
var sqliteLayouts = []string{
	timeLayout,
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	for _, layout := range sqliteLayouts {
		if t, err := time.Parse(layout, v.String); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
