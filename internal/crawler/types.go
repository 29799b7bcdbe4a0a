// Package crawler defines core types shared across subsystems.
package crawler

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Status represents the lifecycle state of a frontier record.
type Status string

// Frontier record states persisted in the crawl database.
const (
	StatusPending Status = "pending"
	StatusVisited Status = "visited"
	StatusFailed  Status = "failed"
)

// FailureType tags the most recent failure of a URL.
type FailureType string

// Failure classifications. FailureNone is stored as NULL.
const (
	FailureNone      FailureType = ""
	FailureTemporary FailureType = "temporary"
	FailurePermanent FailureType = "permanent"
)

// CrawlRecord is one row of the frontier, keyed by normalized URL.
type CrawlRecord struct {
	URL            string
	Status         Status
	LastCrawl      *time.Time
	NextCrawl      *time.Time
	CrawlFrequency int // recrawl interval in days
	ContentHash    string
	LastError      string
	FailureType    FailureType
	RetryCount     int
	RetryAfter     *time.Time
	Priority       int
	ModifiedDate   *time.Time
}

// FrontierStats summarizes record counts by status.
type FrontierStats struct {
	Pending int
	Visited int
	Failed  int
}

// Total returns the number of known URLs.
func (s FrontierStats) Total() int {
	return s.Pending + s.Visited + s.Failed
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	HTML        string
	Links       []string
	Duration    time.Duration
}

// IsHTML reports whether the response carries an HTML document.
// An empty content type is treated as HTML so servers that omit the
// header are still processed.
func (r FetchResponse) IsHTML() bool {
	if r.ContentType == "" {
		return true
	}
	return strings.HasPrefix(r.ContentType, "text/html") ||
		strings.HasPrefix(r.ContentType, "application/xhtml+xml")
}

// HTTPError marks a fetch attempt that completed with a failing status code.
type HTTPError struct {
	StatusCode int
	URL        string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d for %s", e.StatusCode, e.URL)
}

// BrowserError marks a browser-level fault (crashed tab, lost connection,
// navigation timeout). The session manager restarts the browser before the
// next attempt when it sees one.
type BrowserError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *BrowserError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *BrowserError) Unwrap() error {
	return e.Err
}

// RobotsDeniedError marks a URL disallowed by robots.txt.
type RobotsDeniedError struct {
	URL string
}

// Error implements the error interface.
func (e *RobotsDeniedError) Error() string {
	return fmt.Sprintf("robots.txt disallows %s", e.URL)
}

// PageContent is the cleaned output of a successful fetch, ready for the
// retrieval pipeline.
type PageContent struct {
	URL         string
	Title       string
	Text        string
	ContentType string
	FetchedAt   time.Time
}
