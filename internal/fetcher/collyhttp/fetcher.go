// Package collyhttp implements a plain-HTTP Fetcher using colly, for sites
// that render server-side and do not need a browser.
package collyhttp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
	"github.com/JakeFAU/sitecrawl/internal/extract"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements crawler.Fetcher with a one-shot colly collector per
// request. Robots enforcement happens at the daemon level, so the collector
// itself ignores robots.txt.
type Fetcher struct {
	cfg  Config
	base *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.SetRequestTimeout(cfg.Timeout)
	return &Fetcher{cfg: cfg, base: c}
}

// Fetch executes a single HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return crawler.FetchResponse{}, err
	}

	var (
		result   crawler.FetchResponse
		fetchErr error
	)
	start := time.Now()

	collector := f.base.Clone()
	collector.SetRequestTimeout(f.cfg.Timeout)

	collector.OnRequest(func(r *colly.Request) {
		for key, values := range request.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	collector.OnResponse(func(r *colly.Response) {
		contentType := strings.ToLower(strings.TrimSpace(r.Headers.Get("Content-Type")))
		result = crawler.FetchResponse{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: contentType,
			Headers:     http.Header(*r.Headers),
			Duration:    time.Since(start),
		}
		if result.IsHTML() {
			result.HTML = string(r.Body)
			result.Links = extract.Links(result.HTML, result.URL)
		}
	})

	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode >= http.StatusBadRequest {
			fetchErr = &crawler.HTTPError{StatusCode: r.StatusCode, URL: request.URL}
			return
		}
		fetchErr = fmt.Errorf("fetch %s: %w", request.URL, err)
	})

	if err := collector.Visit(request.URL); err != nil {
		if fetchErr != nil {
			return crawler.FetchResponse{}, fetchErr
		}
		return crawler.FetchResponse{}, fmt.Errorf("visit %s: %w", request.URL, err)
	}
	collector.Wait()

	if fetchErr != nil {
		return crawler.FetchResponse{}, fetchErr
	}
	return result, nil
}
