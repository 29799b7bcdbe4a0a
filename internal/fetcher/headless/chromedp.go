// Package headless drives a long-lived headless Chrome session via chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
}

// Fetcher implements crawler.SessionFetcher using chromedp. One browser
// process is kept alive across fetches; Restart tears it down and relaunches
// so an unhealthy browser cannot poison the whole run.
type Fetcher struct {
	cfg Config

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	logger *zap.Logger
}

// New creates a headless fetcher and launches the first browser session.
func New(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	f := &Fetcher{cfg: cfg, logger: logger}
	if err := f.launch(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Fetcher) launch() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser process eagerly so launch failures surface here, not
	// on the first page.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("launch browser: %w", err)
	}

	f.allocCtx = allocCtx
	f.allocCancel = allocCancel
	f.browserCtx = browserCtx
	f.browserCancel = browserCancel
	return nil
}

// Restart implements crawler.SessionFetcher: tear down the browser process
// and launch a fresh one.
func (f *Fetcher) Restart(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.browserCancel()
	f.allocCancel()
	f.logger.Info("browser session torn down; relaunching")
	return f.launch()
}

// Close implements crawler.SessionFetcher.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.browserCancel()
	f.allocCancel()
	return nil
}

// Fetch navigates to the requested URL and walks the per-page state machine:
// status check, content-type check, DOM readiness, link and document
// extraction. Browser-level faults come back as *crawler.BrowserError so the
// daemon can schedule a session restart.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	browserCtx := f.browserCtx
	f.mu.Unlock()

	tabCtx, tabCancel := chromedp.NewContext(browserCtx)
	defer tabCancel()

	tabCtx, cancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	defer cancel()

	// Propagate caller cancellation (shutdown signal) into the tab.
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	start := time.Now()

	if err := chromedp.Run(tabCtx,
		f.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
	); err != nil {
		return crawler.FetchResponse{}, f.classifyRunError(ctx, "navigate", err)
	}

	status, contentType, headers, finalURL := meta.snapshot(request.URL)
	if status >= http.StatusBadRequest {
		return crawler.FetchResponse{}, &crawler.HTTPError{StatusCode: status, URL: request.URL}
	}
	if !isHTMLContentType(contentType) {
		// Non-HTML documents count as visited with zero content.
		return crawler.FetchResponse{
			URL:         finalURL,
			StatusCode:  status,
			ContentType: contentType,
			Headers:     headers,
			Duration:    time.Since(start),
		}, nil
	}

	var (
		html  string
		links []string
	)
	if err := chromedp.Run(tabCtx,
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.Evaluate(`Array.from(document.querySelectorAll('a[href]')).map(a => a.href)`, &links),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return crawler.FetchResponse{}, f.classifyRunError(ctx, "extract", err)
	}

	return crawler.FetchResponse{
		URL:         finalURL,
		StatusCode:  status,
		ContentType: contentType,
		Headers:     headers,
		HTML:        html,
		Links:       links,
		Duration:    time.Since(start),
	}, nil
}

// classifyRunError separates caller cancellation from browser faults. Every
// chromedp failure that is not our own shutdown is treated as a session
// fault: timeouts, crashed tabs and lost websockets all leave the browser in
// a state not worth trusting.
func (f *Fetcher) classifyRunError(callerCtx context.Context, op string, err error) error {
	if callerCtx.Err() != nil {
		return callerCtx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &crawler.BrowserError{Op: op, Err: fmt.Errorf("navigation timed out: %w", err)}
	}
	return &crawler.BrowserError{Op: op, Err: err}
}

func (f *Fetcher) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func isHTMLContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	return strings.HasPrefix(contentType, "text/html") ||
		strings.HasPrefix(contentType, "application/xhtml+xml")
}

type responseMeta struct {
	mu          sync.RWMutex
	status      int
	contentType string
	headers     http.Header
	url         string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) captureEvent(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range resp.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(resp.Response.Status)
	m.contentType = strings.ToLower(strings.TrimSpace(headers.Get("Content-Type")))
	m.headers = headers
	m.url = resp.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot(requestURL string) (int, string, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.status
	if status == 0 {
		status = http.StatusOK
	}
	url := m.url
	if url == "" {
		url = requestURL
	}
	return status, m.contentType, cloneHeader(m.headers), url
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
