// Package daemon runs the long-lived crawl loop: window gating, frontier
// draining, fetching, content processing and link discovery.
package daemon

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sitecrawl/internal/crawler"
	"github.com/JakeFAU/sitecrawl/internal/extract"
	"github.com/JakeFAU/sitecrawl/internal/metrics"
	"github.com/JakeFAU/sitecrawl/internal/pipeline"
	"github.com/JakeFAU/sitecrawl/internal/schedule"
)

// ErrShutdownRequested reports that the loop stopped because the caller's
// context was canceled, typically by SIGINT/SIGTERM. The frontier is already
// consistent at that point; callers map it to a distinct exit code.
var ErrShutdownRequested = errors.New("shutdown requested")

// maxFetchAttempts bounds how often one URL is retried within a single loop
// iteration after a browser fault. Further failures go back through the
// frontier's backoff machinery instead.
const maxFetchAttempts = 2

// Config controls the crawl loop.
type Config struct {
	Domain       string
	UserAgent    string
	RestartEvery int           // pages between unconditional session restarts
	IdleWait     time.Duration // pause when the frontier has nothing due
	Window       schedule.Window
	SleepSlice   time.Duration
	Limiter      RateLimiter // optional politeness pacing before each fetch
}

// ContentProcessor is the slice of the retrieval pipeline the daemon needs.
type ContentProcessor interface {
	Process(ctx context.Context, page crawler.PageContent) (pipeline.Result, error)
}

// RateLimiter paces fetches against the target site.
type RateLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Daemon owns one site's crawl loop.
type Daemon struct {
	frontier   crawler.Frontier
	fetcher    crawler.Fetcher
	robots     crawler.RobotsPolicy
	processor  ContentProcessor
	filter     *crawler.LinkFilter
	classifier *crawler.Classifier
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Daemon.
func New(
	frontier crawler.Frontier,
	fetcher crawler.Fetcher,
	robots crawler.RobotsPolicy,
	processor ContentProcessor,
	filter *crawler.LinkFilter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Daemon {
	if cfg.RestartEvery <= 0 {
		cfg.RestartEvery = 50
	}
	if cfg.IdleWait <= 0 {
		cfg.IdleWait = time.Minute
	}
	metrics.Init()
	return &Daemon{
		frontier:   frontier,
		fetcher:    fetcher,
		robots:     robots,
		processor:  processor,
		filter:     filter,
		classifier: crawler.DefaultClassifier(),
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// batchStats tracks throughput between session restarts.
type batchStats struct {
	started time.Time
	pages   int
	visited int
	failed  int
}

func (b *batchStats) successRate() float64 {
	if b.pages == 0 {
		return 0
	}
	return float64(b.visited) / float64(b.pages)
}

// Run drains the frontier until the context is canceled. It returns
// ErrShutdownRequested on cancellation and nil never; all other errors are
// absorbed into the frontier's failure records.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("crawl loop starting",
		zap.String("domain", d.cfg.Domain),
		zap.String("active_hours", d.cfg.Window.String()),
		zap.Int("restart_every", d.cfg.RestartEvery),
	)

	batch := batchStats{started: d.clock.Now()}

	for {
		if err := d.waitForWindow(ctx); err != nil {
			return d.shutdown(&batch)
		}

		record, err := d.frontier.NextDue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return d.shutdown(&batch)
			}
			d.logger.Error("frontier next-due failed", zap.Error(err))
			if err := schedule.Sleep(ctx, d.cfg.IdleWait, d.cfg.SleepSlice); err != nil {
				return d.shutdown(&batch)
			}
			continue
		}
		if record == nil {
			d.logger.Debug("frontier idle; nothing due", zap.Duration("wait", d.cfg.IdleWait))
			if err := schedule.Sleep(ctx, d.cfg.IdleWait, d.cfg.SleepSlice); err != nil {
				return d.shutdown(&batch)
			}
			continue
		}

		visited := d.processRecord(ctx, record)
		if ctx.Err() != nil {
			return d.shutdown(&batch)
		}

		batch.pages++
		if visited {
			batch.visited++
		} else {
			batch.failed++
		}

		if batch.pages >= d.cfg.RestartEvery {
			d.restartSession(ctx, &batch, "scheduled")
		}
	}
}

// waitForWindow blocks until the active-hours window is open.
func (d *Daemon) waitForWindow(ctx context.Context) error {
	for {
		active, wait := d.cfg.Window.Status(d.clock.Now())
		if active {
			return nil
		}
		d.logger.Info("outside active hours; sleeping",
			zap.String("window", d.cfg.Window.String()),
			zap.Duration("until_open", wait),
		)
		metrics.ObserveSleep(wait)
		if err := schedule.Sleep(ctx, wait, d.cfg.SleepSlice); err != nil {
			return err
		}
	}
}

// processRecord runs one URL through robots, fetch, pipeline and link
// discovery. It reports whether the URL ended up visited. Browser faults
// trigger one session restart and an immediate head-of-line retry before the
// URL is handed back to the frontier as a temporary failure.
func (d *Daemon) processRecord(ctx context.Context, record *crawler.CrawlRecord) bool {
	logger := d.logger.With(zap.String("url", record.URL))

	if !d.robots.Allowed(ctx, record.URL) {
		d.markFailed(ctx, logger, record.URL, &crawler.RobotsDeniedError{URL: record.URL}, 0)
		return false
	}

	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Wait(ctx, record.URL); err != nil {
			if ctx.Err() != nil {
				return false
			}
			// Pacing failures (burst misconfiguration) should not fail the
			// page; the fetch proceeds unpaced.
			logger.Warn("rate limiter wait failed; fetching unpaced", zap.Error(err))
		}
	}

	var (
		resp crawler.FetchResponse
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = d.fetcher.Fetch(ctx, crawler.FetchRequest{URL: record.URL})
		if err == nil {
			break
		}
		if ctx.Err() != nil {
			return false
		}

		var browserErr *crawler.BrowserError
		if errors.As(err, &browserErr) && attempt < maxFetchAttempts {
			logger.Warn("browser fault; restarting session and retrying",
				zap.String("op", browserErr.Op),
				zap.Error(browserErr.Err),
			)
			d.restartFetcher(ctx, "fault")
			continue
		}

		d.markFailed(ctx, logger, record.URL, err, resp.Duration)
		return false
	}

	page := crawler.PageContent{
		URL:         record.URL,
		ContentType: resp.ContentType,
		FetchedAt:   d.clock.Now(),
	}
	if resp.IsHTML() && resp.HTML != "" {
		page.Title = extract.Title(resp.HTML)
		text, err := extract.Text(resp.HTML, resp.URL)
		if err != nil {
			logger.Warn("text extraction failed; storing page without content", zap.Error(err))
		} else {
			page.Text = text
		}
	}

	result, err := d.processor.Process(ctx, page)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		d.markFailed(ctx, logger, record.URL, err, resp.Duration)
		return false
	}

	if err := d.frontier.MarkVisited(ctx, record.URL, result.ContentHash); err != nil {
		logger.Error("mark visited failed", zap.Error(err))
		return false
	}

	outcome := "visited"
	if page.Text != "" && !result.Processed {
		outcome = "skipped_unchanged"
	}
	metrics.ObservePage(d.cfg.Domain, outcome, resp.Duration)
	metrics.ObserveChunks(d.cfg.Domain, result.Chunks)
	logger.Info("page crawled",
		zap.Int("status", resp.StatusCode),
		zap.Int("chunks", result.Chunks),
		zap.Bool("content_changed", result.Processed),
		zap.Duration("fetch_duration", resp.Duration),
	)

	d.discoverLinks(ctx, logger, resp.Links)
	return true
}

func (d *Daemon) markFailed(
	ctx context.Context,
	logger *zap.Logger,
	url string,
	cause error,
	fetchDuration time.Duration,
) {
	failureType := d.classifier.Classify(cause)
	if err := d.frontier.MarkFailed(ctx, url, cause); err != nil {
		logger.Error("mark failed errored", zap.Error(err), zap.NamedError("cause", cause))
		return
	}
	metrics.ObservePage(d.cfg.Domain, "failed_"+string(failureType), fetchDuration)
	logger.Warn("page failed",
		zap.String("failure_type", string(failureType)),
		zap.Error(cause),
	)
}

// discoverLinks admits filtered same-domain links to the frontier. Known URLs
// are no-ops at the store level, so re-discovery is cheap.
func (d *Daemon) discoverLinks(ctx context.Context, logger *zap.Logger, links []string) {
	added := 0
	for _, link := range links {
		if !d.filter.Valid(link) {
			continue
		}
		if err := d.frontier.Add(ctx, link); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("frontier add failed", zap.String("link", link), zap.Error(err))
			continue
		}
		added++
	}
	if added > 0 {
		logger.Debug("links discovered", zap.Int("candidates", len(links)), zap.Int("admitted", added))
	}
}

// restartSession closes out the current batch and relaunches the browser.
func (d *Daemon) restartSession(ctx context.Context, batch *batchStats, reason string) {
	elapsed := d.clock.Now().Sub(batch.started)
	pagesPerMinute := 0.0
	if elapsed > 0 {
		pagesPerMinute = float64(batch.pages) / elapsed.Minutes()
	}
	d.logger.Info("session checkpoint",
		zap.String("reason", reason),
		zap.Int("pages", batch.pages),
		zap.Int("visited", batch.visited),
		zap.Int("failed", batch.failed),
		zap.Duration("elapsed", elapsed),
		zap.Float64("pages_per_minute", pagesPerMinute),
		zap.Float64("success_rate", batch.successRate()),
	)
	d.publishFrontierStats(ctx)
	d.restartFetcher(ctx, reason)
	*batch = batchStats{started: d.clock.Now()}
}

func (d *Daemon) restartFetcher(ctx context.Context, reason string) {
	session, ok := d.fetcher.(crawler.SessionFetcher)
	if !ok {
		return
	}
	metrics.ObserveBrowserRestart(reason)
	if err := session.Restart(ctx); err != nil {
		d.logger.Error("session restart failed", zap.Error(err))
	}
}

func (d *Daemon) publishFrontierStats(ctx context.Context) {
	stats, err := d.frontier.Stats(ctx)
	if err != nil {
		d.logger.Warn("frontier stats failed", zap.Error(err))
		return
	}
	metrics.SetFrontierRecords("pending", stats.Pending)
	metrics.SetFrontierRecords("visited", stats.Visited)
	metrics.SetFrontierRecords("failed", stats.Failed)
}

// shutdown logs the final checkpoint and maps cancellation to the sentinel.
// Frontier mutations are transactional per page, so there is nothing to
// flush; the next run resumes from the database as-is.
func (d *Daemon) shutdown(batch *batchStats) error {
	d.logger.Info("shutdown requested; frontier checkpoint is durable",
		zap.Int("pages_this_batch", batch.pages),
		zap.Int("visited", batch.visited),
		zap.Int("failed", batch.failed),
	)
	return ErrShutdownRequested
}
