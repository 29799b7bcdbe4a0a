// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal           *prometheus.CounterVec
	crawlerFetchDurationSeconds *prometheus.HistogramVec
	crawlerChunksEmbeddedTotal  *prometheus.CounterVec
	crawlerBrowserRestartsTotal *prometheus.CounterVec
	crawlerFrontierRecords      *prometheus.GaugeVec
	crawlerSleepSeconds         prometheus.Counter

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages processed, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		crawlerFetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by site.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"site"},
		)

		crawlerChunksEmbeddedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_chunks_embedded_total",
				Help: "Total number of content chunks embedded and upserted, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerBrowserRestartsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_browser_restarts_total",
				Help: "Total browser session restarts, labeled by reason (fault or scheduled).",
			},
			[]string{"reason"},
		)

		crawlerFrontierRecords = promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_records",
				Help: "Number of frontier records by status.",
			},
			[]string{"status"},
		)

		crawlerSleepSeconds = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_sleep_seconds_total",
				Help: "Total seconds spent sleeping outside the active-hours window.",
			},
		)
	})
}

// SanitizeSite sanitizes a URL or domain to a lowercase hostname.
// It returns "unknown" if the input is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records the outcome of one processed page. Outcome is one of
// visited, failed_temporary, failed_permanent, skipped_unchanged.
func ObservePage(site, outcome string, fetchDuration time.Duration) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, outcome).Inc()
	if fetchDuration > 0 {
		crawlerFetchDurationSeconds.WithLabelValues(sanitizedSite).Observe(fetchDuration.Seconds())
	}
}

// ObserveChunks records embedded chunk counts for a site.
func ObserveChunks(site string, count int) {
	if count > 0 {
		crawlerChunksEmbeddedTotal.WithLabelValues(SanitizeSite(site)).Add(float64(count))
	}
}

// ObserveBrowserRestart increments the restart counter for the given reason.
func ObserveBrowserRestart(reason string) {
	crawlerBrowserRestartsTotal.WithLabelValues(reason).Inc()
}

// SetFrontierRecords publishes the current frontier size for one status.
func SetFrontierRecords(status string, count int) {
	crawlerFrontierRecords.WithLabelValues(status).Set(float64(count))
}

// ObserveSleep accumulates time spent waiting for the active-hours window.
func ObserveSleep(d time.Duration) {
	if d > 0 {
		crawlerSleepSeconds.Add(d.Seconds())
	}
}
