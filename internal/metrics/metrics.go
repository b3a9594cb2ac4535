// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerPagesTotal             *prometheus.CounterVec
	crawlerBytesTotal             *prometheus.CounterVec
	crawlerRendersTotal           *prometheus.CounterVec
	crawlerMarathonRunsTotal      *prometheus.CounterVec
	crawlerRateLimitDelaysSeconds *prometheus.HistogramVec
	assetDownloadsTotal           *prometheus.CounterVec
	assetQueueDepth               prometheus.Gauge
	httpRequestsTotal             *prometheus.CounterVec
	httpRequestDurationSeconds    *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of result pages crawled, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlerBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_bytes_total",
				Help: "Total number of bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		crawlerRendersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_renders_total",
				Help: "Total number of headless renders used to recover missing finish rows, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerMarathonRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_marathon_runs_total",
				Help: "Total number of marathon poll rounds, labeled by status.",
			},
			[]string{"status"},
		)

		crawlerRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_rate_limit_delays_seconds",
				Help:    "Histogram of per-host politeness wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		assetDownloadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asset_downloads_total",
				Help: "Total number of asset download attempts, labeled by status.",
			},
			[]string{"status"},
		)

		assetQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "asset_queue_depth",
				Help: "Number of asset downloads waiting for a worker.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
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

// ObserveCrawl increments the page crawl metrics.
func ObserveCrawl(site string, status string, bytesFetched int) {
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// ObserveRender increments the headless render counter for the given status.
func ObserveRender(status string) {
	crawlerRendersTotal.WithLabelValues(status).Inc()
}

// ObserveMarathonRun increments the marathon round counter for the given status.
func ObserveMarathonRun(status string) {
	crawlerMarathonRunsTotal.WithLabelValues(status).Inc()
}

// ObserveRateLimitDelay records the duration of a politeness wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	crawlerRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveAssetDownload increments the asset download counter for the given status.
func ObserveAssetDownload(status string) {
	assetDownloadsTotal.WithLabelValues(status).Inc()
}

// SetAssetQueueDepth records how many downloads are waiting for a worker.
func SetAssetQueueDepth(n int) {
	assetQueueDepth.Set(float64(n))
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
