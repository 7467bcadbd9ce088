// Package metrics exposes Prometheus collectors for the catalog crawler.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JakeFAU/catalog-crawler/internal/crawler"
)

var (
	pagesFetchedTotal          *prometheus.CounterVec
	pageBytesTotal             *prometheus.CounterVec
	fetchFailuresTotal         *prometheus.CounterVec
	recordsExtractedTotal      *prometheus.CounterVec
	productsUpsertedTotal      *prometheus.CounterVec
	jobsTotal                  *prometheus.CounterVec
	jobDurationSeconds         prometheus.Histogram
	activeWorkers              prometheus.Gauge
	rateLimitWaitSeconds       *prometheus.HistogramVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_pages_fetched_total",
				Help: "Catalog pages fetched, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		pageBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_page_bytes_total",
				Help: "Bytes of catalog HTML fetched, labeled by site.",
			},
			[]string{"site"},
		)

		fetchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_fetch_failures_total",
				Help: "Page fetch failures, labeled by failure kind.",
			},
			[]string{"kind"},
		)

		recordsExtractedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_records_extracted_total",
				Help: "Product records extracted, labeled by the strategy that produced them.",
			},
			[]string{"strategy"},
		)

		productsUpsertedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_products_upserted_total",
				Help: "Products written to the repository, labeled by added or updated.",
			},
			[]string{"result"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_jobs_total",
				Help: "Crawl jobs finished, labeled by terminal status.",
			},
			[]string{"status"},
		)

		jobDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_job_duration_seconds",
				Help:    "Wall-clock duration of crawl jobs.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		activeWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "catalog_active_workers",
				Help: "Number of workers currently running a crawl.",
			},
		)

		rateLimitWaitSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catalog_rate_limit_wait_seconds",
				Help:    "Time fetches spent waiting on the per-host rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"site"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite reduces a URL to its lowercase hostname, or "unknown".
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	return crawler.SiteName(rawURL)
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage records one page fetch outcome ("ok" or a failure kind).
func ObservePage(site, outcome string, bytesFetched int) {
	sanitized := SanitizeSite(site)
	pagesFetchedTotal.WithLabelValues(sanitized, outcome).Inc()
	if bytesFetched > 0 {
		pageBytesTotal.WithLabelValues(sanitized).Add(float64(bytesFetched))
	}
}

// ObserveFetchFailure increments the failure counter for kind.
func ObserveFetchFailure(kind string) {
	fetchFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRecords adds n records produced by strategy.
func ObserveRecords(strategy crawler.Strategy, n int) {
	if n <= 0 {
		return
	}
	recordsExtractedTotal.WithLabelValues(string(strategy)).Add(float64(n))
}

// ObserveUpsert records the outcome of one batch upsert.
func ObserveUpsert(res crawler.UpsertResult) {
	productsUpsertedTotal.WithLabelValues("added").Add(float64(res.Added))
	productsUpsertedTotal.WithLabelValues("updated").Add(float64(res.Updated))
}

// ObserveJob records a finished job.
func ObserveJob(status crawler.JobStatus, duration time.Duration) {
	jobsTotal.WithLabelValues(string(status)).Inc()
	jobDurationSeconds.Observe(duration.Seconds())
}

// ObserveRateLimitWait records how long a fetch waited for its host's token.
func ObserveRateLimitWait(site string, d time.Duration) {
	rateLimitWaitSeconds.WithLabelValues(SanitizeSite(site)).Observe(d.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	activeWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	activeWorkers.Dec()
}
