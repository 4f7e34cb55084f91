// Package metrics exposes Prometheus collectors for the crawl, build and search stages.
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
	crawlerPagesTotal          *prometheus.CounterVec
	crawlerBytesTotal          *prometheus.CounterVec
	crawlerActiveWorkers       prometheus.Gauge
	crawlerPolitenessWait      *prometheus.HistogramVec
	crawlerRobotsFetchTotal    *prometheus.CounterVec
	dedupDocumentsTotal        *prometheus.CounterVec
	indexDocuments             prometheus.Gauge
	indexTerms                 prometheus.Gauge
	searchRequestsTotal        *prometheus.CounterVec
	searchDurationSeconds      *prometheus.HistogramVec
	searchCacheTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	embeddingRequestsTotal     *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		crawlerPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages crawled, labeled by site and status.",
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

		crawlerActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_workers",
				Help: "Number of crawl workers currently fetching a URL.",
			},
		)

		crawlerPolitenessWait = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crawler_politeness_wait_seconds",
				Help:    "Histogram of per-domain politeness waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		crawlerRobotsFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_robots_fetch_total",
				Help: "Robots.txt fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		dedupDocumentsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dedup_documents_total",
				Help: "Documents seen by the near-duplicate detector, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		indexDocuments = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_documents",
				Help: "Number of documents in the most recently built or loaded index.",
			},
		)

		indexTerms = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Number of distinct terms in the most recently built or loaded index.",
			},
		)

		searchRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_requests_total",
				Help: "Search requests, labeled by scoring mode and status.",
			},
			[]string{"mode", "status"},
		)

		searchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_duration_seconds",
				Help:    "Histogram of search latencies, labeled by scoring mode.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"mode"},
		)

		searchCacheTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_cache_total",
				Help: "Search result cache lookups, labeled by result.",
			},
			[]string{"result"},
		)

		embeddingRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embedding_requests_total",
				Help: "Embedding collaborator calls, labeled by status.",
			},
			[]string{"status"},
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

// ObserveCrawl increments the crawler page metrics.
func ObserveCrawl(site string, status string, bytesFetched int) {
	Init()
	sanitizedSite := SanitizeSite(site)
	crawlerPagesTotal.WithLabelValues(sanitizedSite, status).Inc()
	if bytesFetched > 0 {
		crawlerBytesTotal.WithLabelValues(sanitizedSite).Add(float64(bytesFetched))
	}
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	crawlerActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	crawlerActiveWorkers.Dec()
}

// ObservePolitenessWait records how long a worker waited on a domain's crawl delay.
func ObservePolitenessWait(domain string, duration time.Duration) {
	Init()
	crawlerPolitenessWait.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsFetch counts robots.txt outcomes ("ok", "fallback").
func ObserveRobotsFetch(outcome string) {
	Init()
	crawlerRobotsFetchTotal.WithLabelValues(outcome).Inc()
}

// ObserveDedup counts detector decisions ("kept", "dropped").
func ObserveDedup(outcome string) {
	Init()
	dedupDocumentsTotal.WithLabelValues(outcome).Inc()
}

// SetIndexSize publishes the document and term counts of the active index.
func SetIndexSize(docs, terms int) {
	Init()
	indexDocuments.Set(float64(docs))
	indexTerms.Set(float64(terms))
}

// ObserveSearch records one ranking request.
func ObserveSearch(mode, status string, duration time.Duration) {
	Init()
	searchRequestsTotal.WithLabelValues(mode, status).Inc()
	searchDurationSeconds.WithLabelValues(mode).Observe(duration.Seconds())
}

// ObserveCache counts result cache lookups ("hit", "miss").
func ObserveCache(result string) {
	Init()
	searchCacheTotal.WithLabelValues(result).Inc()
}

// ObserveEmbedding counts embedding collaborator calls ("ok", "error").
func ObserveEmbedding(status string) {
	Init()
	embeddingRequestsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
