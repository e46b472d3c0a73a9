// Package metrics exposes Prometheus collectors for the fetch pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal                    *prometheus.CounterVec
	fetchDurationSeconds            *prometheus.HistogramVec
	httpRequestsTotal               *prometheus.CounterVec
	httpRequestDurationSeconds      *prometheus.HistogramVec
	cacheHitsTotal                  prometheus.Counter
	cacheMissesTotal                prometheus.Counter
	rateLimitDelaySeconds           *prometheus.HistogramVec
	robotsDeniedTotal               prometheus.Counter
	retriesTotal                    *prometheus.CounterVec
	activePages                     prometheus.Gauge
	circuitBreakerStateChangesTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iris_fetches_total",
				Help: "Total number of fetch attempts, labeled by error kind (empty for success).",
			},
			[]string{"kind"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iris_fetch_duration_seconds",
				Help:    "Histogram of end-to-end fetch durations, labeled by content type.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"content_type"},
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

		cacheHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iris_cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		)

		cacheMissesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iris_cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "iris_rate_limit_delay_seconds",
				Help:    "Histogram of rate limit wait durations, labeled by registrable domain.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		robotsDeniedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "iris_robots_denied_total",
				Help: "Total number of fetches denied by robots.txt policy.",
			},
		)

		retriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iris_retries_total",
				Help: "Total number of fetch retry attempts, labeled by error kind.",
			},
			[]string{"kind"},
		)

		activePages = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "iris_active_pages",
				Help: "Number of browser pages currently open for in-flight fetches.",
			},
		)

		circuitBreakerStateChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "iris_circuit_breaker_state_changes_total",
				Help: "Total number of per-domain circuit breaker state transitions.",
			},
			[]string{"domain", "to"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records one completed fetch, success (kind="") or terminal failure.
func ObserveFetch(kind string, contentType string, duration time.Duration) {
	fetchesTotal.WithLabelValues(kind).Inc()
	fetchDurationSeconds.WithLabelValues(contentType).Observe(duration.Seconds())
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveCacheHit increments the cache hit counter.
func ObserveCacheHit() { cacheHitsTotal.Inc() }

// ObserveCacheMiss increments the cache miss counter.
func ObserveCacheMiss() { cacheMissesTotal.Inc() }

// ObserveRateLimitDelay records the duration of a rate limit wait for domain.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	rateLimitDelaySeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveRobotsDenied increments the robots-denied counter.
func ObserveRobotsDenied() { robotsDeniedTotal.Inc() }

// ObserveRetry increments the retry counter for the given error kind.
func ObserveRetry(kind string) { retriesTotal.WithLabelValues(kind).Inc() }

// IncActivePages increments the active-pages gauge.
func IncActivePages() { activePages.Inc() }

// DecActivePages decrements the active-pages gauge.
func DecActivePages() { activePages.Dec() }

// ObserveCircuitBreakerStateChange records a per-domain breaker transition.
func ObserveCircuitBreakerStateChange(domain, to string) {
	circuitBreakerStateChangesTotal.WithLabelValues(domain, to).Inc()
}
