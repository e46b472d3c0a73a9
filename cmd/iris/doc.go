// Package main hosts the fetch service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes /health, /metrics, /fetch, /batch,
//     and DELETE /cache/{hash}. Requests are decoded into model.FetchRequest
//     and handed to internal/fetch.Fetcher.
//   - Fetch pipeline: each request runs through cache lookup, robots.txt
//     policy, per-domain rate limiting, a bounded concurrency semaphore, and
//     a per-domain circuit breaker wrapping retry-with-backoff navigation
//     attempts against internal/driver's browser automation abstraction.
//   - Extraction: internal/extract/html and internal/extract/pdf turn a
//     rendered page or downloaded PDF into text, metadata, links, and
//     structured data per the response's canonical content type.
//   - Persistence: successful, cacheable results are stored in
//     internal/cache.Store, a Redis-backed cache keyed by request
//     fingerprint that degrades to a permanent miss when Redis is
//     unreachable rather than failing the request.
//   - Configuration & plumbing: Viper populates config from IRIS_-prefixed
//     env vars; zap provides structured logging; Prometheus metrics are
//     exported via the metrics middleware and /metrics handler.
//
// Operational notes:
//   - Concurrency model: a single shared semaphore bounds browser pages in
//     flight across every concurrent fetch/batch call; POST /batch fans out
//     with one goroutine per request so a slow domain never blocks others.
//   - Rate limiting/backoff: internal/ratelimit throttles per registrable
//     domain; internal/fetch retries with exponential backoff and jitter,
//     short-circuited by a per-domain circuit breaker once a domain has
//     failed repeatedly.
//   - Observability: zap logs one line per HTTP request (method, path,
//     status, duration) and each circuit breaker state change; every
//     response carries its request ID in the X-Request-ID header; Prometheus counters/histograms track fetch outcomes,
//     cache hit rate, rate-limit wait time, and circuit breaker transitions.
//   - Shutdown: the process reacts to SIGINT/SIGTERM for graceful drain of
//     in-flight HTTP requests before closing the browser driver.
//
// Quick checklist:
//   - Configure env vars: IRIS_PORT, IRIS_MAX_CONCURRENT_PAGES,
//     IRIS_REDIS_URL, IRIS_RESPECT_ROBOTS_TXT, IRIS_MAX_RETRIES.
//   - Run locally: go run ./cmd/iris (relies solely on env overrides).
package main
