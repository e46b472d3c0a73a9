// Package api hosts the HTTP server, middleware, and REST handlers for the
// fetch service. Notable routes:
//   - GET /health for liveness/readiness, reporting browser and cache state.
//   - GET /metrics for Prometheus scraping.
//   - POST /fetch for a single-URL fetch/extract call.
//   - POST /batch for up to fetch.MaxBatchSize concurrent fetches.
//   - DELETE /cache/{hash} to invalidate one cached fingerprint.
package api
