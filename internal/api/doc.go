// Package api hosts the HTTP server, middleware, and REST handlers for crawl
// jobs. Notable routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/crawls to submit a crawl, GET /v1/crawls to list jobs.
//   - GET /v1/crawls/{id}/status, /result and POST /v1/crawls/{id}/cancel for
//     the job lifecycle.
//   - GET /v1/crawls/{id} and /v1/crawls/{id}/pages for job detail and the
//     archived page index via the ProgressRepository interface.
package api
