// Package main hosts the sitecrawler entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics and the /v1/crawls job endpoints. Start requests are
//     validated by internal/runner, persisted through the JobStore and enqueued for the worker pool.
//   - Dispatcher & queue: jobs flow through a bounded in-memory queue sized by config.Crawler.QueueDepth and are
//     fanned out to a fixed worker pool sized by config.Crawler.Workers. Cancelling a job closes its stop channel in
//     the dispatcher registry; the scheduler checks it between fetches.
//   - Crawl loop: internal/frontier runs one breadth-first crawl per job. Each URL is fetched through the Colly probe
//     fetcher (robots.txt aware) and promoted to Chromedp when the heuristic detector sees a script shell. Pages are
//     parsed with goquery, hashed, and classified into home, about, service and blog buckets.
//   - Persistence & fanout: job state and per-page rows live in memory or Postgres (pgx). Raw HTML can be archived
//     to a BlobStore (memory/local/GCS) and a crawl.finished message is published to Pub/Sub when a topic is
//     configured. Progress events are batched by the progress Hub and fanned out to the store, log and Prometheus
//     sinks.
//   - Configuration & plumbing: Viper populates config from files and CRAWLER_* env vars; zap provides structured
//     logging; Prometheus metrics are exported on /metrics; OpenTelemetry spans cover requests and jobs when
//     tracing is enabled.
//
// Quick checklist:
//   - Run the service: go run . serve --config config.yaml (PORT overrides server.port on container platforms).
//   - One-shot crawl: go run . crawl https://example.com/ --exclude '*/tag/*' --output json
//   - Persist jobs: set CRAWLER_DB_DSN; the schema is created on startup unless db.ensure_schema is false.
package main
