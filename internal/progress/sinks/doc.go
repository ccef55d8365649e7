// Package sinks implements progress consumers: job-store persistence of the
// latest frontier snapshot, Prometheus crawl metrics, and structured logging.
package sinks
