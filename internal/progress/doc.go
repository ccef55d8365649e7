// Package progress carries crawl step events from workers to pluggable sinks.
// Workers emit through a non-blocking Hub that batches on a background
// goroutine; sinks persist job progress, export Prometheus metrics, or log.
package progress
