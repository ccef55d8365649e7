// Package crawler holds the domain model of the site discovery crawler: job
// lifecycle, crawled pages, classification buckets, fetch error taxonomy, and
// the interfaces the runner, scheduler, and storage layers are wired through.
package crawler
