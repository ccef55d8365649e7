// Package dispatcher manages worker fan-out over the job queue and the stop
// signals that let running crawls be cancelled.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// Worker consumes queue items until its context ends.
type Worker interface {
	Run(ctx context.Context)
}

// Dispatcher owns the worker pool that drains the crawl job queue.
type Dispatcher struct {
	queue   crawler.Queue
	workers []Worker
}

// New creates a Dispatcher over queue. Every worker must consume the same
// queue.
func New(queue crawler.Queue, workers []Worker) *Dispatcher {
	return &Dispatcher{queue: queue, workers: workers}
}

// Run starts the pool and blocks until every worker has returned: when ctx
// ends, or once the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var pool sync.WaitGroup
	for _, w := range d.workers {
		pool.Go(func() { w.Run(ctx) })
	}
	pool.Wait()
}

// Size is the number of workers, i.e. how many crawls can run at once.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Enqueue hands a job to the pool. It satisfies runner.Enqueuer.
func (d *Dispatcher) Enqueue(ctx context.Context, item crawler.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
