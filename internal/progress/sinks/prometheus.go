package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
)

// PrometheusSink exports crawl progress via Prometheus: job lifecycle counts
// and runtimes, plus per-bucket and per-failure-kind page counts.
type PrometheusSink struct {
	jobsStarted  prometheus.Counter
	jobsFinished *prometheus.CounterVec
	jobsRunning  prometheus.Gauge
	jobRuntime   *prometheus.HistogramVec
	jobPages     prometheus.Histogram

	pagesClassified *prometheus.CounterVec
	pageFailures    *prometheus.CounterVec
	pageStatus      *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_jobs_started_total",
			Help: "Total crawl jobs that have started.",
		}),
		jobsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_jobs_finished_total",
			Help: "Total crawl jobs finished partitioned by outcome.",
		}, []string{"outcome"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_jobs_running",
			Help: "Current number of running crawl jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_job_runtime_seconds",
			Help:    "Wall time per finished crawl job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"outcome"}),
		jobPages: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "crawler_job_pages",
			Help:    "Pages crawled per finished job.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250},
		}),
		pagesClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_pages_classified_total",
			Help: "Crawled pages partitioned by classification bucket.",
		}, []string{"bucket"}),
		pageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_page_failures_total",
			Help: "Pages that could not be crawled partitioned by failure kind.",
		}, []string{"kind"}),
		pageStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_page_status_total",
			Help: "Crawled pages partitioned by site and status class.",
		}, []string{"site", "status_class"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsFinished,
		s.jobsRunning,
		s.jobRuntime,
		s.jobPages,
		s.pagesClassified,
		s.pageFailures,
		s.pageStatus,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			if s.tracker.start(evt.JobID) {
				s.jobsRunning.Inc()
			}
		case progress.StageJobDone, progress.StageJobCancelled, progress.StageJobError:
			s.finishJob(evt)
		case progress.StagePageDone:
			s.pagesClassified.WithLabelValues(labelOr(evt.Bucket, "none")).Inc()
			s.pageStatus.WithLabelValues(labelOr(evt.Site, "unknown"), string(evt.StatusClass)).Inc()
		case progress.StagePageError:
			s.pageFailures.WithLabelValues(string(evt.Kind)).Inc()
		}
	}
	return nil
}

func (s *PrometheusSink) finishJob(evt progress.Event) {
	outcome := outcomeLabel(evt.Stage)
	s.jobsFinished.WithLabelValues(outcome).Inc()
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(outcome).Observe(evt.Dur.Seconds())
	}
	s.jobPages.Observe(float64(evt.Progress.PagesCrawled))
	if s.tracker.complete(evt.JobID) {
		s.jobsRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func outcomeLabel(stage progress.Stage) string {
	switch stage {
	case progress.StageJobDone:
		return "completed"
	case progress.StageJobCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

func labelOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[string]struct{})}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
