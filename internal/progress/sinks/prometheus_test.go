package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart},
		{JobID: "job-1", TS: now, Stage: progress.StagePageDone, Site: "example.com",
			URL: "https://example.com/", Bucket: "home", StatusClass: progress.Status2xx},
		{JobID: "job-1", TS: now, Stage: progress.StagePageDone, Site: "example.com",
			URL: "https://example.com/contact", StatusClass: progress.Status2xx},
		{JobID: "job-1", TS: now, Stage: progress.StagePageError, URL: "https://example.com/x",
			Kind: crawler.FetchErrorHTTP},
		{JobID: "job-1", TS: now, Stage: progress.StageJobDone, Dur: 15 * time.Second,
			Progress: crawler.Progress{PagesCrawled: 2}},
		{JobID: "job-2", TS: now, Stage: progress.StageJobStart},
		{JobID: "job-2", TS: now, Stage: progress.StageJobCancelled},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("completed")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("cancelled")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("failed")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesClassified.WithLabelValues("home")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pagesClassified.WithLabelValues("none")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.pageStatus.WithLabelValues("example.com", "2xx")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.pageFailures.WithLabelValues("http")))
	require.Equal(t, 1, testutil.CollectAndCount(sink.jobRuntime, "crawler_job_runtime_seconds"))
}

func TestPrometheusSinkRunningGauge(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	start := progress.Event{JobID: "job", TS: time.Now(), Stage: progress.StageJobStart}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{start, start}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))

	done := progress.Event{JobID: "job", TS: time.Now(), Stage: progress.StageJobError}
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{done, done}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.jobsFinished.WithLabelValues("failed")))
}

func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
