// Package worker runs queued crawl jobs through the scheduler and owns every
// job status transition after pending.
package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/frontier"
	"github.com/JakeFAU/site-discovery-crawler/internal/metrics"
	"github.com/JakeFAU/site-discovery-crawler/internal/progress"
)

// FinishedEventType tags completion messages on the publisher topic.
const FinishedEventType = "crawl.finished"

const tracerName = "github.com/JakeFAU/site-discovery-crawler/internal/worker"

// Crawler runs one crawl. *frontier.Scheduler satisfies it.
type Crawler interface {
	Run(ctx context.Context, req frontier.Request, stop <-chan struct{}, reporter frontier.Reporter) (crawler.Result, error)
}

// StopRegistry hands out per-job stop channels. *dispatcher.Registry
// satisfies it.
type StopRegistry interface {
	Register(jobID string) <-chan struct{}
	Cancelled(jobID string) bool
	Release(jobID string)
}

// Forgetter drops per-job state held by fetch policies.
type Forgetter interface {
	Forget(jobID string)
}

// Config controls Worker behavior.
type Config struct {
	// Topic receives a crawl.finished event per job when non-empty.
	Topic string
	// ArchivePages writes every crawled page body to the blob store.
	ArchivePages bool
	BlobPrefix   string
	ContentType  string
	// FinalizeTimeout bounds the terminal writes, which outlive ctx.
	FinalizeTimeout time.Duration
}

// FinishedEvent is published once per job when it reaches a terminal state.
type FinishedEvent struct {
	Type         string    `json:"type"`
	JobID        string    `json:"job_id"`
	Status       string    `json:"status"`
	Homepage     string    `json:"homepage"`
	Pages        int       `json:"pages"`
	ReachedLimit bool      `json:"reached_limit"`
	Error        string    `json:"error,omitempty"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Worker consumes queue items and executes crawls one at a time.
type Worker struct {
	queue     crawler.Queue
	jobs      crawler.JobStore
	crawl     Crawler
	registry  StopRegistry
	emitter   progress.Emitter
	blobs     crawler.BlobStore
	pages     crawler.PageIndex
	publisher crawler.Publisher
	forget    Forgetter
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. emitter, blobs, pages, publisher and forget may be
// nil; a nil clock uses the wall clock.
func New(
	queue crawler.Queue,
	jobs crawler.JobStore,
	crawl Crawler,
	registry StopRegistry,
	emitter progress.Emitter,
	blobs crawler.BlobStore,
	pages crawler.PageIndex,
	publisher crawler.Publisher,
	forget Forgetter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 10 * time.Second
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		queue:     queue,
		jobs:      jobs,
		crawl:     crawl,
		registry:  registry,
		emitter:   emitter,
		blobs:     blobs,
		pages:     pages,
		publisher: publisher,
		forget:    forget,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until the context finishes or the queue
// is closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, crawler.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job", zap.String("job_id", item.JobID))
		w.ProcessJob(ctx, item)
	}
}

// ProcessJob runs one job to a terminal state.
func (w *Worker) ProcessJob(ctx context.Context, item crawler.QueueItem) {
	logger := w.logger.With(zap.String("job_id", item.JobID))
	stop := w.registry.Register(item.JobID)
	defer w.registry.Release(item.JobID)

	if w.registry.Cancelled(item.JobID) {
		err := w.jobs.UpdateStatus(ctx, item.JobID, crawler.JobStatusCancelled, "")
		if err != nil && !errors.Is(err, crawler.ErrInvalidTransition) {
			logger.Error("cancel pending job failed", zap.Error(err))
		}
		logger.Info("job cancelled before start")
		return
	}
	if err := w.jobs.UpdateStatus(ctx, item.JobID, crawler.JobStatusRunning, ""); err != nil {
		if errors.Is(err, crawler.ErrInvalidTransition) {
			logger.Info("job no longer pending, skipping", zap.Error(err))
			return
		}
		logger.Error("update job status failed", zap.Error(err))
		return
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "crawl.job", trace.WithAttributes(
		attribute.String("job_id", item.JobID),
		attribute.String("homepage", item.Params.HomepageURL),
	))
	defer span.End()

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	started := w.clock.Now()
	rep := &jobReporter{
		w:      w,
		ctx:    ctx,
		jobID:  item.JobID,
		site:   metrics.SanitizeSite(item.Params.HomepageURL),
		logger: logger,
	}
	w.emit(progress.Event{JobID: item.JobID, Stage: progress.StageJobStart, Site: rep.site, URL: item.Params.HomepageURL})
	logger.Info("crawl started", zap.String("url", item.Params.HomepageURL), zap.Int("max_pages", item.Params.MaxPages))

	result, err := w.crawl.Run(ctx, frontier.Request{
		JobID:      item.JobID,
		Homepage:   item.Params.HomepageURL,
		Exclusions: item.Params.ExclusionPatterns,
		MaxPages:   item.Params.MaxPages,
	}, stop, rep)

	status, errText := w.outcome(ctx, item.JobID, err)
	span.SetAttributes(attribute.String("status", string(status)), attribute.Int("pages", result.TotalPagesCrawled))
	if status == crawler.JobStatusFailed {
		span.SetStatus(codes.Error, errText)
	}
	w.finish(ctx, item, status, errText, result, rep.last, w.clock.Now().Sub(started), logger)
}

func (w *Worker) outcome(ctx context.Context, jobID string, err error) (crawler.JobStatus, string) {
	switch {
	case err == nil && w.registry.Cancelled(jobID):
		return crawler.JobStatusCancelled, ""
	case err == nil:
		return crawler.JobStatusCompleted, ""
	case ctx.Err() != nil && !errors.Is(err, frontier.ErrHomepageUnfetchable):
		return crawler.JobStatusCancelled, "interrupted by shutdown"
	default:
		return crawler.JobStatusFailed, err.Error()
	}
}

func (w *Worker) finish(
	ctx context.Context,
	item crawler.QueueItem,
	status crawler.JobStatus,
	errText string,
	result crawler.Result,
	last crawler.Progress,
	runtime time.Duration,
	logger *zap.Logger,
) {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.FinalizeTimeout)
	defer cancel()

	final := crawler.Progress{PagesCrawled: result.TotalPagesCrawled, Queued: last.Queued}
	if err := w.jobs.UpdateProgress(fctx, item.JobID, final); err != nil {
		logger.Error("final progress update failed", zap.Error(err))
	}
	if status != crawler.JobStatusFailed {
		if err := w.jobs.SaveResult(fctx, item.JobID, result); err != nil {
			logger.Error("save result failed", zap.Error(err))
			status, errText = crawler.JobStatusFailed, fmt.Sprintf("save result: %v", err)
		}
	}
	if err := w.jobs.UpdateStatus(fctx, item.JobID, status, errText); err != nil {
		if errors.Is(err, crawler.ErrInvalidTransition) {
			logger.Info("terminal status already recorded", zap.Error(err))
		} else {
			logger.Error("final job status update failed", zap.Error(err))
		}
	}
	metrics.ObserveJob(string(status))

	w.emit(progress.Event{
		JobID:    item.JobID,
		Stage:    terminalStage(status),
		Site:     metrics.SanitizeSite(item.Params.HomepageURL),
		URL:      item.Params.HomepageURL,
		Progress: final,
		Dur:      runtime,
		Note:     errText,
	})
	logger.Info("crawl finished",
		zap.String("status", string(status)),
		zap.Int("pages_crawled", result.TotalPagesCrawled),
		zap.Bool("reached_limit", result.ReachedLimit),
		zap.Duration("runtime", runtime),
		zap.String("error", errText))

	w.publishFinished(fctx, item, status, errText, result, logger)
	if w.forget != nil {
		w.forget.Forget(item.JobID)
	}
}

func (w *Worker) publishFinished(
	ctx context.Context,
	item crawler.QueueItem,
	status crawler.JobStatus,
	errText string,
	result crawler.Result,
	logger *zap.Logger,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	evt := FinishedEvent{
		Type:         FinishedEventType,
		JobID:        item.JobID,
		Status:       string(status),
		Homepage:     item.Params.HomepageURL,
		Pages:        result.TotalPagesCrawled,
		ReachedLimit: result.ReachedLimit,
		Error:        errText,
		FinishedAt:   w.clock.Now(),
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, evt)
	if err != nil {
		logger.Warn("publish finished event failed", zap.String("topic", w.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("finished event published", zap.String("topic", w.cfg.Topic), zap.String("message_id", id))
}

func (w *Worker) buildBlobPath(jobID, hash string) string {
	prefix := strings.Trim(w.cfg.BlobPrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", jobID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, jobID, hash)
}

func (w *Worker) emit(evt progress.Event) {
	if w.emitter == nil {
		return
	}
	evt.TS = w.clock.Now()
	w.emitter.Emit(evt)
}

func terminalStage(status crawler.JobStatus) progress.Stage {
	switch status {
	case crawler.JobStatusCompleted:
		return progress.StageJobDone
	case crawler.JobStatusCancelled:
		return progress.StageJobCancelled
	default:
		return progress.StageJobError
	}
}

// jobReporter turns scheduler callbacks into progress events, archive writes
// and page index rows.
type jobReporter struct {
	w      *Worker
	ctx    context.Context
	jobID  string
	site   string
	logger *zap.Logger
	last   crawler.Progress
}

func (r *jobReporter) OnProgress(p crawler.Progress) {
	r.last = p
	r.w.emit(progress.Event{JobID: r.jobID, Stage: progress.StageJobProgress, Site: r.site, URL: p.CurrentURL, Progress: p})
}

func (r *jobReporter) OnPage(page crawler.CrawledPage, bucket frontier.Bucket) {
	uri := r.archive(page)
	if r.w.pages != nil {
		err := r.w.pages.RecordPage(r.ctx, crawler.PageRecord{
			JobID:           r.jobID,
			URL:             page.URL,
			FinalURL:        page.FinalURL,
			CanonicalURL:    page.CanonicalURL,
			Title:           page.Title,
			MetaDescription: page.MetaDescription,
			ContentHash:     page.ContentHash,
			Bucket:          string(bucket),
			HTTPStatus:      page.HTTPStatus,
			BlobURI:         uri,
			FetchedAt:       page.FetchedAt,
		})
		if err != nil {
			r.logger.Warn("record page failed", zap.String("url", page.URL), zap.Error(err))
		}
	}
	r.w.emit(progress.Event{
		JobID:       r.jobID,
		Stage:       progress.StagePageDone,
		Site:        r.site,
		URL:         page.URL,
		Bucket:      string(bucket),
		StatusClass: progress.ClassifyStatus(page.HTTPStatus),
		Bytes:       int64(len(page.Body)),
	})
}

func (r *jobReporter) OnFailure(fe *crawler.FetchError) {
	evt := progress.Event{
		JobID: r.jobID,
		Stage: progress.StagePageError,
		Site:  r.site,
		URL:   fe.URL,
		Kind:  fe.Kind,
		Note:  fe.Detail,
	}
	if fe.StatusCode != 0 {
		evt.StatusClass = progress.ClassifyStatus(fe.StatusCode)
	}
	r.w.emit(evt)
}

func (r *jobReporter) archive(page crawler.CrawledPage) string {
	if !r.w.cfg.ArchivePages || r.w.blobs == nil || page.ContentHash == "" {
		return ""
	}
	path := r.w.buildBlobPath(r.jobID, page.ContentHash)
	uri, err := r.w.blobs.PutObject(r.ctx, path, r.w.cfg.ContentType, bytes.NewReader(page.Body))
	if err != nil {
		r.logger.Warn("archive page failed", zap.String("url", page.URL), zap.Error(err))
		return ""
	}
	return uri
}
