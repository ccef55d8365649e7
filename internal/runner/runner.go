// Package runner is the job-level entry point for crawls: it validates and
// persists requests, enqueues them for workers, and answers status, result and
// cancel queries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/frontier"
	"github.com/JakeFAU/site-discovery-crawler/internal/urlnorm"
)

// ErrInvalidRequest marks a start request rejected before any job exists.
var ErrInvalidRequest = errors.New("invalid crawl request")

// Enqueuer hands a job to the worker pool. *dispatcher.Dispatcher satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, item crawler.QueueItem) error
}

// Canceller closes a job's stop signal. *dispatcher.Registry satisfies it.
// Cancel may create the signal ahead of the worker; CancelIfRegistered never
// does.
type Canceller interface {
	Cancel(jobID string)
	CancelIfRegistered(jobID string) bool
}

// Config holds request defaults and bounds.
type Config struct {
	MaxPagesDefault  int
	MaxPagesLimit    int
	MaxExclusions    int
	EnqueueTimeout   time.Duration
	DefaultListLimit int
	MaxListLimit     int
}

// StartRequest is the client's crawl request.
type StartRequest struct {
	HomepageURL       string
	ExclusionPatterns []string
	// MaxPages falls back to Config.MaxPagesDefault when zero.
	MaxPages int
}

// Status is the pollable view of a job.
type Status struct {
	JobID    string
	Status   crawler.JobStatus
	Progress crawler.Progress
	Error    string
}

// Runner coordinates job creation and lifecycle queries.
type Runner struct {
	jobs   crawler.JobStore
	queue  Enqueuer
	cancel Canceller
	ids    crawler.IDGenerator
	clock  crawler.Clock
	cfg    Config
	logger *zap.Logger
}

// New constructs a Runner. A nil clock uses the wall clock.
func New(
	jobs crawler.JobStore,
	queue Enqueuer,
	cancel Canceller,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.MaxPagesDefault <= 0 {
		cfg.MaxPagesDefault = frontier.DefaultMaxPages
	}
	if cfg.MaxPagesLimit <= 0 {
		cfg.MaxPagesLimit = 500
	}
	if cfg.MaxExclusions <= 0 {
		cfg.MaxExclusions = 100
	}
	if cfg.EnqueueTimeout <= 0 {
		cfg.EnqueueTimeout = 5 * time.Second
	}
	if cfg.DefaultListLimit <= 0 {
		cfg.DefaultListLimit = 50
	}
	if cfg.MaxListLimit <= 0 {
		cfg.MaxListLimit = 500
	}
	return &Runner{
		jobs:   jobs,
		queue:  queue,
		cancel: cancel,
		ids:    ids,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// Start persists a job and enqueues it. A homepage that is not an absolute
// http(s) URL, or a pattern that does not compile, is a configuration error:
// the job is stored directly as failed and its ID is still returned.
func (r *Runner) Start(ctx context.Context, req StartRequest) (string, error) {
	params, err := r.parameters(req)
	if err != nil {
		return "", err
	}
	jobID, err := r.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := r.clock.Now()
	job := crawler.Job{
		ID:         jobID,
		Status:     crawler.JobStatusPending,
		Parameters: params,
		Submitted:  now,
	}
	logger := r.logger.With(zap.String("job_id", jobID), zap.String("url", params.HomepageURL))

	if cfgErr := checkConfiguration(params); cfgErr != nil {
		job.Status = crawler.JobStatusFailed
		job.ErrorText = cfgErr.Error()
		job.Finished = &now
		if err := r.jobs.CreateJob(ctx, job); err != nil {
			return "", fmt.Errorf("create job: %w", err)
		}
		logger.Info("job rejected at start", zap.Error(cfgErr))
		return jobID, nil
	}

	if err := r.jobs.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, r.cfg.EnqueueTimeout)
	defer cancel()
	item := crawler.QueueItem{JobID: jobID, Params: params, Submitted: now.Unix()}
	if err := r.queue.Enqueue(queueCtx, item); err != nil {
		failErr := r.jobs.UpdateStatus(context.WithoutCancel(ctx), jobID, crawler.JobStatusFailed, "enqueue failed: "+err.Error())
		if failErr != nil {
			logger.Error("mark unqueued job failed", zap.Error(failErr))
		}
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	logger.Info("job accepted", zap.Int("max_pages", params.MaxPages), zap.Int("exclusions", len(params.ExclusionPatterns)))
	return jobID, nil
}

// Status returns the job's state and latest progress.
func (r *Runner) Status(ctx context.Context, jobID string) (Status, error) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Status{}, fmt.Errorf("job status: %w", err)
	}
	return Status{JobID: job.ID, Status: job.Status, Progress: job.Progress, Error: job.ErrorText}, nil
}

// Result returns the crawl result of a completed or cancelled job. Any other
// state yields crawler.ErrResultNotReady.
func (r *Runner) Result(ctx context.Context, jobID string) (crawler.Result, error) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return crawler.Result{}, fmt.Errorf("job result: %w", err)
	}
	if job.Status != crawler.JobStatusCompleted && job.Status != crawler.JobStatusCancelled {
		return crawler.Result{}, fmt.Errorf("job %s is %s: %w", jobID, job.Status, crawler.ErrResultNotReady)
	}
	if job.Result == nil {
		return emptyResult(), nil
	}
	return *job.Result, nil
}

// Cancel requests cooperative cancellation. A pending job is cancelled
// immediately; a running job stops at its next loop boundary. Finished jobs
// yield crawler.ErrJobFinished.
func (r *Runner) Cancel(ctx context.Context, jobID string) (crawler.JobStatus, error) {
	job, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("cancel job: %w", err)
	}
	if job.Status.Terminal() {
		return job.Status, fmt.Errorf("job %s is %s: %w", jobID, job.Status, crawler.ErrJobFinished)
	}
	if job.Status == crawler.JobStatusPending {
		// The queued item is still ahead of a worker, which will register
		// against this signal and release it.
		r.cancel.Cancel(jobID)
		err := r.jobs.UpdateStatus(ctx, jobID, crawler.JobStatusCancelled, "")
		switch {
		case err == nil:
			r.logger.Info("pending job cancelled", zap.String("job_id", jobID))
			return crawler.JobStatusCancelled, nil
		case errors.Is(err, crawler.ErrInvalidTransition):
			// A worker picked the job up meanwhile; the stop signal covers it.
		default:
			return "", fmt.Errorf("cancel job: %w", err)
		}
	}
	if job.Status == crawler.JobStatusRunning && !r.cancel.CancelIfRegistered(jobID) {
		r.logger.Debug("job finished before cancel reached it", zap.String("job_id", jobID))
	} else {
		r.logger.Info("cancellation requested", zap.String("job_id", jobID))
	}
	current, err := r.jobs.GetJob(ctx, jobID)
	if err != nil {
		return "", fmt.Errorf("cancel job: %w", err)
	}
	return current.Status, nil
}

// List returns jobs newest first. limit is clamped to the configured bounds.
func (r *Runner) List(ctx context.Context, status *crawler.JobStatus, limit, offset int) ([]crawler.Job, error) {
	if status != nil && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, *status)
	}
	if limit <= 0 {
		limit = r.cfg.DefaultListLimit
	}
	if limit > r.cfg.MaxListLimit {
		limit = r.cfg.MaxListLimit
	}
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must be >= 0", ErrInvalidRequest)
	}
	jobs, err := r.jobs.ListJobs(ctx, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

func (r *Runner) parameters(req StartRequest) (crawler.JobParameters, error) {
	if req.MaxPages < 0 {
		return crawler.JobParameters{}, fmt.Errorf("%w: maxPages must be >= 0", ErrInvalidRequest)
	}
	maxPages := req.MaxPages
	if maxPages == 0 {
		maxPages = r.cfg.MaxPagesDefault
	}
	if maxPages > r.cfg.MaxPagesLimit {
		return crawler.JobParameters{}, fmt.Errorf("%w: maxPages must be <= %d", ErrInvalidRequest, r.cfg.MaxPagesLimit)
	}
	patterns := make([]string, 0, len(req.ExclusionPatterns))
	for _, p := range req.ExclusionPatterns {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) > r.cfg.MaxExclusions {
		return crawler.JobParameters{}, fmt.Errorf("%w: at most %d exclusion patterns", ErrInvalidRequest, r.cfg.MaxExclusions)
	}
	return crawler.JobParameters{
		HomepageURL:       strings.TrimSpace(req.HomepageURL),
		ExclusionPatterns: patterns,
		MaxPages:          maxPages,
	}, nil
}

func checkConfiguration(params crawler.JobParameters) error {
	site, err := urlnorm.SiteOf(params.HomepageURL)
	if err != nil {
		return fmt.Errorf("%w: %w", crawler.ErrInvalidHomepage, err)
	}
	if site.Scheme != "http" && site.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", crawler.ErrInvalidHomepage, site.Scheme)
	}
	// An excluded homepage is not a configuration error: the crawl skips it
	// like any other excluded URL and completes with no pages.
	if _, err := frontier.CompileExclusions(params.ExclusionPatterns); err != nil {
		return fmt.Errorf("invalid exclusion pattern: %w", err)
	}
	return nil
}

func emptyResult() crawler.Result {
	return crawler.Result{
		Buckets:     crawler.Buckets{ServicePages: []string{}, BlogArticles: []string{}},
		CrawledURLs: []crawler.CrawledURL{},
	}
}
