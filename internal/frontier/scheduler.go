package frontier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/metrics"
)

// ErrHomepageUnfetchable is returned by Run when the seed page itself fails.
var ErrHomepageUnfetchable = errors.New("homepage unfetchable")

// Crawl limit defaults.
const (
	DefaultMaxPages = 50
	DefaultBudget   = 5 * time.Minute
)

// PageFetcher fetches and parses one page.
type PageFetcher interface {
	FetchPage(ctx context.Context, jobID, pageURL string) (crawler.CrawledPage, *crawler.FetchError)
}

// Reporter receives the incremental output of a Run. Calls are made from the
// Run goroutine and must not block for long.
type Reporter interface {
	OnProgress(progress crawler.Progress)
	OnPage(page crawler.CrawledPage, bucket Bucket)
	OnFailure(fe *crawler.FetchError)
}

// NopReporter discards every report.
type NopReporter struct{}

// OnProgress implements Reporter.
func (NopReporter) OnProgress(crawler.Progress) {}

// OnPage implements Reporter.
func (NopReporter) OnPage(crawler.CrawledPage, Bucket) {}

// OnFailure implements Reporter.
func (NopReporter) OnFailure(*crawler.FetchError) {}

// Config bounds every crawl run by a Scheduler.
type Config struct {
	MaxPages        int
	Budget          time.Duration
	MaxServicePages int
	MaxBlogArticles int
}

// Request describes one crawl.
type Request struct {
	JobID      string
	Homepage   string
	Exclusions []string
	// MaxPages overrides Config.MaxPages when positive.
	MaxPages int
	// Budget overrides Config.Budget when positive.
	Budget time.Duration
}

// Scheduler drives a breadth-first crawl, one fetch at a time.
type Scheduler struct {
	pages      PageFetcher
	throttle   crawler.Throttle
	clock      crawler.Clock
	classifier *Classifier
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Scheduler. throttle may be nil; a nil clock uses the wall
// clock.
func New(pages PageFetcher, throttle crawler.Throttle, clock crawler.Clock, cfg Config, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = DefaultMaxPages
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	return &Scheduler{
		pages:      pages,
		throttle:   throttle,
		clock:      clock,
		classifier: NewClassifier(DefaultRules(), cfg.MaxServicePages, cfg.MaxBlogArticles),
		cfg:        cfg,
		logger:     logger,
	}
}

// Run crawls req.Homepage until the frontier drains, the page cap or time
// budget is hit, or stop is closed. The result accumulated so far is returned
// alongside any error. A closed stop channel is not an error; a cancelled ctx
// is.
func (s *Scheduler) Run(ctx context.Context, req Request, stop <-chan struct{}, reporter Reporter) (crawler.Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	exclusions, err := CompileExclusions(req.Exclusions)
	if err != nil {
		return emptyResult(), err
	}
	state, err := NewState(req.Homepage, exclusions)
	if err != nil {
		return emptyResult(), err
	}

	maxPages := s.cfg.MaxPages
	if req.MaxPages > 0 {
		maxPages = req.MaxPages
	}
	budget := s.cfg.Budget
	if req.Budget > 0 {
		budget = req.Budget
	}
	started := s.clock.Now()
	deadline := started.Add(budget)

	result := emptyResult()
	logger := s.logger.With(zap.String("job_id", req.JobID), zap.String("url", req.Homepage))
	seedPending := true

	finish := func() crawler.Result {
		result.TotalPagesCrawled = state.PagesCrawled()
		result.Stats = state.Stats()
		result.Stats.Duration = s.clock.Now().Sub(started)
		return result
	}

	for {
		if stopped(stop) {
			logger.Info("crawl stopped", zap.Int("pages_crawled", state.PagesCrawled()))
			return finish(), nil
		}
		if err := ctx.Err(); err != nil {
			return finish(), fmt.Errorf("crawl interrupted: %w", err)
		}
		if state.PagesCrawled() >= maxPages || !s.clock.Now().Before(deadline) {
			result.ReachedLimit = state.HasCandidates()
			logger.Info("crawl limit reached",
				zap.Int("pages_crawled", state.PagesCrawled()),
				zap.Bool("reached_limit", result.ReachedLimit))
			return finish(), nil
		}

		next, ok := state.Pop()
		if !ok {
			return finish(), nil
		}
		if state.Excluded(next) {
			state.RecordExcluded()
			metrics.ObserveExcluded()
			logger.Debug("skipping excluded url", zap.String("candidate", next))
			continue
		}
		if !state.MarkVisited(next) {
			continue
		}

		if s.throttle != nil {
			if err := s.throttle.Wait(ctx, next); err != nil {
				return finish(), fmt.Errorf("crawl interrupted: %w", err)
			}
		}
		page, fe := s.pages.FetchPage(ctx, req.JobID, next)
		if stopped(stop) {
			logger.Debug("discarding in-flight page after stop", zap.String("candidate", next))
			return finish(), nil
		}
		isSeed := seedPending
		seedPending = false

		if fe == nil && !isSeed && page.FinalURL != "" && !state.InSite(page.FinalURL) {
			fe = &crawler.FetchError{
				Kind:       crawler.FetchErrorOffsite,
				URL:        next,
				StatusCode: page.HTTPStatus,
				Detail:     "redirected to " + page.FinalURL,
			}
			metrics.ObserveFetchError(string(fe.Kind))
		}
		if fe != nil {
			if isSeed {
				return finish(), fmt.Errorf("%w: %w", ErrHomepageUnfetchable, fe)
			}
			state.RecordFailure()
			reporter.OnFailure(fe)
			logger.Debug("page failed", zap.String("candidate", next), zap.String("kind", string(fe.Kind)), zap.Error(fe))
			reporter.OnProgress(crawler.Progress{PagesCrawled: state.PagesCrawled(), Queued: state.Queued(), CurrentURL: next})
			continue
		}

		if isSeed && state.Reanchor(page.FinalURL) {
			logger.Info("homepage redirected to another origin", zap.String("site", state.Site().String()))
		}
		if page.FinalURL != "" {
			state.MarkVisited(page.FinalURL)
		}

		bucket := BucketNone
		if state.RecordPage(page) {
			metrics.ObserveDuplicate()
			logger.Debug("duplicate page", zap.String("candidate", next), zap.String("identity", page.IdentityURL()))
		} else {
			state.MarkVisited(page.IdentityURL())
			reportURL := page.IdentityURL()
			if isSeed {
				reportURL = req.Homepage
			}
			bucket = s.classifier.Assign(&result.Buckets, NewCandidate(page, isSeed), reportURL)
			result.CrawledURLs = append(result.CrawledURLs, crawler.CrawledURL{URL: reportURL, Title: page.Title})
			for _, link := range page.OutboundLinks {
				state.Push(link)
			}
		}
		reporter.OnPage(page, bucket)
		reporter.OnProgress(crawler.Progress{PagesCrawled: state.PagesCrawled(), Queued: state.Queued(), CurrentURL: next})
	}
}

func stopped(stop <-chan struct{}) bool {
	if stop == nil {
		return false
	}
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

func emptyResult() crawler.Result {
	return crawler.Result{
		Buckets: crawler.Buckets{
			ServicePages: []string{},
			BlogArticles: []string{},
		},
		CrawledURLs: []crawler.CrawledURL{},
	}
}
