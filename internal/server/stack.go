package server

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/clock/system"
	"github.com/JakeFAU/site-discovery-crawler/internal/config"
	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/fetcher"
	collyfetcher "github.com/JakeFAU/site-discovery-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/site-discovery-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/site-discovery-crawler/internal/frontier"
	"github.com/JakeFAU/site-discovery-crawler/internal/hash/sha256"
	"github.com/JakeFAU/site-discovery-crawler/internal/headless/detector"
	"github.com/JakeFAU/site-discovery-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/site-discovery-crawler/internal/policy/simple"
)

// CrawlStack is the fetch pipeline shared by the service and the one-shot
// crawl command: raw fetchers, headless promotion, politeness and the
// scheduler on top.
type CrawlStack struct {
	Scheduler *frontier.Scheduler
	// Promoter releases per-job headless accounting; pass it to workers.
	Promoter *fetcher.Promoting
	headless *headlessfetcher.Fetcher
}

// NewCrawlStack builds the fetch pipeline from configuration. A headless
// fetcher that fails to start is logged and skipped.
func NewCrawlStack(cfg config.Config, logger *zap.Logger) *CrawlStack {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := system.New()
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.Crawler.UserAgent,
		RespectRobots: !cfg.Crawler.IgnoreRobots,
		Timeout:       cfg.FetchTimeout(),
		MaxBodySize:   cfg.HTTP.MaxBodyBytes,
	})
	logger.Info("using colly probe fetcher",
		zap.Bool("respect_robots", !cfg.Crawler.IgnoreRobots),
		zap.Duration("timeout", cfg.FetchTimeout()),
	)

	stack := &CrawlStack{}
	var headless crawler.Fetcher
	if cfg.Headless.Enabled {
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: secondsToDuration(cfg.Headless.NavTimeoutSec),
			SettleDelay:       millisToDuration(cfg.Headless.SettleDelayMs),
			ExecPath:          cfg.Headless.ExecPath,
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			stack.headless = hf
			headless = hf
			logger.Info("using headless fetcher", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}

	stack.Promoter = fetcher.NewPromoting(
		probe,
		headless,
		detector.NewHeuristic(cfg.Headless.PromotionThresh, cfg.Headless.MinAnchors),
		simple.New(cfg.Headless.MaxPerJob),
		logger.Named("promote"),
	)
	pages := fetcher.New(stack.Promoter, sha256.New(), clock, http.Header{}, logger.Named("fetcher"))

	var throttle crawler.Throttle
	if cfg.RateLimit.Enabled {
		throttle = ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.RateLimit.DefaultRPS,
			DefaultBurst: cfg.RateLimit.DefaultBurst,
		})
		logger.Info("rate limiter enabled",
			zap.Float64("default_rps", cfg.RateLimit.DefaultRPS),
			zap.Int("default_burst", cfg.RateLimit.DefaultBurst),
		)
	}

	stack.Scheduler = frontier.New(pages, throttle, clock, frontier.Config{
		MaxPages:        cfg.Crawler.MaxPagesDefault,
		Budget:          cfg.JobBudget(),
		MaxServicePages: cfg.Classify.MaxServicePages,
		MaxBlogArticles: cfg.Classify.MaxBlogArticles,
	}, logger.Named("scheduler"))
	return stack
}

// Close stops the headless browser if one was started.
func (s *CrawlStack) Close() {
	if s != nil && s.headless != nil {
		s.headless.Close()
	}
}
