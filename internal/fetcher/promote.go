package fetcher

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// Promoting probes with a plain HTTP fetcher and re-renders the page in a
// headless browser when the detector judges the probe client-rendered and
// the policy still has budget for the job. A failed render falls back to
// the probe response.
type Promoting struct {
	probe    crawler.Fetcher
	headless crawler.Fetcher
	detector crawler.HeadlessDetector
	policy   crawler.HeadlessPolicy
	logger   *zap.Logger
}

// NewPromoting builds a Promoting fetcher. A nil policy allows every render.
func NewPromoting(
	probe crawler.Fetcher,
	headless crawler.Fetcher,
	detector crawler.HeadlessDetector,
	policy crawler.HeadlessPolicy,
	logger *zap.Logger,
) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{
		probe:    probe,
		headless: headless,
		detector: detector,
		policy:   policy,
		logger:   logger,
	}
}

// Fetch implements crawler.Fetcher.
func (p *Promoting) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	resp, err := p.probe.Fetch(ctx, request)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("probe fetch: %w", err)
	}
	if p.headless == nil || p.detector == nil || !p.detector.ShouldPromote(resp) {
		return resp, nil
	}
	if p.policy != nil && !p.policy.AllowHeadless(request.JobID, request.URL) {
		p.logger.Debug("headless budget exhausted",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
		)
		return resp, nil
	}

	rendered, err := p.headless.Fetch(ctx, request)
	if err != nil {
		p.logger.Warn("headless promotion failed",
			zap.String("job_id", request.JobID),
			zap.String("url", request.URL),
			zap.Error(err),
		)
		return resp, nil
	}
	rendered.UsedHeadless = true
	p.logger.Info("headless promotion applied",
		zap.String("job_id", request.JobID),
		zap.String("url", request.URL),
	)
	return rendered, nil
}

// Forget releases per-job promotion accounting.
func (p *Promoting) Forget(jobID string) {
	if p.policy != nil {
		p.policy.Forget(jobID)
	}
}
