// Package fetcher turns one raw HTTP retrieval into a parsed CrawledPage and
// classifies every way that can fail.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/metrics"
)

// PageFetcher fetches and parses single pages. It never returns a bare error:
// every failure is a *crawler.FetchError the scheduler can count and skip.
type PageFetcher struct {
	raw     crawler.Fetcher
	hasher  crawler.Hasher
	clock   crawler.Clock
	headers http.Header
	logger  *zap.Logger
}

// New constructs a PageFetcher over a raw fetcher.
func New(
	raw crawler.Fetcher,
	hasher crawler.Hasher,
	clock crawler.Clock,
	headers http.Header,
	logger *zap.Logger,
) *PageFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageFetcher{
		raw:     raw,
		hasher:  hasher,
		clock:   clock,
		headers: headers,
		logger:  logger,
	}
}

// FetchPage retrieves pageURL for jobID and extracts its identity and content
// signals. Outbound links and the canonical URL are resolved against the URL
// the response was finally served from.
func (f *PageFetcher) FetchPage(ctx context.Context, jobID, pageURL string) (crawler.CrawledPage, *crawler.FetchError) {
	resp, err := f.raw.Fetch(ctx, crawler.FetchRequest{JobID: jobID, URL: pageURL, Headers: f.headers})
	if err != nil {
		fe := classifyTransportError(pageURL, err)
		f.observe(pageURL, fe, 0)
		return crawler.CrawledPage{}, fe
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		fe := &crawler.FetchError{
			Kind:       crawler.FetchErrorHTTP,
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Detail:     http.StatusText(resp.StatusCode),
		}
		f.observe(pageURL, fe, len(resp.Body))
		return crawler.CrawledPage{}, fe
	}

	if ct := resp.Headers.Get("Content-Type"); !isHTML(ct) {
		fe := &crawler.FetchError{
			Kind:       crawler.FetchErrorParse,
			URL:        pageURL,
			StatusCode: resp.StatusCode,
			Detail:     fmt.Sprintf("unsupported content type %q", ct),
		}
		f.observe(pageURL, fe, len(resp.Body))
		return crawler.CrawledPage{}, fe
	}

	finalURL := resp.URL
	if finalURL == "" {
		finalURL = pageURL
	}
	extracted, err := Extract(finalURL, resp.Body)
	if err != nil {
		fe := &crawler.FetchError{Kind: crawler.FetchErrorParse, URL: pageURL, Detail: err.Error(), Err: err}
		f.observe(pageURL, fe, len(resp.Body))
		return crawler.CrawledPage{}, fe
	}

	hash, err := f.hasher.Hash(resp.Body)
	if err != nil {
		fe := &crawler.FetchError{Kind: crawler.FetchErrorParse, URL: pageURL, Detail: "hash body: " + err.Error(), Err: err}
		f.observe(pageURL, fe, len(resp.Body))
		return crawler.CrawledPage{}, fe
	}

	f.observe(pageURL, nil, len(resp.Body))
	f.logger.Debug("page fetched",
		zap.String("job_id", jobID),
		zap.String("url", pageURL),
		zap.String("final_url", finalURL),
		zap.Int("links", len(extracted.OutboundLinks)),
		zap.Bool("headless", resp.UsedHeadless),
		zap.Duration("duration", resp.Duration),
	)
	return crawler.CrawledPage{
		URL:             pageURL,
		FinalURL:        finalURL,
		CanonicalURL:    extracted.CanonicalURL,
		Title:           extracted.Title,
		MetaDescription: extracted.MetaDescription,
		ContentHash:     hash,
		OutboundLinks:   extracted.OutboundLinks,
		HTTPStatus:      resp.StatusCode,
		FetchedAt:       f.clock.Now(),
		Signals:         extracted.Signals,
		Body:            resp.Body,
	}, nil
}

func (f *PageFetcher) observe(pageURL string, fe *crawler.FetchError, size int) {
	if fe == nil {
		metrics.ObservePage(pageURL, "ok", size)
		return
	}
	metrics.ObservePage(pageURL, string(fe.Kind), size)
	metrics.ObserveFetchError(string(fe.Kind))
}

// isHTML accepts a missing content type since many servers omit it.
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func classifyTransportError(pageURL string, err error) *crawler.FetchError {
	fe := &crawler.FetchError{URL: pageURL, Detail: err.Error(), Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, crawler.ErrRobotsDisallowed):
		fe.Kind = crawler.FetchErrorRobots
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(err.Error(), "net::ERR_TIMED_OUT"):
		fe.Kind = crawler.FetchErrorTimeout
	default:
		fe.Kind = crawler.FetchErrorNetwork
	}
	return fe
}
