package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/JakeFAU/site-discovery-crawler/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport wraps the page transport. Page requests pass straight
// through. A robots.txt probe that times out or answers 5xx is retried, and
// if it never recovers the site is treated as allow-all: colly reads a 5xx
// robots.txt as disallow-all, which would leave discovery with no pages at
// all for a site whose robots endpoint is merely broken.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration
}

func newRobotsTransport(base http.RoundTripper) *robotsTransport {
	return &robotsTransport{base: base, backoff: defaultRobotsBackoff}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: nil request")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		return t.base.RoundTrip(req) //nolint:wrapcheck // transport errors pass through unchanged
	}
	return t.probe(req)
}

func (t *robotsTransport) probe(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		retry, err := robotsRetryable(resp, err)
		if !retry {
			return resp, err
		}
		if attempt >= len(t.backoff) {
			metrics.ObserveRobotsFallback(req.URL.Hostname())
			return allowAllResponse(req), nil
		}
		if err := sleepCtx(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("robots probe %s: %w", req.URL.Host, err)
		}
	}
}

// robotsRetryable decides whether a probe outcome is worth another attempt.
// A retried 5xx response is drained and closed here.
func robotsRetryable(resp *http.Response, err error) (bool, error) {
	if err != nil {
		if isTransientError(err) {
			return true, nil
		}
		return false, fmt.Errorf("robots probe: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return true, nil
	}
	return false, nil
}

func sleepCtx(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Request:       req,
	}
}

func isTransientError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
