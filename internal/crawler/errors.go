package crawler

import (
	"errors"
	"fmt"
)

// Job-level sentinel errors shared by stores, the runner, and the API.
var (
	ErrJobNotFound       = errors.New("job not found")
	ErrJobExists         = errors.New("job already exists")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrResultNotReady    = errors.New("job result not ready")
	ErrJobFinished       = errors.New("job already finished")
	ErrInvalidHomepage   = errors.New("invalid homepage url")
	ErrQueueClosed       = errors.New("queue closed")
)

// ErrRobotsDisallowed is wrapped by raw fetchers when robots.txt forbids a URL.
var ErrRobotsDisallowed = errors.New("disallowed by robots.txt")

// FetchErrorKind classifies why a single page could not be used.
type FetchErrorKind string

// Fetch error kinds. Network and timeout failures come from the transport;
// http is a non-2xx status; parse is unusable markup; robots is a robots.txt
// denial; offsite is a redirect that left the crawled site.
const (
	FetchErrorNetwork FetchErrorKind = "network"
	FetchErrorTimeout FetchErrorKind = "timeout"
	FetchErrorHTTP    FetchErrorKind = "http"
	FetchErrorParse   FetchErrorKind = "parse"
	FetchErrorRobots  FetchErrorKind = "robots"
	FetchErrorOffsite FetchErrorKind = "offsite"
)

// FetchError describes a per-page failure. It never aborts a crawl on its own.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	Detail     string
	Err        error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %s", e.URL, e.Kind, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("fetch %s: %s: %s", e.URL, e.Kind, e.Detail)
}

// Unwrap exposes the underlying transport error, if any.
func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
