package crawler

import (
	"net/http"
	"time"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// allowedTransitions lists every legal edge of the job state machine.
var allowedTransitions = map[JobStatus][]JobStatus{
	JobStatusPending: {JobStatusRunning, JobStatusFailed, JobStatusCancelled},
	JobStatusRunning: {JobStatusCompleted, JobStatusFailed, JobStatusCancelled},
}

// Terminal reports whether no transition may leave the status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransition reports whether the state machine permits s -> to.
func (s JobStatus) CanTransition(to JobStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// AllowedFrom returns the statuses that may transition into to.
func AllowedFrom(to JobStatus) []JobStatus {
	var from []JobStatus
	for _, s := range []JobStatus{JobStatusPending, JobStatusRunning} {
		if s.CanTransition(to) {
			from = append(from, s)
		}
	}
	return from
}

// JobParameters captures per-job knobs requested by the client.
type JobParameters struct {
	HomepageURL       string   `json:"homepageUrl"`
	ExclusionPatterns []string `json:"exclusionPatterns,omitempty"`
	MaxPages          int      `json:"maxPages"`
}

// Progress is the incremental crawl state reported after every scheduler step.
type Progress struct {
	PagesCrawled int    `json:"pagesCrawled"`
	Queued       int    `json:"queued"`
	CurrentURL   string `json:"currentUrl,omitempty"`
}

// Job represents the metadata persisted for each submitted crawl request.
type Job struct {
	ID         string        `json:"id"`
	Status     JobStatus     `json:"status"`
	Parameters JobParameters `json:"parameters"`
	Progress   Progress      `json:"progress"`
	Result     *Result       `json:"result,omitempty"`
	ErrorText  string        `json:"error,omitempty"`
	Submitted  time.Time     `json:"submitted_at"`
	Started    *time.Time    `json:"started_at,omitempty"`
	Finished   *time.Time    `json:"finished_at,omitempty"`
}

// Buckets holds the page-role classification of one crawl. A URL appears in at
// most one bucket.
type Buckets struct {
	HomePage     string   `json:"home_page"`
	AboutPage    string   `json:"about_page"`
	ServicePages []string `json:"service_pages"`
	BlogArticles []string `json:"blog_articles"`
}

// CrawledURL is the compact listing entry for a fetched page.
type CrawledURL struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Stats aggregates per-page outcomes that are otherwise swallowed by the loop.
type Stats struct {
	PagesFailed   int           `json:"pages_failed"`
	PagesExcluded int           `json:"pages_excluded"`
	Duplicates    int           `json:"duplicates"`
	Duration      time.Duration `json:"duration_ns"`
}

// Result is the completion payload of a crawl.
type Result struct {
	Buckets
	CrawledURLs       []CrawledURL `json:"crawledUrls"`
	TotalPagesCrawled int          `json:"totalPagesCrawled"`
	ReachedLimit      bool         `json:"reachedLimit"`
	Stats             Stats        `json:"stats"`
}

// PageSignals are on-page hints used to break classification ties.
type PageSignals struct {
	OGType        string `json:"og_type,omitempty"`
	HasArticleTag bool   `json:"has_article_tag,omitempty"`
	PublishedTime string `json:"published_time,omitempty"`
	Heading       string `json:"heading,omitempty"`
}

// LooksLikeArticle reports whether the markup declares an article.
func (s PageSignals) LooksLikeArticle() bool {
	return s.OGType == "article" || s.PublishedTime != "" || s.HasArticleTag
}

// CrawledPage is one successfully fetched and parsed page. It is immutable once
// built by the page fetcher.
type CrawledPage struct {
	URL             string      `json:"url"`
	FinalURL        string      `json:"final_url"`
	CanonicalURL    string      `json:"canonical_url,omitempty"`
	Title           string      `json:"title"`
	MetaDescription string      `json:"meta_description,omitempty"`
	ContentHash     string      `json:"content_hash"`
	OutboundLinks   []string    `json:"outbound_links"`
	HTTPStatus      int         `json:"http_status"`
	FetchedAt       time.Time   `json:"fetched_at"`
	Signals         PageSignals `json:"signals"`
	Body            []byte      `json:"-"`
}

// IdentityURL is the URL used for deduplication: the canonical URL when the
// page declares one, otherwise the requested URL.
func (p CrawledPage) IdentityURL() string {
	if p.CanonicalURL != "" {
		return p.CanonicalURL
	}
	return p.URL
}

// PageRecord indexes one crawled page of a job alongside its archive URI.
type PageRecord struct {
	JobID           string    `json:"job_id"`
	URL             string    `json:"url"`
	FinalURL        string    `json:"final_url"`
	CanonicalURL    string    `json:"canonical_url,omitempty"`
	Title           string    `json:"title"`
	MetaDescription string    `json:"meta_description,omitempty"`
	ContentHash     string    `json:"content_hash"`
	Bucket          string    `json:"bucket"`
	HTTPStatus      int       `json:"http_status"`
	BlobURI         string    `json:"blob_uri,omitempty"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	JobID   string
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
