package crawler

import (
	"context"
	"io"
	"time"
)

// JobStore persists crawl jobs, their progress, and their results. Status
// updates must reject transitions the state machine does not allow with
// ErrInvalidTransition.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	GetJob(ctx context.Context, jobID string) (Job, error)
	ListJobs(ctx context.Context, status *JobStatus, limit, offset int) ([]Job, error)
	UpdateStatus(ctx context.Context, jobID string, status JobStatus, errText string) error
	UpdateProgress(ctx context.Context, jobID string, progress Progress) error
	SaveResult(ctx context.Context, jobID string, result Result) error
}

// PageIndex records the pages a job crawled.
type PageIndex interface {
	RecordPage(ctx context.Context, record PageRecord) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher performs one raw retrieval of a URL.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides when a plain HTTP response must be re-rendered in
// a browser before its links and metadata can be trusted.
type HeadlessDetector interface {
	ShouldPromote(resp FetchResponse) bool
}

// HeadlessPolicy gates browser rendering per job.
type HeadlessPolicy interface {
	AllowHeadless(jobID, url string) bool
	Forget(jobID string)
}

// Queue provides enqueue/dequeue semantics for crawl jobs.
type Queue interface {
	Enqueue(ctx context.Context, job QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Hasher computes content fingerprints for duplicate detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Throttle delays fetches to keep load on the target site bounded.
type Throttle interface {
	Wait(ctx context.Context, rawURL string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// QueueItem wraps a job ready to run.
type QueueItem struct {
	JobID     string
	Params    JobParameters
	Submitted int64
}
