package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart     Stage = "JOB_START"
	StageJobProgress  Stage = "JOB_PROGRESS"
	StagePageDone     Stage = "PAGE_DONE"
	StagePageError    Stage = "PAGE_ERROR"
	StageJobDone      Stage = "JOB_DONE"
	StageJobCancelled Stage = "JOB_CANCELLED"
	StageJobError     Stage = "JOB_ERROR"
)

// Terminal reports whether the stage ends a job.
func (s Stage) Terminal() bool {
	return s == StageJobDone || s == StageJobCancelled || s == StageJobError
}

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single step of a crawl.
type Event struct {
	// JobID identifies the crawl job.
	JobID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	Stage Stage
	// Site scopes page events to a host label.
	Site string
	URL  string
	// Bucket is the classification of a PAGE_DONE page.
	Bucket string
	// Kind is the failure kind of a PAGE_ERROR page.
	Kind        crawler.FetchErrorKind
	StatusClass StatusClass
	Bytes       int64
	// Progress is the frontier snapshot carried by JOB_PROGRESS and terminal
	// events.
	Progress crawler.Progress
	// Dur is the job runtime on terminal events.
	Dur time.Duration
	// Note carries low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageJobProgress, StageJobDone, StageJobCancelled, StageJobError:
	case StagePageDone:
		if e.URL == "" {
			return errors.New("page done requires url")
		}
		if e.StatusClass == "" {
			return errors.New("page done requires status class")
		}
	case StagePageError:
		if e.URL == "" {
			return errors.New("page error requires url")
		}
		if e.Kind == "" {
			return errors.New("page error requires kind")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups HTTP status codes for page events.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
