// Package memory holds crawl jobs and archived pages in process memory for
// development, the one-shot CLI, and tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// JobStore is an in-memory crawler.JobStore. Reads return deep copies.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crawler.Job
	now  func() time.Time
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{
		jobs: make(map[string]crawler.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob stores a new job as given.
func (s *JobStore) CreateJob(_ context.Context, job crawler.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return cloneJob(job), nil
}

// ListJobs returns jobs newest first, optionally filtered by status. A
// non-positive limit returns every match after offset.
func (s *JobStore) ListJobs(_ context.Context, status *crawler.JobStatus, limit, offset int) ([]crawler.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != nil && job.Status != *status {
			continue
		}
		out = append(out, cloneJob(job))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Submitted.Equal(out[j].Submitted) {
			return out[i].Submitted.After(out[j].Submitted)
		}
		return out[i].ID > out[j].ID
	})
	if offset > 0 {
		if offset >= len(out) {
			return []crawler.Job{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// UpdateStatus moves a job along the state machine, stamping start and finish
// times. Illegal moves, including any move out of a terminal state, fail with
// crawler.ErrInvalidTransition.
func (s *JobStore) UpdateStatus(_ context.Context, jobID string, status crawler.JobStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if !job.Status.CanTransition(status) {
		return fmt.Errorf("update job %s %s -> %s: %w", jobID, job.Status, status, crawler.ErrInvalidTransition)
	}
	now := s.now()
	job.Status = status
	job.ErrorText = errText
	if status == crawler.JobStatusRunning && job.Started == nil {
		job.Started = &now
	}
	if status.Terminal() {
		job.Finished = &now
	}
	s.jobs[jobID] = job
	return nil
}

// UpdateProgress replaces the job's progress snapshot.
func (s *JobStore) UpdateProgress(_ context.Context, jobID string, progress crawler.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("update progress %s: %w", jobID, crawler.ErrJobNotFound)
	}
	job.Progress = progress
	s.jobs[jobID] = job
	return nil
}

// SaveResult attaches the crawl result to the job.
func (s *JobStore) SaveResult(_ context.Context, jobID string, result crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return fmt.Errorf("save result %s: %w", jobID, crawler.ErrJobNotFound)
	}
	r := cloneResult(result)
	job.Result = &r
	s.jobs[jobID] = job
	return nil
}

func cloneJob(job crawler.Job) crawler.Job {
	job.Parameters.ExclusionPatterns = slices.Clone(job.Parameters.ExclusionPatterns)
	if job.Result != nil {
		r := cloneResult(*job.Result)
		job.Result = &r
	}
	if job.Started != nil {
		t := *job.Started
		job.Started = &t
	}
	if job.Finished != nil {
		t := *job.Finished
		job.Finished = &t
	}
	return job
}

func cloneResult(r crawler.Result) crawler.Result {
	r.ServicePages = slices.Clone(r.ServicePages)
	r.BlogArticles = slices.Clone(r.BlogArticles)
	r.CrawledURLs = slices.Clone(r.CrawledURLs)
	return r
}
