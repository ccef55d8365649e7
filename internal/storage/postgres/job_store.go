package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

const jobColumns = `id, status, homepage_url, exclusion_patterns, max_pages,
	pages_crawled, queued, current_url, result, error_text,
	submitted_at, started_at, finished_at`

// CreateJob inserts a new job row.
func (s *Store) CreateJob(ctx context.Context, job crawler.Job) error {
	patterns := job.Parameters.ExclusionPatterns
	if patterns == nil {
		patterns = []string{}
	}
	patternsJSON, err := json.Marshal(patterns)
	if err != nil {
		return fmt.Errorf("marshal exclusion patterns: %w", err)
	}
	var resultJSON []byte
	if job.Result != nil {
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
	}
	query := fmt.Sprintf(`INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO NOTHING`, s.jobs, jobColumns)
	tag, err := s.db.Exec(ctx, query,
		job.ID,
		string(job.Status),
		job.Parameters.HomepageURL,
		patternsJSON,
		job.Parameters.MaxPages,
		job.Progress.PagesCrawled,
		job.Progress.Queued,
		job.Progress.CurrentURL,
		resultJSON,
		job.ErrorText,
		job.Submitted,
		job.Started,
		job.Finished,
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("create job %s: %w", job.ID, crawler.ErrJobExists)
	}
	return nil
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID string) (crawler.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, s.jobs)
	job, err := scanJob(s.db.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if err != nil {
		return crawler.Job{}, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListJobs returns jobs newest first. A nil status lists every job and a
// non-positive limit removes the limit.
func (s *Store) ListJobs(ctx context.Context, status *crawler.JobStatus, limit, offset int) ([]crawler.Job, error) {
	var statusArg, limitArg any
	if status != nil {
		statusArg = string(*status)
	}
	if limit > 0 {
		limitArg = limit
	}
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf(`SELECT %s FROM %s
WHERE ($1::text IS NULL OR status = $1)
ORDER BY submitted_at DESC, id DESC
LIMIT $2 OFFSET $3`, jobColumns, s.jobs)
	rows, err := s.db.Query(ctx, query, statusArg, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := []crawler.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus applies a transition in one statement guarded by the legal
// source states. A miss is resolved into not-found or invalid-transition.
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status crawler.JobStatus, errText string) error {
	now := s.now()
	var startedAt, finishedAt any
	if status == crawler.JobStatusRunning {
		startedAt = now
	}
	if status.Terminal() {
		finishedAt = now
	}
	from := make([]string, 0, 2)
	for _, st := range crawler.AllowedFrom(status) {
		from = append(from, string(st))
	}
	query := fmt.Sprintf(`UPDATE %s
SET status = $2, error_text = $3,
	started_at = COALESCE(started_at, $4),
	finished_at = COALESCE($5, finished_at)
WHERE id = $1 AND status = ANY($6)`, s.jobs)
	tag, err := s.db.Exec(ctx, query, jobID, string(status), errText, startedAt, finishedAt, from)
	if err != nil {
		return fmt.Errorf("update job %s status: %w", jobID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRow(ctx, fmt.Sprintf(`SELECT status FROM %s WHERE id = $1`, s.jobs), jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("update job %s: %w", jobID, crawler.ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("update job %s status: %w", jobID, err)
	}
	return fmt.Errorf("update job %s %s -> %s: %w", jobID, current, status, crawler.ErrInvalidTransition)
}

// UpdateProgress replaces the job's progress snapshot.
func (s *Store) UpdateProgress(ctx context.Context, jobID string, progress crawler.Progress) error {
	query := fmt.Sprintf(`UPDATE %s SET pages_crawled = $2, queued = $3, current_url = $4 WHERE id = $1`, s.jobs)
	tag, err := s.db.Exec(ctx, query, jobID, progress.PagesCrawled, progress.Queued, progress.CurrentURL)
	if err != nil {
		return fmt.Errorf("update progress %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update progress %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return nil
}

// SaveResult stores the result document as JSONB.
func (s *Store) SaveResult(ctx context.Context, jobID string, result crawler.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET result = $2 WHERE id = $1`, s.jobs)
	tag, err := s.db.Exec(ctx, query, jobID, payload)
	if err != nil {
		return fmt.Errorf("save result %s: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save result %s: %w", jobID, crawler.ErrJobNotFound)
	}
	return nil
}

func scanJob(row pgx.Row) (crawler.Job, error) {
	var (
		job          crawler.Job
		status       string
		patternsJSON []byte
		resultJSON   []byte
		started      *time.Time
		finished     *time.Time
	)
	if err := row.Scan(
		&job.ID,
		&status,
		&job.Parameters.HomepageURL,
		&patternsJSON,
		&job.Parameters.MaxPages,
		&job.Progress.PagesCrawled,
		&job.Progress.Queued,
		&job.Progress.CurrentURL,
		&resultJSON,
		&job.ErrorText,
		&job.Submitted,
		&started,
		&finished,
	); err != nil {
		return crawler.Job{}, err
	}
	job.Status = crawler.JobStatus(status)
	job.Started = started
	job.Finished = finished
	if len(patternsJSON) > 0 {
		if err := json.Unmarshal(patternsJSON, &job.Parameters.ExclusionPatterns); err != nil {
			return crawler.Job{}, fmt.Errorf("decode exclusion patterns: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		var result crawler.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return crawler.Job{}, fmt.Errorf("decode result: %w", err)
		}
		job.Result = &result
	}
	return job, nil
}
