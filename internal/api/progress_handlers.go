package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

const (
	maxJobLimit       = 500
	defaultPagesLimit = 100
	maxPagesLimit     = 1000
	progressTimeout   = 3 * time.Second
)

// ProgressRepository is the read side of the job store and page index.
type ProgressRepository interface {
	GetJob(ctx context.Context, jobID string) (crawler.Job, error)
	ListPages(ctx context.Context, jobID string) ([]crawler.PageRecord, error)
}

// ProgressHandler exposes read-only job detail and page listing endpoints.
type ProgressHandler struct {
	repo    ProgressRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewProgressHandler wires the repository and logger.
func NewProgressHandler(repo ProgressRepository, logger *zap.Logger) *ProgressHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressHandler{
		repo:    repo,
		timeout: progressTimeout,
		logger:  logger,
	}
}

// GetJob handles GET /v1/crawls/{job_id}. It returns {"job": {...}} including
// parameters, timestamps and the result when present; 404 for unknown jobs and
// 503 when no repository is configured.
func (h *ProgressHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	job, err := h.repo.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

// ListPages handles GET /v1/crawls/{job_id}/pages?limit=&offset=. It returns
// {"pages": [...], "total": n} in fetch order. An unknown job yields 404.
func (h *ProgressHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "progress repository unavailable")
		return
	}
	jobID, err := parseJobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultPagesLimit, maxPagesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if _, err := h.repo.GetJob(ctx, jobID); err != nil {
		if errors.Is(err, crawler.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		h.logger.Error("get job failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	pages, err := h.repo.ListPages(ctx, jobID)
	if err != nil {
		h.logger.Error("list pages failed", zap.String("job_id", jobID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pages")
		return
	}
	total := len(pages)
	writeJSON(w, http.StatusOK, map[string]any{
		"pages": paginate(pages, limit, offset),
		"total": total,
	})
}

func paginate(pages []crawler.PageRecord, limit, offset int) []crawler.PageRecord {
	if offset >= len(pages) {
		return []crawler.PageRecord{}
	}
	pages = pages[offset:]
	if limit > 0 && limit < len(pages) {
		pages = pages[:limit]
	}
	return pages
}

func parseJobID(r *http.Request) (string, error) {
	jobID := strings.TrimSpace(chi.URLParam(r, "job_id"))
	if jobID == "" {
		return "", errors.New("job_id is required")
	}
	return jobID, nil
}

// parseLimitOffset reads paging parameters. A limit above maxLimit is clamped;
// non-numeric or out-of-range values are rejected.
func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

type jobSummary struct {
	ID           string            `json:"jobId"`
	Status       crawler.JobStatus `json:"status"`
	HomepageURL  string            `json:"homepageUrl"`
	PagesCrawled int               `json:"pagesCrawled"`
	Error        string            `json:"error,omitempty"`
	SubmittedAt  time.Time         `json:"submittedAt"`
	StartedAt    *time.Time        `json:"startedAt,omitempty"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`
}

func toJobSummary(job crawler.Job) jobSummary {
	return jobSummary{
		ID:           job.ID,
		Status:       job.Status,
		HomepageURL:  job.Parameters.HomepageURL,
		PagesCrawled: job.Progress.PagesCrawled,
		Error:        job.ErrorText,
		SubmittedAt:  job.Submitted,
		StartedAt:    job.Started,
		FinishedAt:   job.Finished,
	}
}
