// Package api exposes the HTTP interface for the crawler service.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/metrics"
	"github.com/JakeFAU/site-discovery-crawler/internal/runner"
	"github.com/JakeFAU/site-discovery-crawler/internal/telemetry"
)

const (
	maxRequestBody        = 1 << 20
	defaultRequestTimeout = 60 * time.Second
	readyTimeout          = 2 * time.Second
)

// CrawlService is the job-level API behind the handlers. *runner.Runner
// satisfies it.
type CrawlService interface {
	Start(ctx context.Context, req runner.StartRequest) (string, error)
	Status(ctx context.Context, jobID string) (runner.Status, error)
	Result(ctx context.Context, jobID string) (crawler.Result, error)
	Cancel(ctx context.Context, jobID string) (crawler.JobStatus, error)
	List(ctx context.Context, status *crawler.JobStatus, limit, offset int) ([]crawler.Job, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config controls server middleware.
type Config struct {
	// APIKey enables X-API-Key authentication on /v1 routes when non-empty.
	APIKey         string
	RequestTimeout time.Duration
}

// Server wires HTTP handlers to the crawl runner and stores.
type Server struct {
	router   chi.Router
	crawls   CrawlService
	progress *ProgressHandler
	ready    []Pinger
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. progress may be
// nil, in which case the job detail and page routes are not mounted.
func NewServer(crawls CrawlService, progress *ProgressHandler, ready []Pinger, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	s := &Server{
		crawls:   crawls,
		progress: progress,
		ready:    ready,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(telemetry.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(cfg.RequestTimeout))
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Get("/", s.listCrawls)
			r.Route("/{job_id}", func(r chi.Router) {
				if progress != nil {
					r.Get("/", progress.GetJob)
					r.Get("/pages", progress.ListPages)
				}
				r.Get("/status", s.getStatus)
				r.Get("/result", s.getResult)
				r.Post("/cancel", s.cancelCrawl)
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	for _, p := range s.ready {
		if p == nil {
			continue
		}
		if err := p.Ping(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startRequest struct {
	HomepageURL       string   `json:"homepageUrl"`
	ExclusionPatterns []string `json:"exclusionPatterns"`
	MaxPages          int      `json:"maxPages"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.HomepageURL) == "" {
		writeError(w, http.StatusBadRequest, "homepageUrl required")
		return
	}
	jobID, err := s.crawls.Start(r.Context(), runner.StartRequest{
		HomepageURL:       req.HomepageURL,
		ExclusionPatterns: req.ExclusionPatterns,
		MaxPages:          req.MaxPages,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID})
}

func (s *Server) listCrawls(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, 0, maxJobLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *crawler.JobStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st := crawler.JobStatus(strings.ToLower(raw))
		status = &st
	}
	jobs, err := s.crawls.List(r.Context(), status, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]jobSummary, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, toJobSummary(job))
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": out})
}

type statusResponse struct {
	JobID        string            `json:"jobId"`
	Status       crawler.JobStatus `json:"status"`
	PagesCrawled int               `json:"pagesCrawled"`
	Queued       int               `json:"queued"`
	CurrentURL   string            `json:"currentUrl,omitempty"`
	Error        string            `json:"error,omitempty"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.crawls.Status(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		JobID:        st.JobID,
		Status:       st.Status,
		PagesCrawled: st.Progress.PagesCrawled,
		Queued:       st.Progress.Queued,
		CurrentURL:   st.Progress.CurrentURL,
		Error:        st.Error,
	})
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.crawls.Result(r.Context(), chi.URLParam(r, "job_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) cancelCrawl(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	status, err := s.crawls.Cancel(r.Context(), jobID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"jobId": jobID, "status": string(status)})
}

// fail maps domain errors onto HTTP statuses. Unknown errors are logged and
// reported as 500 without their text.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeError(w, code, "internal error")
		return
	}
	writeError(w, code, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, crawler.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, crawler.ErrResultNotReady), errors.Is(err, crawler.ErrJobFinished):
		return http.StatusConflict
	case errors.Is(err, crawler.ErrQueueClosed), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

type requestIDKey struct{}

// RequestIDFromContext returns the request ID assigned by the server, if any.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestIDFromContext(r.Context())),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
