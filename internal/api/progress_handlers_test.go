package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

func TestProgressHandlerGetJob(t *testing.T) {
	t.Parallel()

	finished := time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC)
	repo := &mockProgressRepo{jobs: map[string]crawler.Job{
		"job-1": {
			ID:         "job-1",
			Status:     crawler.JobStatusCompleted,
			Parameters: crawler.JobParameters{HomepageURL: "https://example.com/", MaxPages: 10},
			Result:     &crawler.Result{TotalPagesCrawled: 4},
			Submitted:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			Finished:   &finished,
		},
	}}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/crawls/job-1", nil), "job-1")
	rec := httptest.NewRecorder()
	handler.GetJob(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Job crawler.Job `json:"job"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "job-1", body.Job.ID)
	require.Equal(t, "https://example.com/", body.Job.Parameters.HomepageURL)
	require.NotNil(t, body.Job.Result)
	require.Equal(t, 4, body.Job.Result.TotalPagesCrawled)
	require.True(t, finished.Equal(*body.Job.Finished))
}

func TestProgressHandlerGetJobErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		repo ProgressRepository
		id   string
		want int
	}{
		{name: "not found", repo: &mockProgressRepo{}, id: "job-x", want: http.StatusNotFound},
		{name: "store failure", repo: &mockProgressRepo{err: errors.New("boom")}, id: "job-x", want: http.StatusInternalServerError},
		{name: "blank id", repo: &mockProgressRepo{}, id: " ", want: http.StatusBadRequest},
		{name: "no repository", repo: nil, id: "job-x", want: http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := NewProgressHandler(tc.repo, nil)
			req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/crawls/x", nil), tc.id)
			rec := httptest.NewRecorder()
			handler.GetJob(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestProgressHandlerListPages(t *testing.T) {
	t.Parallel()

	repo := &mockProgressRepo{
		jobs: map[string]crawler.Job{"job-1": {ID: "job-1", Status: crawler.JobStatusRunning}},
		pages: []crawler.PageRecord{
			{JobID: "job-1", URL: "https://example.com/", Bucket: "home", BlobURI: "memory://pages/job-1/a.html"},
			{JobID: "job-1", URL: "https://example.com/about", Bucket: "about"},
			{JobID: "job-1", URL: "https://example.com/services/seo", Bucket: "service"},
		},
	}
	handler := NewProgressHandler(repo, zap.NewNop())

	req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/crawls/job-1/pages?limit=2&offset=1", nil), "job-1")
	rec := httptest.NewRecorder()
	handler.ListPages(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Pages []crawler.PageRecord `json:"pages"`
		Total int                  `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 3, body.Total)
	require.Len(t, body.Pages, 2)
	require.Equal(t, "https://example.com/about", body.Pages[0].URL)
	require.Equal(t, "service", body.Pages[1].Bucket)

	req = withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/crawls/job-1/pages?offset=10", nil), "job-1")
	rec = httptest.NewRecorder()
	handler.ListPages(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"pages":[],"total":3}`, rec.Body.String())
}

func TestProgressHandlerListPagesErrors(t *testing.T) {
	t.Parallel()

	known := map[string]crawler.Job{"job-1": {ID: "job-1"}}
	cases := []struct {
		name   string
		repo   *mockProgressRepo
		target string
		want   int
	}{
		{name: "invalid limit", repo: &mockProgressRepo{jobs: known}, target: "?limit=-1", want: http.StatusBadRequest},
		{name: "invalid offset", repo: &mockProgressRepo{jobs: known}, target: "?offset=x", want: http.StatusBadRequest},
		{name: "unknown job", repo: &mockProgressRepo{}, target: "", want: http.StatusNotFound},
		{name: "list failure", repo: &mockProgressRepo{jobs: known, pagesErr: errors.New("boom")}, target: "", want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			handler := NewProgressHandler(tc.repo, nil)
			req := withJobIDParam(httptest.NewRequest(http.MethodGet, "/v1/crawls/job-1/pages"+tc.target, nil), "job-1")
			rec := httptest.NewRecorder()
			handler.ListPages(rec, req)
			require.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestParseLimitOffset(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/?limit=5000&offset=3", nil)
	limit, offset, err := parseLimitOffset(req, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 100, limit)
	require.Equal(t, 3, offset)

	limit, offset, err = parseLimitOffset(httptest.NewRequest(http.MethodGet, "/", nil), 10, 100)
	require.NoError(t, err)
	require.Equal(t, 10, limit)
	require.Zero(t, offset)

	_, _, err = parseLimitOffset(httptest.NewRequest(http.MethodGet, "/?limit=0", nil), 10, 100)
	require.EqualError(t, err, "invalid limit")
}

func TestProgressRoutesMountedOnServer(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, Config{})
	env.do(t, http.MethodPost, "/v1/crawls", `{"homepageUrl":"https://example.com/"}`)
	require.NoError(t, env.pages.RecordPage(context.Background(), crawler.PageRecord{
		JobID: "job-1",
		URL:   "https://example.com/",
		Title: "Home",
	}))

	rec := env.do(t, http.MethodGet, "/v1/crawls/job-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"pending"`)

	rec = env.do(t, http.MethodGet, "/v1/crawls/job-1/pages", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"title":"Home"`)

	require.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/v1/crawls/job-9/pages", "").Code)
}

type mockProgressRepo struct {
	jobs     map[string]crawler.Job
	pages    []crawler.PageRecord
	err      error
	pagesErr error
}

func (m *mockProgressRepo) GetJob(_ context.Context, jobID string) (crawler.Job, error) {
	if m.err != nil {
		return crawler.Job{}, m.err
	}
	job, ok := m.jobs[jobID]
	if !ok {
		return crawler.Job{}, crawler.ErrJobNotFound
	}
	return job, nil
}

func (m *mockProgressRepo) ListPages(context.Context, string) ([]crawler.PageRecord, error) {
	return m.pages, m.pagesErr
}

func withJobIDParam(r *http.Request, jobID string) *http.Request {
	ctx := chi.NewRouteContext()
	ctx.URLParams.Add("job_id", jobID)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, ctx))
}
