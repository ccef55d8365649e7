package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

func TestRecordPage(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := crawler.PageRecord{
		JobID:       "job",
		URL:         "https://example.com/about",
		FinalURL:    "https://example.com/about/",
		Title:       "About",
		ContentHash: "abc",
		Bucket:      "about",
		HTTPStatus:  200,
		BlobURI:     "gs://pages/job/abc.html",
		FetchedAt:   fetched,
	}
	mock.ExpectExec("INSERT INTO crawl_pages").
		WithArgs("job", "https://example.com/about", "https://example.com/about/", "", "About", "",
			"abc", "about", 200, "gs://pages/job/abc.html", fetched).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordPage(context.Background(), rec))
	require.Error(t, store.RecordPage(context.Background(), crawler.PageRecord{}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPages(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	fetched := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("SELECT job_id, url").
		WithArgs("job").
		WillReturnRows(pgxmock.NewRows([]string{
			"job_id", "url", "final_url", "canonical_url", "title", "meta_description",
			"content_hash", "bucket", "http_status", "blob_uri", "fetched_at",
		}).AddRow("job", "https://example.com/", "https://example.com/", "", "Home", "Welcome",
			"h1", "home", 200, "", fetched))

	pages, err := store.ListPages(context.Background(), "job")
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "home", pages[0].Bucket)
	require.Equal(t, "Welcome", pages[0].MetaDescription)
	require.NoError(t, mock.ExpectationsWereMet())
}
