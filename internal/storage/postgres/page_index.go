package postgres

import (
	"context"
	"fmt"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// RecordPage upserts one crawled page of a job.
func (s *Store) RecordPage(ctx context.Context, record crawler.PageRecord) error {
	if record.JobID == "" || record.URL == "" {
		return fmt.Errorf("page record requires job id and url")
	}
	query := fmt.Sprintf(`INSERT INTO %s (
	job_id, url, final_url, canonical_url, title, meta_description,
	content_hash, bucket, http_status, blob_uri, fetched_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (job_id, url) DO UPDATE SET
	final_url = EXCLUDED.final_url,
	canonical_url = EXCLUDED.canonical_url,
	title = EXCLUDED.title,
	meta_description = EXCLUDED.meta_description,
	content_hash = EXCLUDED.content_hash,
	bucket = EXCLUDED.bucket,
	http_status = EXCLUDED.http_status,
	blob_uri = EXCLUDED.blob_uri,
	fetched_at = EXCLUDED.fetched_at`, s.pages)
	if _, err := s.db.Exec(ctx, query,
		record.JobID,
		record.URL,
		record.FinalURL,
		record.CanonicalURL,
		record.Title,
		record.MetaDescription,
		record.ContentHash,
		record.Bucket,
		record.HTTPStatus,
		record.BlobURI,
		record.FetchedAt,
	); err != nil {
		return fmt.Errorf("insert page %s: %w", record.URL, err)
	}
	return nil
}

// ListPages returns the indexed pages of a job in fetch order.
func (s *Store) ListPages(ctx context.Context, jobID string) ([]crawler.PageRecord, error) {
	query := fmt.Sprintf(`SELECT job_id, url, final_url, canonical_url, title, meta_description,
	content_hash, bucket, http_status, blob_uri, fetched_at
FROM %s WHERE job_id = $1 ORDER BY fetched_at, url`, s.pages)
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list pages %s: %w", jobID, err)
	}
	defer rows.Close()

	records := []crawler.PageRecord{}
	for rows.Next() {
		var rec crawler.PageRecord
		if err := rows.Scan(
			&rec.JobID,
			&rec.URL,
			&rec.FinalURL,
			&rec.CanonicalURL,
			&rec.Title,
			&rec.MetaDescription,
			&rec.ContentHash,
			&rec.Bucket,
			&rec.HTTPStatus,
			&rec.BlobURI,
			&rec.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan page row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pages %s: %w", jobID, err)
	}
	return records, nil
}
