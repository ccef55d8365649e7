package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// PageIndex keeps page records per job in insertion order.
type PageIndex struct {
	mu    sync.RWMutex
	pages map[string][]crawler.PageRecord
}

// NewPageIndex constructs an empty PageIndex.
func NewPageIndex() *PageIndex {
	return &PageIndex{pages: make(map[string][]crawler.PageRecord)}
}

// RecordPage appends record, replacing an earlier record for the same URL.
func (p *PageIndex) RecordPage(_ context.Context, record crawler.PageRecord) error {
	if record.JobID == "" || record.URL == "" {
		return fmt.Errorf("page record requires job id and url")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	records := p.pages[record.JobID]
	for i := range records {
		if records[i].URL == record.URL {
			records[i] = record
			return nil
		}
	}
	p.pages[record.JobID] = append(records, record)
	return nil
}

// ListPages returns a copy of the job's records.
func (p *PageIndex) ListPages(_ context.Context, jobID string) ([]crawler.PageRecord, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]crawler.PageRecord{}, p.pages[jobID]...), nil
}
