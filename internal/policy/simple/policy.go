// Package simple caps how many pages of one crawl may be rendered headless.
package simple

import "sync"

// Policy grants headless renders per job until the job's budget is spent.
// A non-positive budget allows every render.
type Policy struct {
	mu        sync.Mutex
	maxPerJob int
	used      map[string]int
}

// New creates a new Policy.
func New(maxPerJob int) *Policy {
	return &Policy{
		maxPerJob: maxPerJob,
		used:      make(map[string]int),
	}
}

// AllowHeadless reports whether jobID may render one more page, consuming a
// unit of budget when it may.
func (p *Policy) AllowHeadless(jobID, _ string) bool {
	if p.maxPerJob <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.used[jobID] >= p.maxPerJob {
		return false
	}
	p.used[jobID]++
	return true
}

// Used reports how many renders jobID has consumed.
func (p *Policy) Used(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.used[jobID]
}

// Forget drops the job's accounting once it finishes.
func (p *Policy) Forget(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.used, jobID)
}
