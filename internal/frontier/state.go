package frontier

import (
	"fmt"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/urlnorm"
)

// State is the frontier of one crawl: the FIFO of pending URLs, the visited
// and seen-on-enqueue sets, and the duplicate-content index. It belongs to a
// single Run and is not safe for concurrent use.
type State struct {
	site       urlnorm.Site
	seed       string
	exclusions *Exclusions

	queue      []string
	visited    map[string]struct{}
	seen       map[string]struct{}
	identities map[string]struct{}
	hashes     map[string]struct{}

	pagesCrawled int
	failed       int
	excluded     int
	duplicates   int
}

// NewState seeds a frontier with the homepage. The seed is queued even when
// an exclusion matches it so the pop-time check accounts for it.
func NewState(seed string, exclusions *Exclusions) (*State, error) {
	site, err := urlnorm.SiteOf(seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", crawler.ErrInvalidHomepage, err)
	}
	key := urlnorm.IdentityKey(seed)
	return &State{
		site:       site,
		seed:       seed,
		exclusions: exclusions,
		queue:      []string{seed},
		visited:    make(map[string]struct{}),
		seen:       map[string]struct{}{key: {}},
		identities: make(map[string]struct{}),
		hashes:     make(map[string]struct{}),
	}, nil
}

// Site is the origin the crawl is confined to.
func (s *State) Site() urlnorm.Site { return s.site }

// Seed returns the homepage the frontier was built from.
func (s *State) Seed() string { return s.seed }

// Reanchor moves the crawl's site to the origin of finalURL. It is used when
// the homepage redirects to another origin.
func (s *State) Reanchor(finalURL string) bool {
	site, err := urlnorm.SiteOf(finalURL)
	if err != nil || site == s.site {
		return false
	}
	s.site = site
	return true
}

// InSite reports whether rawURL belongs to the crawl's site.
func (s *State) InSite(rawURL string) bool {
	site, err := urlnorm.SiteOf(rawURL)
	return err == nil && site == s.site
}

// Excluded reports whether an exclusion pattern matches rawURL.
func (s *State) Excluded(rawURL string) bool {
	return s.exclusions.Match(rawURL)
}

// Push enqueues rawURL unless it is off-site, already seen or visited, or
// excluded. Excluded URLs are counted once and remembered so repeated
// inbound links do not count again.
func (s *State) Push(rawURL string) bool {
	if !s.InSite(rawURL) {
		return false
	}
	key := urlnorm.IdentityKey(rawURL)
	if _, ok := s.seen[key]; ok {
		return false
	}
	if _, ok := s.visited[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	if s.Excluded(rawURL) {
		s.excluded++
		return false
	}
	s.queue = append(s.queue, rawURL)
	return true
}

// Pop removes the earliest queued URL.
func (s *State) Pop() (string, bool) {
	if len(s.queue) == 0 {
		return "", false
	}
	next := s.queue[0]
	s.queue[0] = ""
	s.queue = s.queue[1:]
	return next, true
}

// Queued is the number of URLs waiting to be popped.
func (s *State) Queued() int { return len(s.queue) }

// Visited reports whether rawURL's identity has been fetched or claimed.
func (s *State) Visited(rawURL string) bool {
	_, ok := s.visited[urlnorm.IdentityKey(rawURL)]
	return ok
}

// MarkVisited records rawURL's identity. It returns false if it was already
// visited.
func (s *State) MarkVisited(rawURL string) bool {
	key := urlnorm.IdentityKey(rawURL)
	if _, ok := s.visited[key]; ok {
		return false
	}
	s.visited[key] = struct{}{}
	return true
}

// HasCandidates reports whether a queued URL would still be fetched.
func (s *State) HasCandidates() bool {
	for _, u := range s.queue {
		if !s.Excluded(u) && !s.Visited(u) {
			return true
		}
	}
	return false
}

// RecordPage counts a fetched page and reports whether it duplicates an
// earlier one by identity URL or content hash. Unique pages are indexed.
func (s *State) RecordPage(page crawler.CrawledPage) (duplicate bool) {
	s.pagesCrawled++
	identity := urlnorm.IdentityKey(page.IdentityURL())
	_, sameIdentity := s.identities[identity]
	_, sameContent := s.hashes[page.ContentHash]
	if sameIdentity || (page.ContentHash != "" && sameContent) {
		s.duplicates++
		return true
	}
	s.identities[identity] = struct{}{}
	if page.ContentHash != "" {
		s.hashes[page.ContentHash] = struct{}{}
	}
	return false
}

// RecordFailure counts a page that could not be fetched.
func (s *State) RecordFailure() { s.failed++ }

// RecordExcluded counts a URL dropped at pop time by an exclusion pattern.
func (s *State) RecordExcluded() { s.excluded++ }

// PagesCrawled is the number of pages fetched successfully.
func (s *State) PagesCrawled() int { return s.pagesCrawled }

// Stats snapshots the counters.
func (s *State) Stats() crawler.Stats {
	return crawler.Stats{
		PagesFailed:   s.failed,
		PagesExcluded: s.excluded,
		Duplicates:    s.duplicates,
	}
}
