package frontier

import (
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

// Bucket names the role a page was classified into.
type Bucket string

// Bucket values. BucketNone pages are still crawled for link discovery.
const (
	BucketHome    Bucket = "home"
	BucketAbout   Bucket = "about"
	BucketService Bucket = "service"
	BucketBlog    Bucket = "blog"
	BucketNone    Bucket = "none"
)

// Default bucket caps.
const (
	DefaultMaxServicePages = 10
	DefaultMaxBlogArticles = 20
)

var aboutSegments = set("who-we-are", "our-story", "company", "our-company")

var serviceSegments = set("services", "service", "products", "product", "solutions",
	"offerings", "shop", "store", "collections")

var blogSegments = set("blog", "blogs", "news", "articles", "article", "insights",
	"posts", "post", "journal", "stories")

var listingSegments = set("tag", "tags", "category", "categories", "page", "author", "archive", "archives")

// Candidate is what the rules look at: the page's path shape plus its
// on-page signals.
type Candidate struct {
	URL      string
	Segments []string
	Signals  crawler.PageSignals
	IsSeed   bool
}

// NewCandidate derives a Candidate from a crawled page, classifying it by its
// identity URL so a canonical declaration wins over the requested path.
func NewCandidate(page crawler.CrawledPage, isSeed bool) Candidate {
	return Candidate{
		URL:      page.IdentityURL(),
		Segments: pathSegments(page.IdentityURL()),
		Signals:  page.Signals,
		IsSeed:   isSeed,
	}
}

// Rule is one entry of the ordered classification list.
type Rule interface {
	Bucket() Bucket
	Match(c Candidate) bool
}

// HomeRule matches the crawl seed.
type HomeRule struct{}

// Bucket implements Rule.
func (HomeRule) Bucket() Bucket { return BucketHome }

// Match implements Rule.
func (HomeRule) Match(c Candidate) bool { return c.IsSeed }

// AboutRule matches paths with an about-shaped segment.
type AboutRule struct{}

// Bucket implements Rule.
func (AboutRule) Bucket() Bucket { return BucketAbout }

// Match implements Rule.
func (AboutRule) Match(c Candidate) bool {
	for _, seg := range c.Segments {
		if strings.HasPrefix(seg, "about") || aboutSegments[seg] {
			return true
		}
	}
	return false
}

// ServiceRule matches product and service paths. When the path is also
// blog-shaped, article markup hands the page to BlogRule instead.
type ServiceRule struct{}

// Bucket implements Rule.
func (ServiceRule) Bucket() Bucket { return BucketService }

// Match implements Rule.
func (ServiceRule) Match(c Candidate) bool {
	if segmentIndex(c.Segments, serviceSegments) < 0 {
		return false
	}
	return !(blogShaped(c.Segments) && c.Signals.LooksLikeArticle())
}

// BlogRule matches individual articles: a path below a blog-shaped segment,
// a dated slug, or a blog index that declares itself an article. Tag,
// category, and pagination listings never match.
type BlogRule struct{}

// Bucket implements Rule.
func (BlogRule) Bucket() Bucket { return BucketBlog }

// Match implements Rule.
func (BlogRule) Match(c Candidate) bool {
	if isListing(c.Segments) {
		return false
	}
	if datedSlug(c.Segments) {
		return true
	}
	idx := segmentIndex(c.Segments, blogSegments)
	if idx < 0 {
		return false
	}
	if len(c.Segments) > idx+1 {
		return true
	}
	return c.Signals.OGType == "article" || c.Signals.PublishedTime != ""
}

// NoneRule matches everything; it terminates the list.
type NoneRule struct{}

// Bucket implements Rule.
func (NoneRule) Bucket() Bucket { return BucketNone }

// Match implements Rule.
func (NoneRule) Match(Candidate) bool { return true }

// DefaultRules is the precedence used by the scheduler.
func DefaultRules() []Rule {
	return []Rule{HomeRule{}, AboutRule{}, ServiceRule{}, BlogRule{}, NoneRule{}}
}

// Classifier applies rules in order and fills buckets. The first matching
// rule decides; a full service or blog bucket, or a second seed, leaves the
// page unplaced rather than falling through to a later rule.
type Classifier struct {
	rules           []Rule
	maxServicePages int
	maxBlogArticles int
}

// NewClassifier builds a Classifier. Non-positive caps select the defaults.
func NewClassifier(rules []Rule, maxServicePages, maxBlogArticles int) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	if maxServicePages <= 0 {
		maxServicePages = DefaultMaxServicePages
	}
	if maxBlogArticles <= 0 {
		maxBlogArticles = DefaultMaxBlogArticles
	}
	return &Classifier{rules: rules, maxServicePages: maxServicePages, maxBlogArticles: maxBlogArticles}
}

// Classify returns the bucket of the first matching rule.
func (c *Classifier) Classify(cand Candidate) Bucket {
	for _, r := range c.rules {
		if r.Match(cand) {
			return r.Bucket()
		}
	}
	return BucketNone
}

// Assign classifies cand and records it in b. reportURL is what the bucket
// stores. It returns the bucket the page landed in, which is BucketNone when
// the matching bucket was already full. An already-filled about page does not
// absorb later matches: the page is offered to the rules after AboutRule, so
// /company/products/x still counts as a product once /company is taken.
func (c *Classifier) Assign(b *crawler.Buckets, cand Candidate, reportURL string) Bucket {
	for _, r := range c.rules {
		if !r.Match(cand) {
			continue
		}
		bucket := r.Bucket()
		if bucket == BucketAbout && b.AboutPage != "" {
			continue
		}
		return c.place(b, bucket, reportURL)
	}
	return BucketNone
}

func (c *Classifier) place(b *crawler.Buckets, bucket Bucket, reportURL string) Bucket {
	switch bucket {
	case BucketHome:
		if b.HomePage == "" {
			b.HomePage = reportURL
			return BucketHome
		}
	case BucketAbout:
		b.AboutPage = reportURL
		return BucketAbout
	case BucketService:
		if len(b.ServicePages) < c.maxServicePages {
			b.ServicePages = append(b.ServicePages, reportURL)
			return BucketService
		}
	case BucketBlog:
		if len(b.BlogArticles) < c.maxBlogArticles {
			b.BlogArticles = append(b.BlogArticles, reportURL)
			return BucketBlog
		}
	}
	return BucketNone
}

func pathSegments(rawURL string) []string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	var segs []string
	for _, s := range strings.Split(strings.ToLower(u.Path), "/") {
		if s == "" {
			continue
		}
		if ext := path.Ext(s); ext == ".html" || ext == ".htm" || ext == ".php" || ext == ".aspx" {
			s = strings.TrimSuffix(s, ext)
		}
		segs = append(segs, s)
	}
	return segs
}

func segmentIndex(segs []string, words map[string]bool) int {
	for i, s := range segs {
		if words[s] {
			return i
		}
	}
	return -1
}

func blogShaped(segs []string) bool {
	return segmentIndex(segs, blogSegments) >= 0 || datedSlug(segs)
}

func isListing(segs []string) bool {
	for _, s := range segs {
		if listingSegments[s] {
			return true
		}
	}
	return false
}

// datedSlug matches /2024/05/slug style permalinks.
func datedSlug(segs []string) bool {
	for i, s := range segs {
		if isYear(s) && i+1 < len(segs) && !allDigits(segs[len(segs)-1]) {
			return true
		}
	}
	return false
}

func isYear(s string) bool {
	return len(s) == 4 && allDigits(s) && (strings.HasPrefix(s, "19") || strings.HasPrefix(s, "20"))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func set(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
