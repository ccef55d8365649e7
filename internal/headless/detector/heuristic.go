// Package detector decides when a crawled page must be re-fetched in a
// headless browser.
package detector

import (
	"bytes"
	"mime"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

const (
	defaultBodyThreshold = 2048
	defaultMinAnchors    = 3
	// scriptSharePercent is the inline-script share of a small body above
	// which the page is assumed to build its DOM client-side.
	scriptSharePercent = 25
	// mountTextLimit is the visible text under an app mount point below which
	// the mount point is considered empty.
	mountTextLimit = 40
)

// mountPoints are the root elements client-side frameworks render into.
const mountPoints = `#root, #app, #__next, #__nuxt, [data-reactroot], [ng-version], app-root`

// Heuristic promotes pages that look client-rendered: an empty body, a small
// body dominated by inline script, or an empty app mount point. A page that
// already exposes enough links to keep discovery going is never promoted.
type Heuristic struct {
	BodyLengthThreshold int
	MinAnchors          int
}

// NewHeuristic creates a new detector. Zero values select the defaults.
func NewHeuristic(threshold, minAnchors int) *Heuristic {
	if threshold == 0 {
		threshold = defaultBodyThreshold
	}
	if minAnchors == 0 {
		minAnchors = defaultMinAnchors
	}
	return &Heuristic{BodyLengthThreshold: threshold, MinAnchors: minAnchors}
}

// ShouldPromote decides whether a headless fetch is required.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.StatusCode < 200 || resp.StatusCode > 299 || !isHTML(resp.Headers.Get("Content-Type")) {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}
	if doc.Find("a[href]").Length() >= h.MinAnchors {
		return false
	}
	if len(body) < h.BodyLengthThreshold && inlineScriptShare(doc, len(body)) >= scriptSharePercent {
		return true
	}
	return hasEmptyMountPoint(doc) || asksForJavaScript(doc)
}

// isHTML accepts a missing content type; some servers omit it.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	media, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return media == "text/html" || media == "application/xhtml+xml"
}

func inlineScriptShare(doc *goquery.Document, total int) int {
	if total == 0 {
		return 0
	}
	script := 0
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		script += len(s.Text())
		if src, ok := s.Attr("src"); ok {
			script += len(src)
		}
	})
	return script * 100 / total
}

func hasEmptyMountPoint(doc *goquery.Document) bool {
	empty := false
	doc.Find(mountPoints).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(strings.TrimSpace(s.Text())) < mountTextLimit {
			empty = true
			return false
		}
		return true
	})
	return empty
}

func asksForJavaScript(doc *goquery.Document) bool {
	text := strings.ToLower(doc.Find("noscript").Text())
	return strings.Contains(text, "enable javascript") || strings.Contains(text, "requires javascript")
}
