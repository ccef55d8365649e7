package fetcher

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
	"github.com/JakeFAU/site-discovery-crawler/internal/urlnorm"
)

// Extracted is everything read from one HTML document.
type Extracted struct {
	Title           string
	MetaDescription string
	CanonicalURL    string
	OutboundLinks   []string
	Signals         crawler.PageSignals
}

// Extract parses body as HTML served from pageURL. Relative references are
// resolved against the document base (a <base href> if present, else
// pageURL); the canonical URL and outbound links are kept only when they are
// on the same site as pageURL.
func Extract(pageURL string, body []byte) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Extracted{}, fmt.Errorf("parse html: %w", err)
	}

	base := documentBase(doc, pageURL)
	return Extracted{
		Title:           extractTitle(doc),
		MetaDescription: extractMetaDescription(doc),
		CanonicalURL:    extractCanonical(doc, base, pageURL),
		OutboundLinks:   extractLinks(doc, base, pageURL),
		Signals:         extractSignals(doc),
	}, nil
}

func documentBase(doc *goquery.Document, pageURL string) string {
	href, ok := doc.Find("base[href]").First().Attr("href")
	if !ok {
		return pageURL
	}
	if resolved, ok := urlnorm.ResolveLink(pageURL, href); ok {
		return resolved
	}
	return pageURL
}

// extractTitle prefers <title> and falls back to og:title.
func extractTitle(doc *goquery.Document) string {
	if title := collapse(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return metaContent(doc, "property", "og:title")
}

// extractMetaDescription returns the first non-blank description, falling
// back to og:description only when no usable description exists.
func extractMetaDescription(doc *goquery.Document) string {
	if desc := metaContent(doc, "name", "description"); desc != "" {
		return desc
	}
	if desc := metaContent(doc, "property", "og:description"); desc != "" {
		return desc
	}
	return metaContent(doc, "name", "og:description")
}

// extractCanonical reads the first link whose rel tokens include canonical.
// A missing or blank href means no canonical; later canonical links are not
// consulted. Malformed hrefs are resolved as relative paths before the
// same-site check.
func extractCanonical(doc *goquery.Document, base, pageURL string) string {
	var canonical string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !hasRelToken(s.AttrOr("rel", ""), "canonical") {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return false
		}
		resolved, ok := urlnorm.ResolveLink(base, href)
		if ok && urlnorm.IsSameSite(pageURL, resolved) {
			canonical = resolved
		}
		return false
	})
	return canonical
}

// extractLinks returns same-site anchors in document order, fragments
// removed, deduplicated by identity key.
func extractLinks(doc *goquery.Document, base, pageURL string) []string {
	seen := make(map[string]struct{})
	links := make([]string, 0)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		resolved, ok := urlnorm.ResolveLink(base, href)
		if !ok {
			return
		}
		resolved, _, _ = strings.Cut(resolved, "#")
		if !urlnorm.IsSameSite(pageURL, resolved) {
			return
		}
		key := urlnorm.IdentityKey(resolved)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		links = append(links, resolved)
	})
	return links
}

func extractSignals(doc *goquery.Document) crawler.PageSignals {
	return crawler.PageSignals{
		OGType:        strings.ToLower(metaContent(doc, "property", "og:type")),
		HasArticleTag: doc.Find("article").Length() > 0,
		PublishedTime: metaContent(doc, "property", "article:published_time"),
		Heading:       collapse(doc.Find("h1").First().Text()),
	}
}

// metaContent returns the trimmed content of the first <meta> whose attr
// equals value case-insensitively and whose content is not blank.
func metaContent(doc *goquery.Document, attr, value string) string {
	var content string
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr(attr, "")), value) {
			return true
		}
		if c := strings.TrimSpace(s.AttrOr("content", "")); c != "" {
			content = c
			return false
		}
		return true
	})
	return content
}

func hasRelToken(rel, token string) bool {
	for _, t := range strings.Fields(rel) {
		if strings.EqualFold(t, token) {
			return true
		}
	}
	return false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
