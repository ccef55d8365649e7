// Package urlnorm decides same-site membership, builds the identity keys used
// for deduplication, and resolves hrefs the way browsers do.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"
)

// trackingParams lists query parameters stripped from identity keys. They are
// advertising and analytics markers that never change the page served.
var trackingParams = map[string]struct{}{
	"fbclid":  {},
	"gclid":   {},
	"gclsrc":  {},
	"dclid":   {},
	"msclkid": {},
	"mc_cid":  {},
	"mc_eid":  {},
}

// defaultPorts maps schemes to their implicit port.
var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// urlParser follows the WHATWG URL standard. A lone '%' is encoded as %25
// rather than failing the parse.
var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

var (
	errEmptyInput          = errors.New("normalize url: empty input")
	errMissingSchemeOrHost = errors.New("normalize url: missing scheme or host")
)

// Site is the (scheme, host, port) tuple two URLs must share to be same-site.
type Site struct {
	Scheme string
	Host   string
	Port   string
}

// String renders the site as an origin, omitting a default port.
func (s Site) String() string {
	host := s.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	if s.Port != "" && defaultPorts[s.Scheme] != s.Port {
		host = net.JoinHostPort(s.Host, s.Port)
	}
	return s.Scheme + "://" + host
}

// SiteOf extracts the site identity of an absolute URL.
func SiteOf(rawURL string) (Site, error) {
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return Site{}, err
	}
	scheme := u.Scheme()
	port := u.Port()
	if port == "" {
		port = defaultPorts[scheme]
	}
	return Site{
		Scheme: scheme,
		Host:   strings.Trim(u.Hostname(), "[]"),
		Port:   port,
	}, nil
}

// IsSameSite reports whether a and b share scheme, hostname, and effective
// port. Subdomains are distinct sites. Malformed or relative input is never
// same-site.
func IsSameSite(a, b string) bool {
	siteA, err := SiteOf(a)
	if err != nil {
		return false
	}
	siteB, err := SiteOf(b)
	if err != nil {
		return false
	}
	return siteA == siteB
}

// NormalizeForIdentity returns the key used for visited-set and duplicate
// checks. Parsing lowercases scheme and host, drops the default port and
// resolves dot segments; on top of that the fragment and one trailing slash on
// non-root paths are dropped, tracking parameters are stripped, and the
// remaining query pairs are stable-sorted by key. Empty path segments, pair
// encoding and the order of repeated keys are preserved.
func NormalizeForIdentity(rawURL string) (string, error) {
	if strings.TrimSpace(rawURL) == "" {
		return "", errEmptyInput
	}
	u, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(u.Scheme())
	b.WriteString("://")
	if user := u.Username(); user != "" || u.Password() != "" {
		b.WriteString(user)
		if pass := u.Password(); pass != "" {
			b.WriteByte(':')
			b.WriteString(pass)
		}
		b.WriteByte('@')
	}
	b.WriteString(u.Host())
	b.WriteString(trimTrailingSlash(u.Pathname()))
	if q := cleanQuery(u.Query()); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String(), nil
}

// IdentityKey is NormalizeForIdentity for callers that need a key even for
// URLs that fail to parse; such URLs key on their trimmed raw text.
func IdentityKey(rawURL string) string {
	key, err := NormalizeForIdentity(rawURL)
	if err != nil {
		return strings.TrimSpace(rawURL)
	}
	return key
}

// ResolveLink resolves href against base the way a browser resolves an
// anchor: surrounding whitespace is trimmed, embedded tabs and newlines are
// removed, backslashes act as slashes, and characters a URL cannot carry are
// percent-encoded instead of failing the link. An empty href, or a base that
// is not absolute, yields false.
func ResolveLink(base, href string) (string, bool) {
	if strings.TrimFunc(href, func(r rune) bool { return r <= ' ' }) == "" {
		return "", false
	}
	baseURL, err := parseAbsolute(base)
	if err != nil {
		return "", false
	}
	resolved, err := baseURL.Parse(href)
	if err != nil {
		return "", false
	}
	return resolved.Href(false), true
}

func parseAbsolute(rawURL string) (*whatwgUrl.Url, error) {
	u, err := urlParser.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("normalize url: %w", err)
	}
	if u.OpaquePath() || u.Hostname() == "" {
		return nil, errMissingSchemeOrHost
	}
	return u, nil
}

func trimTrailingSlash(p string) string {
	if len(p) <= 1 {
		return "/"
	}
	return strings.TrimSuffix(p, "/")
}

type queryPair struct {
	key string
	raw string
}

func cleanQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	parts := strings.Split(rawQuery, "&")
	pairs := make([]queryPair, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		rawKey, _, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			key = rawKey
		}
		if isTrackingParam(key) {
			continue
		}
		pairs = append(pairs, queryPair{key: key, raw: part})
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].key < pairs[j].key })

	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.raw
	}
	return strings.Join(out, "&")
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if strings.HasPrefix(key, "utm_") {
		return true
	}
	_, ok := trackingParams[key]
	return ok
}
