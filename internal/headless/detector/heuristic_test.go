package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-discovery-crawler/internal/crawler"
)

func TestHeuristicDefaults(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(0, 0)
	require.Equal(t, 2048, h.BodyLengthThreshold)
	require.Equal(t, 3, h.MinAnchors)
}

func TestHeuristicShouldPromote(t *testing.T) {
	t.Parallel()

	navLinks := `<a href="/about">About</a><a href="/services">Services</a><a href="/blog">Blog</a>`
	padding := strings.Repeat(" ", 3000)
	longCopy := strings.Repeat("We build furniture by hand. ", 5)
	testCases := []struct {
		name        string
		status      int
		contentType string
		body        string
		want        bool
	}{
		{name: "empty body", status: 200, body: "", want: true},
		{name: "whitespace body", status: 200, body: "  \n ", want: true},
		{name: "spa shell without links", status: 200, body: `<html><body><div id="__next"></div>` + padding + `</body></html>`, want: true},
		{name: "server rendered spa with nav", status: 200, body: `<html><body><div id="__next">` + navLinks + `</div>` + padding + `</body></html>`, want: false},
		{name: "mount point with content", status: 200, body: `<html><body><div id="app"><h1>Acme</h1><p>` + longCopy + `</p></div>` + padding + `</body></html>`, want: false},
		{name: "script heavy small page", status: 200, body: `<html><script>window.__STATE__={"a":1,"b":2,"c":3};</script><p>t</p></html>`, want: true},
		{name: "noscript warning", status: 200, body: `<html><body><noscript>Please enable JavaScript to continue.</noscript><p>` + longCopy + `</p></body></html>` + padding, want: true},
		{name: "plain page", status: 200, body: `<html><body><h1>Hello</h1>` + navLinks + `</body></html>` + padding, want: false},
		{name: "plain page few links", status: 200, body: `<html><body><h1>Hello</h1><p>` + longCopy + `</p></body></html>`, want: false},
		{name: "not html", status: 200, contentType: "application/json", body: "", want: false},
		{name: "html with charset", status: 200, contentType: "text/html; charset=utf-8", body: `<div id="root"></div>`, want: true},
		{name: "not found", status: 404, body: "", want: false},
		{name: "server error", status: 500, body: `<div id="root"></div>`, want: false},
	}

	h := NewHeuristic(1000, 3)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resp := crawler.FetchResponse{StatusCode: tc.status, Body: []byte(tc.body), Headers: http.Header{}}
			if tc.contentType != "" {
				resp.Headers.Set("Content-Type", tc.contentType)
			}
			require.Equal(t, tc.want, h.ShouldPromote(resp))
		})
	}
}

func TestIsHTML(t *testing.T) {
	t.Parallel()

	require.True(t, isHTML(""))
	require.True(t, isHTML("text/html"))
	require.True(t, isHTML("application/xhtml+xml"))
	require.False(t, isHTML("image/png"))
	require.False(t, isHTML(";;"))
}
