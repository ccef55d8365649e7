package fetcher

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const testPage = "https://example.com/test-page"

func extract(t *testing.T, html string) Extracted {
	t.Helper()
	out, err := Extract(testPage, []byte(html))
	require.NoError(t, err)
	return out
}

func TestExtractCanonical(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		head string
		want string
	}{
		{"relative canonical", `<link rel="canonical" href="/relative-canonical">`, "https://example.com/relative-canonical"},
		{"absolute same site", `<link rel="canonical" href="https://example.com/a?b=1">`, "https://example.com/a?b=1"},
		{"first wins", `<link rel="canonical" href="/first"><link rel="canonical" href="/second">`, "https://example.com/first"},
		{"rel case-insensitive", `<link rel="CANONICAL" href="/upper">`, "https://example.com/upper"},
		{"rel token list", `<link rel="alternate canonical" href="/tokens">`, "https://example.com/tokens"},
		{"missing href", `<link rel="canonical">`, ""},
		{"empty href", `<link rel="canonical" href="">`, ""},
		{"blank href", `<link rel="canonical" href="   ">`, ""},
		{"empty first blocks later", `<link rel="canonical" href=""><link rel="canonical" href="/later">`, ""},
		{"different scheme rejected", `<link rel="canonical" href="http://example.com/test-page">`, ""},
		{"different port rejected", `<link rel="canonical" href="https://example.com:8443/test-page">`, ""},
		{"subdomain rejected", `<link rel="canonical" href="https://www.example.com/test-page">`, ""},
		{"cross site rejected", `<link rel="canonical" href="https://other.example/test-page">`, ""},
		{"non canonical link ignored", `<link rel="stylesheet" href="/style.css">`, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extract(t, "<html><head>"+tc.head+"</head><body></body></html>")
			require.Equal(t, tc.want, got.CanonicalURL)
		})
	}
}

func TestExtractCanonicalMalformedHrefIsResolved(t *testing.T) {
	t.Parallel()

	got := extract(t, `<html><head><link rel="canonical" href="not a valid url!!!"></head></html>`)
	require.Equal(t, "https://example.com/not%20a%20valid%20url!!!", got.CanonicalURL)
}

func TestExtractMetaDescription(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		head string
		want string
	}{
		{"trimmed", `<meta name="description" content="  text  ">`, "text"},
		{"name case-insensitive", `<meta NAME="Description" content="upper">`, "upper"},
		{"first wins", `<meta name="description" content="one"><meta name="description" content="two">`, "one"},
		{"og fallback when absent", `<meta property="og:description" content=" og text ">`, "og text"},
		{"og fallback when blank", `<meta name="description" content="   "><meta property="og:description" content="og">`, "og"},
		{"description preferred over og", `<meta property="og:description" content="og"><meta name="description" content="plain">`, "plain"},
		{"blank description skipped for later one", `<meta name="description" content=""><meta name="description" content="second">`, "second"},
		{"none", `<meta name="keywords" content="a,b">`, ""},
		{"blank everywhere", `<meta name="description" content=" "><meta property="og:description" content="">`, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := extract(t, "<html><head>"+tc.head+"</head><body></body></html>")
			require.Equal(t, tc.want, got.MetaDescription)
		})
	}
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Acme Widgets", extract(t, "<title>\n  Acme   Widgets \n</title>").Title)
	require.Equal(t, "From OG", extract(t, `<head><meta property="og:title" content="From OG"></head>`).Title)
	require.Empty(t, extract(t, "<p>no title</p>").Title)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
		<a href="/about">About</a>
		<a href="/about#team">About again</a>
		<a href="/about/">About slash</a>
		<a href="services">Services</a>
		<a href="https://example.com/blog?utm_source=x">Blog</a>
		<a href="https://example.com/blog">Blog plain</a>
		<a href="https://www.example.com/other">Subdomain</a>
		<a href="https://twitter.com/acme">Social</a>
		<a href="mailto:hi@example.com">Mail</a>
		<a href="javascript:void(0)">JS</a>
		<a href="">Empty</a>
		<a href="#top">Top</a>
		<a>No href</a>
	</body></html>`

	got := extract(t, html)
	require.Equal(t, []string{
		"https://example.com/about",
		"https://example.com/services",
		"https://example.com/blog?utm_source=x",
		"https://example.com/test-page",
	}, got.OutboundLinks)
}

func TestExtractHonoursBaseHref(t *testing.T) {
	t.Parallel()

	html := `<html><head><base href="/docs/"><link rel="canonical" href="intro"></head>
		<body><a href="guide">Guide</a></body></html>`
	got := extract(t, html)
	require.Equal(t, "https://example.com/docs/intro", got.CanonicalURL)
	require.Equal(t, []string{"https://example.com/docs/guide"}, got.OutboundLinks)
}

func TestExtractSignals(t *testing.T) {
	t.Parallel()

	html := `<html><head>
		<meta property="og:type" content="Article">
		<meta property="article:published_time" content="2024-03-01T10:00:00Z">
	</head><body><h1>  Spring   launch </h1><article><p>Body</p></article></body></html>`

	got := extract(t, html).Signals
	require.Equal(t, "article", got.OGType)
	require.Equal(t, "2024-03-01T10:00:00Z", got.PublishedTime)
	require.Equal(t, "Spring launch", got.Heading)
	require.True(t, got.HasArticleTag)
	require.True(t, got.LooksLikeArticle())

	plain := extract(t, "<html><body><h1>Services</h1></body></html>").Signals
	require.False(t, plain.LooksLikeArticle())
}

func TestExtractToleratesBrokenMarkup(t *testing.T) {
	t.Parallel()

	got := extract(t, `<html><head><title>Broken<body><a href="/x">x<div><a href="/y">`)
	require.NotNil(t, got.OutboundLinks)
}
