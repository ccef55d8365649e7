package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsSameSite(t *testing.T) {
	t.Parallel()

	base := "https://example.com/test-page"
	testCases := []struct {
		name  string
		other string
		want  bool
	}{
		{"same origin other path", "https://example.com/other?q=1#frag", true},
		{"host case differs", "https://EXAMPLE.com/", true},
		{"explicit default port", "https://example.com:443/x", true},
		{"different scheme", "http://example.com/test-page", false},
		{"different port", "https://example.com:8443/test-page", false},
		{"subdomain", "https://www.example.com/test-page", false},
		{"different host", "https://example.org/test-page", false},
		{"relative", "/test-page", false},
		{"malformed", "https://exa mple.com/%zz", false},
		{"empty", "", false},
		{"mailto", "mailto:team@example.com", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, IsSameSite(base, tc.other))
			require.Equal(t, tc.want, IsSameSite(tc.other, base), "same-site must be symmetric")
		})
	}
}

func TestIsSameSiteHTTPDefaultPort(t *testing.T) {
	t.Parallel()

	require.True(t, IsSameSite("http://example.com:80/a", "http://example.com/b"))
	require.False(t, IsSameSite("http://example.com:443/a", "https://example.com/b"))
}

func TestSiteString(t *testing.T) {
	t.Parallel()

	site, err := SiteOf("HTTPS://Example.COM:443/path")
	require.NoError(t, err)
	require.Equal(t, Site{Scheme: "https", Host: "example.com", Port: "443"}, site)
	require.Equal(t, "https://example.com", site.String())

	site, err = SiteOf("http://example.com:8080/")
	require.NoError(t, err)
	require.Equal(t, "http://example.com:8080", site.String())

	_, err = SiteOf("/relative")
	require.Error(t, err)
}

func TestNormalizeForIdentity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"drops default https port", "https://example.com:443/a", "https://example.com/a"},
		{"drops default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "https://example.com:8443/a", "https://example.com:8443/a"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"empty path becomes root", "https://example.com", "https://example.com/"},
		{"root stays root", "https://example.com/", "https://example.com/"},
		{"trailing slash collapsed", "https://example.com/about/", "https://example.com/about"},
		{"dot segments", "https://example.com/a/./b/../c", "https://example.com/a/c"},
		{"tracking params stripped", "https://example.com/a?utm_source=x&id=3&fbclid=y", "https://example.com/a?id=3"},
		{"only tracking params", "https://example.com/a?utm_medium=email&gclid=1", "https://example.com/a"},
		{"query sorted by key", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"repeated keys keep order", "https://example.com/a?tag=z&a=1&tag=y", "https://example.com/a?a=1&tag=z&tag=y"},
		{"query encoding preserved", "https://example.com/a?q=hello%20world", "https://example.com/a?q=hello%20world"},
		{"path encoding preserved", "https://example.com/caf%C3%A9", "https://example.com/caf%C3%A9"},
		{"raw unicode path encoded", "https://example.com/caf\u00e9", "https://example.com/caf%C3%A9"},
		{"empty segments kept", "https://example.com/a//b/", "https://example.com/a//b"},
		{"dot segments keep empty segments", "https://example.com/a//./b", "https://example.com/a//b"},
		{"sub-delims untouched", "https://example.com/it's(1)!", "https://example.com/it's(1)!"},
		{"ipv6 host", "http://[::1]:8080/x/", "http://[::1]:8080/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizeForIdentity(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeForIdentityDistinguishesEmptySegments(t *testing.T) {
	t.Parallel()

	single, err := NormalizeForIdentity("https://example.com/a/b")
	require.NoError(t, err)
	double, err := NormalizeForIdentity("https://example.com/a//b")
	require.NoError(t, err)
	require.NotEqual(t, single, double)
}

func TestNormalizeForIdentityEquivalence(t *testing.T) {
	t.Parallel()

	variants := []string{
		"https://example.com/services/",
		"https://EXAMPLE.com:443/services",
		"https://example.com/services#top",
		"https://example.com/services?utm_campaign=spring",
		"https://example.com/x/../services",
	}
	want, err := NormalizeForIdentity(variants[0])
	require.NoError(t, err)
	for _, v := range variants[1:] {
		got, err := NormalizeForIdentity(v)
		require.NoError(t, err)
		require.Equal(t, want, got, "variant %s", v)
	}

	other, err := NormalizeForIdentity("https://example.com/services?page=2")
	require.NoError(t, err)
	require.NotEqual(t, want, other)
}

func TestNormalizeForIdentityErrors(t *testing.T) {
	t.Parallel()

	for _, in := range []string{"", "   ", "/relative/path", "mailto:a@example.com", "http://%zz"} {
		_, err := NormalizeForIdentity(in)
		require.Error(t, err, "input %q", in)
	}
	require.Equal(t, "/relative/path", IdentityKey(" /relative/path "))
}

func TestResolveLink(t *testing.T) {
	t.Parallel()

	base := "https://example.com/blog/post-1"
	testCases := []struct {
		name string
		href string
		want string
	}{
		{"absolute", "https://other.example/x", "https://other.example/x"},
		{"root relative", "/about", "https://example.com/about"},
		{"path relative", "post-2", "https://example.com/blog/post-2"},
		{"parent traversal", "../services/web", "https://example.com/services/web"},
		{"protocol relative", "//cdn.example.com/a.js", "https://cdn.example.com/a.js"},
		{"hash only", "#comments", "https://example.com/blog/post-1#comments"},
		{"query only", "?page=2", "https://example.com/blog/post-1?page=2"},
		{"surrounding whitespace", "  /contact \n", "https://example.com/contact"},
		{"embedded newline", "/con\ntact", "https://example.com/contact"},
		{"backslash separator", `\about\team`, "https://example.com/about/team"},
		{"stray percent", "/100%/deal", "https://example.com/100%25/deal"},
		{"valid escape kept", "/a%20b", "https://example.com/a%20b"},
		{"sub-delims kept", "/our team's (new) work!", "https://example.com/our%20team's%20(new)%20work!"},
		{"tab inside scheme", "ht\ttps://example.com/x", "https://example.com/x"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ResolveLink(base, tc.href)
			require.True(t, ok)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestResolveLinkMalformedIsEncodedNotDropped(t *testing.T) {
	t.Parallel()

	got, ok := ResolveLink("https://example.com/test-page", "not a valid url!!!")
	require.True(t, ok)
	require.Equal(t, "https://example.com/not%20a%20valid%20url!!!", got)
	require.True(t, IsSameSite("https://example.com/test-page", got))
}

func TestResolveLinkEncodedAndRawHrefsShareIdentity(t *testing.T) {
	t.Parallel()

	base := "https://example.com/"
	pairs := [][2]string{
		{"/our team's work", "/our%20team's%20work"},
		{"/caf\u00e9", "/caf%C3%A9"},
		{"/careers (uk)", "/careers%20(uk)"},
	}
	for _, pair := range pairs {
		raw, ok := ResolveLink(base, pair[0])
		require.True(t, ok)
		encoded, ok := ResolveLink(base, pair[1])
		require.True(t, ok)
		require.Equal(t, encoded, raw)
		require.Equal(t, IdentityKey(encoded), IdentityKey(raw))
	}
	got, _ := ResolveLink(base, "/our team's work")
	require.Equal(t, "https://example.com/our%20team's%20work", got)
}

func TestResolveLinkRejects(t *testing.T) {
	t.Parallel()

	for _, href := range []string{"", "   ", "\n\t"} {
		_, ok := ResolveLink("https://example.com/", href)
		require.False(t, ok, "href %q", href)
	}
	_, ok := ResolveLink("/not-absolute", "/about")
	require.False(t, ok)
}

func FuzzIsSameSiteSymmetric(f *testing.F) {
	f.Add("https://example.com/a", "https://example.com:443/b")
	f.Add("http://a.example", "https://a.example")
	f.Add("", "://")
	f.Fuzz(func(t *testing.T, a, b string) {
		if IsSameSite(a, b) != IsSameSite(b, a) {
			t.Fatalf("asymmetric result for %q, %q", a, b)
		}
	})
}
