package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestSanitizeSite(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.expected, SanitizeSite(tc.input))
		})
	}
}

func TestInitIdempotent(t *testing.T) {
	Init()
	Init()

	require.NotNil(t, crawlerPagesTotal)
	require.NotNil(t, crawlerFetchErrorsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveCounters(t *testing.T) {
	Init()
	counter := crawlerFetchErrorsTotal.WithLabelValues("timeout")
	before := testutil.ToFloat64(counter)
	ObserveFetchError("timeout")
	require.Equal(t, before+1, testutil.ToFloat64(counter))

	ObservePage("https://metrics-test.example/a", "ok", 128)
	require.Equal(t, float64(128), testutil.ToFloat64(crawlerBytesTotal.WithLabelValues("metrics-test.example")))
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	for _, tc := range []string{"http://example.com", "https://google.com", "ftp://example.com"} {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		if SanitizeSite(orig) == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
