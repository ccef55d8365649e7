package frontier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExclusionsMatch(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		pattern string
		url     string
		want    bool
	}{
		{"substring wildcard", "*/tag/*", "https://example.com/blog/tag/go", true},
		{"substring wildcard miss", "*/tag/*", "https://example.com/blog", false},
		{"case sensitive", "*/TAG/*", "https://example.com/blog/tag/go", false},
		{"question mark is literal", "*?page=*", "https://example.com/list?page=2", true},
		{"question mark does not match any char", "*?page=*", "https://example.com/listXpage=2", false},
		{"brackets are literal", "*[draft]*", "https://example.com/posts/[draft]-one", true},
		{"brackets are not a class", "*[draft]*", "https://example.com/posts/d", false},
		{"braces are literal", "*{id}*", "https://example.com/{id}", true},
		{"whole url must match", "/tag/", "https://example.com/tag/", false},
		{"exact url", "https://example.com/search", "https://example.com/search", true},
		{"suffix anchored", "*.pdf", "https://example.com/file.pdf", true},
		{"suffix anchored with query", "*.pdf", "https://example.com/file.pdf?dl=1", false},
		{"star crosses slashes", "https://example.com/*/print", "https://example.com/a/b/c/print", true},
		{"double star", "**/private/**", "https://example.com/private/x", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ex, err := CompileExclusions([]string{tc.pattern})
			require.NoError(t, err)
			require.Equal(t, tc.want, ex.Match(tc.url))
		})
	}
}

func TestExclusionsSkipBlankPatterns(t *testing.T) {
	t.Parallel()

	ex, err := CompileExclusions([]string{"", "  ", "*/cart*"})
	require.NoError(t, err)
	require.Equal(t, []string{"*/cart*"}, ex.Patterns())
	require.True(t, ex.Match("https://example.com/cart"))
	require.False(t, ex.Match("https://example.com/"))
}

func TestExclusionsAnyPatternMatches(t *testing.T) {
	t.Parallel()

	ex, err := CompileExclusions([]string{"*/tag/*", "*/category/*"})
	require.NoError(t, err)
	require.True(t, ex.Match("https://example.com/category/news"))
	require.True(t, ex.Match("https://example.com/tag/x"))
	require.False(t, ex.Match("https://example.com/about"))
}

func TestNilExclusionsMatchNothing(t *testing.T) {
	t.Parallel()

	var ex *Exclusions
	require.False(t, ex.Match("https://example.com/"))
	require.Nil(t, ex.Patterns())

	empty, err := CompileExclusions(nil)
	require.NoError(t, err)
	require.False(t, empty.Match("https://example.com/"))
}
