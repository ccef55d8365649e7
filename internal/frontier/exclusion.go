package frontier

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// Exclusions matches raw URLs against user-supplied wildcard patterns. '*'
// matches any run of characters (including '/'); every other character is
// literal. A pattern must match the whole URL, and matching is
// case-sensitive.
type Exclusions struct {
	patterns []string
	globs    []glob.Glob
}

// CompileExclusions compiles patterns, ignoring blank entries.
func CompileExclusions(patterns []string) (*Exclusions, error) {
	ex := &Exclusions{}
	for _, p := range patterns {
		if strings.TrimSpace(p) == "" {
			continue
		}
		g, err := glob.Compile(quotePattern(p))
		if err != nil {
			return nil, fmt.Errorf("compile exclusion %q: %w", p, err)
		}
		ex.patterns = append(ex.patterns, p)
		ex.globs = append(ex.globs, g)
	}
	return ex, nil
}

// Match reports whether rawURL matches any pattern.
func (e *Exclusions) Match(rawURL string) bool {
	if e == nil {
		return false
	}
	for _, g := range e.globs {
		if g.Match(rawURL) {
			return true
		}
	}
	return false
}

// Patterns returns the compiled patterns in input order.
func (e *Exclusions) Patterns() []string {
	if e == nil {
		return nil
	}
	return append([]string(nil), e.patterns...)
}

// quotePattern escapes glob syntax other than '*' so characters such as '?'
// and '[' in a URL pattern stay literal.
func quotePattern(p string) string {
	parts := strings.Split(p, "*")
	for i, part := range parts {
		parts[i] = glob.QuoteMeta(part)
	}
	return strings.Join(parts, "*")
}
