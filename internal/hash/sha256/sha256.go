// Package sha256 fingerprints page markup so renders that differ only in
// whitespace layout collapse to one digest.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hasher implements crawler.Hasher over whitespace-normalized bytes.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash returns the lowercase hex SHA-256 of data after every run of ASCII
// whitespace is collapsed to one space and the ends are trimmed. All other
// bytes, including invalid UTF-8 and non-ASCII spaces, are hashed verbatim.
func (h *Hasher) Hash(data []byte) (string, error) {
	return sum(data), nil
}

// Sum is the functional form of Hash.
func Sum(text string) string {
	return sum([]byte(text))
}

func sum(data []byte) string {
	digest := sha256.Sum256(normalize(data))
	return hex.EncodeToString(digest[:])
}

// Normalize collapses ASCII whitespace runs to a single space and trims.
func Normalize(text string) string {
	return string(normalize([]byte(text)))
}

func normalize(data []byte) []byte {
	out := make([]byte, 0, len(data))
	pendingSpace := false
	for _, c := range data {
		if isSpace(c) {
			pendingSpace = len(out) > 0
			continue
		}
		if pendingSpace {
			out = append(out, ' ')
			pendingSpace = false
		}
		out = append(out, c)
	}
	return out
}

func isSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\f', '\v':
		return true
	}
	return false
}
