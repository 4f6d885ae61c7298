package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Preprocess normalizes contract text for chunking: trims, drops control characters,
// and collapses whitespace runs (including line breaks) into single spaces.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		case unicode.IsControl(r), r == '\uFEFF':
		default:
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}

// ContentHash returns the hex SHA-256 of normalized text. Byte-identical re-uploads share it.
func ContentHash(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
