package utils

import (
	"regexp"
	"strings"
)

// MultipleSpaces matches any sequence of whitespace (including newlines).
var MultipleSpaces = regexp.MustCompile(`\s+`)

// CompressAllWhitespace replaces all whitespace sequences (including newlines) with a single space.
// This is useful for cases where you want to completely normalize whitespace.
func CompressAllWhitespace(s string) string {
	return strings.TrimSpace(MultipleSpaces.ReplaceAllString(s, " "))
}

// TruncatePreview normalizes whitespace and truncates s to at most maxRunes runes,
// appending an ellipsis when content was cut. Truncation is rune-safe so multi-byte
// characters are never split.
func TruncatePreview(s string, maxRunes int) string {
	s = CompressAllWhitespace(s)
	if maxRunes <= 0 {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}

	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

// NormalizeVerseRef canonicalizes a scripture reference so it can be embedded
// in cache keys. The reference is lowercased with accents folded away, and
// whitespace collapses into single hyphens.
// "Éxodo 3:14" becomes "exodo-3:14".
func NormalizeVerseRef(reference string) string {
	reference = NewTextNormalizer().Normalize(strings.TrimSpace(reference))
	reference = strings.ToLower(reference)

	return MultipleSpaces.ReplaceAllString(reference, "-")
}
