package identity

import (
	"regexp"
	"strings"
)

var (
	punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceRegex  = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases a display name, strips punctuation, and collapses
// runs of whitespace to a single space. Storefront listings decorate the same
// product with trademark signs, edition suffixes in brackets, and casing
// differences; normalization keeps those from splitting one identity.
func NormalizeName(name string) string {
	name = strings.ToLower(name)
	name = punctuationRegex.ReplaceAllString(name, "")
	name = whitespaceRegex.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// normalizeField canonicalizes secondary metadata such as category and
// publisher for key comparison.
func normalizeField(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
