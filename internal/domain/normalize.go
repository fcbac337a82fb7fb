// Package domain defines the canonical web-site record and the pure
// normalization helpers applied to incoming field values before merge
// or persistence.
package domain

import (
	"regexp"
	"strings"
)

// MaxFieldLen caps every scalar attribute after cleaning.
const MaxFieldLen = 400

var (
	domainPattern  = regexp.MustCompile(`^[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)+$`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// NormalizeDomain reduces a raw URL to its bare domain: the scheme and a
// leading "www." are stripped and anything from the first slash on is
// dropped. The result is lower-cased so it can serve as an identity key.
// Empty input yields an empty string, and the function is idempotent.
func NormalizeDomain(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	return strings.ToLower(s)
}

// IsValidDomain reports whether s looks like a registrable domain:
// alphanumeric/hyphen labels with at least one dot. Records whose URL
// fails this check are dropped, not stored.
func IsValidDomain(s string) bool {
	if s == "" {
		return false
	}
	return domainPattern.MatchString(s)
}

// CleanSocialURL normalizes a social profile link like NormalizeDomain
// but keeps the path, truncating at the first query separator.
func CleanSocialURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	s = strings.TrimPrefix(s, "www.")
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return truncate(s, MaxFieldLen)
}

// CleanText strips control characters, collapses whitespace runs to a
// single space, trims, and truncates to MaxFieldLen.
func CleanText(raw string) string {
	if raw == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			// Whitespace controls separate words rather than vanish.
			b.WriteRune(' ')
		case (r >= 0x00 && r <= 0x1F) || (r >= 0x7F && r <= 0x9F):
			continue
		default:
			b.WriteRune(r)
		}
	}
	s := whitespaceRuns.ReplaceAllString(b.String(), " ")
	return truncate(strings.TrimSpace(s), MaxFieldLen)
}

// truncate caps s at n characters, never splitting a multibyte rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
