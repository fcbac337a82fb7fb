package domain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
)

func TestNormalizeDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/about?x=1", "example.com"},
		{"http://example.com", "example.com"},
		{"www.example.co.uk/contact", "example.co.uk"},
		{"example.com", "example.com"},
		{"  https://shop.example.com/  ", "shop.example.com"},
		{"", ""},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, NormalizeDomain(tc.in), "input %q", tc.in)
	}
}

func TestNormalizeDomainIdempotent(t *testing.T) {
	inputs := []string{"https://www.example.com/a/b", "example.com", "HTTP://X.Y", ""}
	for _, in := range inputs {
		once := NormalizeDomain(in)
		require.Equal(t, once, NormalizeDomain(once), "input %q", in)
	}
}

func TestIsValidDomain(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"adnet.xxx", true},
		{"example.com", true},
		{"sub.example-site.co.uk", true},
		{"not a domain", false},
		{"", false},
		{"nodots", false},
		{"bad_char.com", false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, IsValidDomain(tc.in), "input %q", tc.in)
	}
}

func TestCleanSocialURL(t *testing.T) {
	require.Equal(t, "twitter.com/acme", CleanSocialURL("https://www.twitter.com/acme?ref=footer"))
	require.Empty(t, CleanSocialURL(""))
}

func TestCleanText(t *testing.T) {
	require.Equal(t, "Acme Widgets Ltd", CleanText("  Acme\x00 Widgets\t\t Ltd\x1f  "))

	long := strings.Repeat("a", MaxFieldLen+50)
	require.Len(t, CleanText(long), MaxFieldLen)
}

func TestCleanTextCapsByCharacterNotByte(t *testing.T) {
	// 150 characters but 450 bytes; the cap counts characters, so the
	// value passes through whole.
	short := strings.Repeat("€", 150)
	require.Equal(t, short, CleanText(short))

	over := strings.Repeat("€", MaxFieldLen+10)
	got := CleanText(over)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, MaxFieldLen, utf8.RuneCountInString(got))
}

func TestCleanSocialURLKeepsMultibyteWhole(t *testing.T) {
	got := CleanSocialURL("example.com/" + strings.Repeat("ü", MaxFieldLen))
	require.True(t, utf8.ValidString(got))
	require.Equal(t, MaxFieldLen, utf8.RuneCountInString(got))
}
