package domain

import "strings"

// CountryRule maps a calling code to the national-number digit lengths it
// accepts. The rules live in a slice, not a map: prefix matching walks the
// slice in order, so codes must be sorted longest-first to keep a short
// code (e.g. +1) from shadowing a longer one (e.g. +1876).
type CountryRule struct {
	Code    string
	Lengths []int
}

// countryRules is the reference calling-code table. Ordering is part of
// the contract; tests pin it.
var countryRules = []CountryRule{
	{Code: "1876", Lengths: []int{7}},
	{Code: "1868", Lengths: []int{7}},
	{Code: "1758", Lengths: []int{7}},
	{Code: "420", Lengths: []int{9}},
	{Code: "421", Lengths: []int{9}},
	{Code: "353", Lengths: []int{9}},
	{Code: "351", Lengths: []int{9}},
	{Code: "352", Lengths: []int{8, 9}},
	{Code: "358", Lengths: []int{9, 10}},
	{Code: "380", Lengths: []int{9}},
	{Code: "971", Lengths: []int{9}},
	{Code: "27", Lengths: []int{9}},
	{Code: "30", Lengths: []int{10}},
	{Code: "31", Lengths: []int{9}},
	{Code: "32", Lengths: []int{8, 9}},
	{Code: "33", Lengths: []int{9}},
	{Code: "34", Lengths: []int{9}},
	{Code: "39", Lengths: []int{9, 10}},
	{Code: "41", Lengths: []int{9}},
	{Code: "43", Lengths: []int{10, 11}},
	{Code: "44", Lengths: []int{10}},
	{Code: "45", Lengths: []int{8}},
	{Code: "46", Lengths: []int{9}},
	{Code: "47", Lengths: []int{8}},
	{Code: "48", Lengths: []int{9}},
	{Code: "49", Lengths: []int{10, 11}},
	{Code: "61", Lengths: []int{9}},
	{Code: "64", Lengths: []int{8, 9, 10}},
	{Code: "86", Lengths: []int{11}},
	{Code: "91", Lengths: []int{10}},
}

// CountryRules returns the calling-code table in matching order.
func CountryRules() []CountryRule {
	out := make([]CountryRule, len(countryRules))
	copy(out, countryRules)
	return out
}

var phoneStripper = strings.NewReplacer(
	" ", "", "-", "", ".", "",
	"(", "", ")", "", "[", "", "]", "", "{", "", "}", "", "<", "", ">", "",
)

// CleanPhoneNumber strips separators and bracket characters from raw and
// formats the remainder against the calling-code table. The second return
// is false when no valid format exists.
func CleanPhoneNumber(raw string) (string, bool) {
	s := phoneStripper.Replace(strings.TrimSpace(raw))
	if s == "" {
		return "", false
	}
	return FormatPhoneWithCountryCode(s)
}

// FormatPhoneWithCountryCode matches digits against the country table.
// A "+"-prefixed input must start with a known calling code; without the
// plus the same prefix scan is retried on the bare digits. A matched
// country requires the remainder to hit one of its allowed lengths, with
// a single missing digit repaired by prepending "0". Unmatched numbers
// fall back to the UK national form (leading 0, 11 digits) and finally
// to bare 10/11-digit strings.
func FormatPhoneWithCountryCode(input string) (string, bool) {
	digits := input
	hasPlus := strings.HasPrefix(digits, "+")
	if hasPlus {
		digits = digits[1:]
	}
	if digits == "" || !isAllDigits(digits) {
		return "", false
	}

	if formatted, ok := matchCountry(digits); ok {
		return formatted, true
	}
	if hasPlus {
		// A plus with no recognized calling code is unsalvageable.
		return "", false
	}
	if len(digits) == 11 && digits[0] == '0' {
		return "[+44] " + digits[1:], true
	}
	if len(digits) == 10 || len(digits) == 11 {
		return digits, true
	}
	return "", false
}

func matchCountry(digits string) (string, bool) {
	for _, rule := range countryRules {
		rest, ok := strings.CutPrefix(digits, rule.Code)
		if !ok || rest == "" {
			continue
		}
		for _, want := range rule.Lengths {
			switch {
			case len(rest) == want:
				return "[+" + rule.Code + "] " + rest, true
			case len(rest) == want-1:
				return "[+" + rule.Code + "] 0" + rest, true
			}
		}
	}
	return "", false
}

// IsValidPhoneNumber reports whether raw cleans to a number whose
// national part carries 10 or 11 digits.
func IsValidPhoneNumber(raw string) bool {
	formatted, ok := CleanPhoneNumber(raw)
	if !ok {
		return false
	}
	national := formatted
	if i := strings.LastIndexByte(formatted, ' '); i >= 0 {
		national = formatted[i+1:]
	}
	return len(national) == 10 || len(national) == 11
}

func isAllDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
