package domain

import (
	"regexp"
	"strings"
)

var postcodePattern = regexp.MustCompile(`(?i)\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][A-Z]{2})\b`)

// NormalizePostcode upper-cases a postcode and drops all whitespace so that
// "sw1a 1aa" and "SW1A1AA" compare equal.
func NormalizePostcode(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}

// FormatPostcode renders a postcode in the canonical "OUTWARD INWARD" form.
// Values that do not look like a UK postcode are only trimmed and upper-cased.
func FormatPostcode(s string) string {
	n := NormalizePostcode(s)
	if len(n) < 5 || len(n) > 7 || !postcodePattern.MatchString(n) {
		return strings.ToUpper(strings.TrimSpace(s))
	}
	return n[:len(n)-3] + " " + n[len(n)-3:]
}

// ExtractPostcode finds the last UK postcode inside free text such as a
// single-line address. It returns "" when none is present.
func ExtractPostcode(text string) string {
	matches := postcodePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return ""
	}
	m := matches[len(matches)-1]
	return strings.ToUpper(m[1]) + " " + strings.ToUpper(m[2])
}

// OutwardCode returns the district part of a postcode ("SW1A" for "SW1A 1AA").
func OutwardCode(s string) string {
	n := NormalizePostcode(s)
	if len(n) <= 3 {
		return n
	}
	return n[:len(n)-3]
}
