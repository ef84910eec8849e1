// Package matching reconciles property descriptions coming from different
// sources: address normalisation with token overlap, and coordinate scoring.
package matching

import (
	"regexp"
	"strings"
)

// MatchKind ranks how two addresses matched. Higher is stronger.
type MatchKind int

const (
	MatchNone MatchKind = iota
	MatchTokens
	MatchContains
	MatchExact
)

func (k MatchKind) String() string {
	switch k {
	case MatchExact:
		return "exact"
	case MatchContains:
		return "contains"
	case MatchTokens:
		return "tokens"
	}
	return "none"
}

const (
	// MinSharedTokens is the token-overlap floor for a MatchTokens result.
	MinSharedTokens = 2
	// SignificantTokenMinLen drops short words such as "the", "rd", "st".
	SignificantTokenMinLen = 4
)

var (
	punctuationExpr  = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	whitespaceExpr   = regexp.MustCompile(`\s+`)
	unitPrefixExpr   = regexp.MustCompile(`^(flat|apartment|apt|unit|room|studio)\s+[\p{L}\p{N}]+\s+`)
	streetNumberExpr = regexp.MustCompile(`^(\d+[a-z]?)\b`)
)

// NormalizeAddress lower-cases, strips punctuation, collapses whitespace and
// removes a leading flat/apartment/unit designator.
func NormalizeAddress(raw string) string {
	s := strings.ToLower(raw)
	s = punctuationExpr.ReplaceAllString(s, " ")
	s = whitespaceExpr.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	s = unitPrefixExpr.ReplaceAllString(s, "")
	return s
}

// StreetNumber extracts the leading house number ("10", "12a") of an address.
func StreetNumber(raw string) string {
	return streetNumberExpr.FindString(NormalizeAddress(raw))
}

// SignificantTokens returns the distinct normalized words longer than three runes.
func SignificantTokens(raw string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, tok := range strings.Fields(NormalizeAddress(raw)) {
		if len([]rune(tok)) < SignificantTokenMinLen {
			continue
		}
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// SharedTokens counts the significant tokens two addresses have in common.
func SharedTokens(a, b string) int {
	other := map[string]struct{}{}
	for _, tok := range SignificantTokens(b) {
		other[tok] = struct{}{}
	}
	n := 0
	for _, tok := range SignificantTokens(a) {
		if _, ok := other[tok]; ok {
			n++
		}
	}
	return n
}

// numbersCompatible is false only when both addresses carry a street number
// and the numbers differ.
func numbersCompatible(a, b string) bool {
	na, nb := StreetNumber(a), StreetNumber(b)
	return na == "" || nb == "" || na == nb
}

// CompareAddresses classifies how a and b match: exact equality of the
// normalized strings, containment in either direction, or at least
// MinSharedTokens significant tokens with the same street number.
func CompareAddresses(a, b string) MatchKind {
	na, nb := NormalizeAddress(a), NormalizeAddress(b)
	if na == "" || nb == "" {
		return MatchNone
	}
	if na == nb {
		return MatchExact
	}
	if !numbersCompatible(na, nb) {
		return MatchNone
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return MatchContains
	}
	if StreetNumber(na) != "" && StreetNumber(na) == StreetNumber(nb) && SharedTokens(na, nb) >= MinSharedTokens {
		return MatchTokens
	}
	return MatchNone
}

// AddressScore grades a pair of addresses on a 0-100 scale. Exact matches
// score 100 and containment 80; otherwise each shared significant token adds
// 10 (capped at 70). Differing street numbers score 0.
func AddressScore(a, b string) int {
	switch CompareAddresses(a, b) {
	case MatchExact:
		return 100
	case MatchContains:
		return 80
	}
	if !numbersCompatible(a, b) {
		return 0
	}
	score := 10 * SharedTokens(a, b)
	if score > 70 {
		score = 70
	}
	return score
}

// FindAddress looks for target among candidates. Tiers are tried in priority
// order (exact, contains, tokens) and within a tier the first candidate wins.
// It returns -1 and MatchNone when nothing matches.
func FindAddress(target string, candidates []string) (int, MatchKind) {
	kinds := make([]MatchKind, len(candidates))
	for i, c := range candidates {
		kinds[i] = CompareAddresses(target, c)
	}
	for _, tier := range []MatchKind{MatchExact, MatchContains, MatchTokens} {
		for i, k := range kinds {
			if k == tier {
				return i, k
			}
		}
	}
	return -1, MatchNone
}
