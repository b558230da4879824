package pipeline

import (
	"regexp"
	"strings"
)

// tickerFormat accepts plain symbols up to 5 letters ("AAPL", "C") and the
// dotted share-class form ("BRK.B"); anything else — lowercase, punctuation,
// a trailing "?" uncertainty marker, or over-length symbols — is rejected
// (spec §8 boundaries).
var tickerFormat = regexp.MustCompile(`^[A-Z]{1,5}(\.[A-Z]{1,2})?$`)

// ValidTicker reports whether s is a well-formed ticker symbol.
func ValidTicker(s string) bool {
	if len(s) == 0 || len(s) > 5 {
		return false
	}
	return tickerFormat.MatchString(s)
}

// normalizeTickers uppercases, trims, validates, and de-duplicates a list of
// AI-proposed tickers, dropping anything uncertain (trailing "?") or
// malformed (spec §4.4 step 6).
func normalizeTickers(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	var out []string
	for _, t := range raw {
		t = strings.ToUpper(strings.TrimSpace(t))
		if !ValidTicker(t) {
			continue
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
