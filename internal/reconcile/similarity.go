package reconcile

import (
	"errors"
	"strings"
)

// DefaultSimilarityThreshold is the minimum token overlap for the fuzzy
// fallback lookup. It is a tunable, not a correctness guarantee: the fuzzy
// path only exists to avoid orphaning a UI placeholder when the primary
// id-based lookup was never durably associated.
const DefaultSimilarityThreshold = 0.3

var (
	ErrNoMatch      = errors.New("reconcile: no matching entry")
	ErrInvalidEntry = errors.New("reconcile: notification id and task id are required")
)

// TokenOverlap scores two prompts by the share of unique tokens they have in
// common, relative to the smaller token set. Case-insensitive; returns a
// value in [0,1].
func TokenOverlap(a, b string) float64 {
	ta := tokenSet(a)
	tb := tokenSet(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	small, large := ta, tb
	if len(tb) < len(ta) {
		small, large = tb, ta
	}
	var shared int
	for tok := range small {
		if _, ok := large[tok]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(small))
}

func tokenSet(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		tok = strings.Trim(tok, ".,;:!?\"'()[]")
		if tok != "" {
			out[tok] = struct{}{}
		}
	}
	return out
}
