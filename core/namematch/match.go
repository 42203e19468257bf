// Package namematch compares student names the way a lecturer would read them off a form:
// case-insensitive, whitespace-insensitive, tolerant to small typos.
package namematch

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/hudoor/hudoor/core"
)

// Threshold is the minimum similarity for two names to be considered the same person.
const Threshold = 0.80

// Normalize collapses whitespace runs in `name` to single spaces.
func Normalize(name string) string {
	return core.CollapseSpaces(name)
}

func runes(s string) []string {
	return strings.Split(strings.ToLower(Normalize(s)), "")
}

// Ratio returns the gestalt pattern matching ratio of `a` and `b` in [0, 1].
func Ratio(a, b string) float64 {
	ra, rb := runes(a), runes(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	return difflib.NewMatcher(ra, rb).Ratio()
}

// Matches reports whether `a` and `b` are similar enough to name the same student.
func Matches(a, b string) bool {
	return Ratio(a, b) >= Threshold
}

// Best returns the candidate most similar to `input`, provided it reaches Threshold.
// Earlier candidates win ties.
func Best(input string, candidates []string) (string, float64, bool) {
	var (
		best      string
		bestScore float64
		found     bool
	)
	for _, c := range candidates {
		score := Ratio(input, c)
		if score >= Threshold && score > bestScore {
			best, bestScore, found = Normalize(c), score, true
		}
	}
	return best, bestScore, found
}
