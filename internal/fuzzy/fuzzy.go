// Package fuzzy provides edit-distance based string similarity.
package fuzzy

import (
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Ratio returns 1 - levenshtein(a, b) / max(len(a), len(b)), measured in runes.
// Two empty strings are identical.
func Ratio(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(longest)
}

// Canonical uppercases s, collapses whitespace runs and trims it.
func Canonical(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
