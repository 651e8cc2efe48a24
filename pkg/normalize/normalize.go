// Package normalize derives canonical matching keys from workflow
// display names and scores textual similarity between them.
package normalize

import (
	"strings"
	"unicode"
)

// Key converts a workflow display name into its canonical matching key:
// lowercased, with everything outside letters/digits/underscore reduced
// to spaces, whitespace runs collapsed, and the result trimmed.
// Key is idempotent: Key(Key(x)) == Key(x).
func Key(name string) string {
	if name == "" {
		return ""
	}

	var b strings.Builder

	b.Grow(len(name))

	lastSpace := false

	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)

			lastSpace = false

			continue
		}

		if !lastSpace {
			b.WriteByte(' ')

			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Similarity returns the Jaccard token-set overlap of the two names'
// canonical keys, as an integer score in [0, 100]. An empty token set on
// either side scores 0.
//
// The score is a heuristic matching aid only; deduplication identity is
// the exact canonical key.
func Similarity(a, b string) int {
	setA := tokenSet(Key(a))
	setB := tokenSet(Key(b))

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0

	for tok := range setA {
		if _, ok := setB[tok]; ok {
			intersection++
		}
	}

	union := len(setA) + len(setB) - intersection

	return intersection * 100 / union
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{}, 8)

	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}

	return set
}
