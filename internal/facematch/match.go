package facematch

import (
	"slices"
	"strings"
)

// SuggestNames returns the known names matching a partially typed query,
// ignoring case, diacritics and dashes. Prefix matches sort before
// substring matches; an empty query returns every name.
func SuggestNames(known []string, query string, limit int) []string {
	q := NormalizePersonName(query)

	var prefix, contains []string
	for _, name := range known {
		n := NormalizePersonName(name)
		switch {
		case q == "" || strings.HasPrefix(n, q):
			prefix = append(prefix, name)
		case strings.Contains(n, q):
			contains = append(contains, name)
		}
	}
	slices.Sort(prefix)
	slices.Sort(contains)

	out := append(prefix, contains...)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
