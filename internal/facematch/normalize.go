// Package facematch provides the name and text normalization shared by the
// record indices, the tagging workflow and the web handlers.
package facematch

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Fold returns the case-folded, NFC-normalized, trimmed form of s.
// Two strings compare equal case-insensitively iff their folds are equal.
func Fold(s string) string {
	return FoldText(strings.TrimSpace(s))
}

// FoldText is Fold without trimming. Substring queries use it so that
// " york" still requires a space before "york".
func FoldText(s string) string {
	return norm.NFC.String(folder.String(s))
}

// ContainsFold reports whether sub occurs within s, ignoring case.
// Surrounding spaces in sub are significant.
func ContainsFold(s, sub string) bool {
	return strings.Contains(FoldText(s), FoldText(sub))
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizePersonName normalizes a name for loose comparison (lowercase, no diacritics, spaces for dashes).
// Used for name suggestions; exact person matching uses Fold.
func NormalizePersonName(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Trigrams returns the distinct rune trigrams of FoldText(s), spaces
// included. Strings shorter than three runes have none.
func Trigrams(s string) []string {
	r := []rune(FoldText(s))
	if len(r) < 3 {
		return nil
	}
	seen := make(map[string]struct{}, len(r)-2)
	out := make([]string, 0, len(r)-2)
	for i := 0; i+3 <= len(r); i++ {
		g := string(r[i : i+3])
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}
