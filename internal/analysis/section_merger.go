package analysis

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// NormalizeTitle folds a title for comparison: NFC, lower case, trimmed, with
// inner whitespace runs collapsed to one space.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(title))), " ")
}

// displayTitle upper-cases the first rune of a normalized title.
func displayTitle(normalized string) string {
	r, size := utf8.DecodeRuneInString(normalized)
	if r == utf8.RuneError {
		return normalized
	}
	return string(unicode.ToUpper(r)) + normalized[size:]
}

// MergeCandidates coalesces candidates whose titles normalize to the same
// value. Contents are joined with a blank line in encounter order and the
// merged entry takes the normalized title with its first letter capitalized,
// so original casing is not preserved. Output order is order of first
// appearance.
func MergeCandidates(candidates []CandidateSection) []CandidateSection {
	index := make(map[string]int, len(candidates))
	merged := make([]CandidateSection, 0, len(candidates))

	for _, c := range candidates {
		key := NormalizeTitle(c.Title)
		if i, ok := index[key]; ok {
			switch {
			case merged[i].Content == "":
				merged[i].Content = c.Content
			case c.Content != "":
				merged[i].Content += "\n\n" + c.Content
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, CandidateSection{
			Title:   displayTitle(key),
			Content: c.Content,
		})
	}
	return merged
}
