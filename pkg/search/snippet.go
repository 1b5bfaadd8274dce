package search

import "unicode"

const (
	// SnippetLength is the window size in characters
	SnippetLength = 200

	ellipsis = "…"
)

// FindSnippet returns a window of text around the first occurrence of the first
// word, in query order, that occurs at all. Matching is case-insensitive and the
// window is measured in runes, starting half a window before the hit.
func FindSnippet(text string, words []string) (string, bool) {
	runes := []rune(text)
	lower := lowerRunes(runes)

	hit := -1
	for _, w := range words {
		if w == "" {
			continue
		}
		if idx := indexRunes(lower, lowerRunes([]rune(w))); idx != -1 {
			hit = idx
			break
		}
	}
	if hit == -1 {
		return "", false
	}

	start := max(0, hit-SnippetLength/2)
	end := min(len(runes), start+SnippetLength)

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = ellipsis + snippet
	}
	if end < len(runes) {
		snippet += ellipsis
	}
	return snippet, true
}

// lowerRunes folds rune by rune so indexes stay aligned with the input
func lowerRunes(rs []rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = unicode.ToLower(r)
	}
	return out
}

func indexRunes(haystack, needle []rune) int {
	if len(needle) == 0 || len(needle) > len(haystack) {
		return -1
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, r := range needle {
			if haystack[i+j] != r {
				continue outer
			}
		}
		return i
	}
	return -1
}
