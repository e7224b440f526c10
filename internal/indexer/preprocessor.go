package indexer

import (
	"strings"
	"unicode"
)

// Preprocess normalizes page text before windowing: trims and collapses whitespace runs,
// including the line breaks PDF extraction leaves mid-sentence, to a single space.
func Preprocess(text string) string {
	text = strings.TrimSpace(text)
	var b strings.Builder
	b.Grow(len(text))
	wasSpace := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !wasSpace {
				b.WriteRune(' ')
				wasSpace = true
			}
		} else {
			b.WriteRune(r)
			wasSpace = false
		}
	}
	return b.String()
}
