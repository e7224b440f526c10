package extract

import (
	"strings"
	"unicode/utf8"
)

// pageBreak separates pages in plain-text exports (pdftotext writes one per page).
const pageBreak = '\f'

// sanitize replaces invalid UTF-8 sequences with the replacement character.
func sanitize(s string) string {
	if !utf8.ValidString(s) {
		return strings.ToValidUTF8(s, "\ufffd")
	}
	return s
}

// splitPlain treats form feeds as page breaks. A blank segment after the final form
// feed is dropped; an empty input is a single empty page.
func splitPlain(content []byte) textPages {
	text := sanitize(string(content))
	pages := strings.Split(text, string(pageBreak))
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return textPages(pages)
}
