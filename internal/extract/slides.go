package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

const odfContentPart = "content.xml"

var (
	// ppt/slides/slideN.xml; the _rels siblings do not match.
	pptxSlidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	// <a:t>text</a:t> runs, with or without attributes.
	pptxTextRun      = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	pptxParagraphEnd = regexp.MustCompile(`</a:p>`)
	odpPageStart     = regexp.MustCompile(`<draw:page[\s>]`)
	odsTableStart    = regexp.MustCompile(`<table:table[\s>]`)
	odsRowEnd        = regexp.MustCompile(`</table:table-row>`)
	odsCellEnd       = regexp.MustCompile(`</table:(?:covered-)?table-cell>|<table:(?:covered-)?table-cell[^>]*/>`)
	odfLineEnd       = regexp.MustCompile(`</text:(?:p|h)>|<text:line-break/>`)
	odfSpace         = regexp.MustCompile(`<text:s(?:\s[^>]*)?/>|<text:tab/>`)
	xmlTag           = regexp.MustCompile(`<[^>]+>`)
)

// openPPTX returns one page per slide, in slide-number order, one line per paragraph.
func openPPTX(content []byte) (textPages, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	type slide struct {
		num  int
		name string
	}
	var slides []slide
	for _, f := range zr.File {
		m := pptxSlidePart.FindStringSubmatch(f.Name)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: n, name: f.Name})
	}
	if len(slides) == 0 {
		return nil, fmt.Errorf("extract PPTX: no slides")
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	pages := make(textPages, 0, len(slides))
	for _, s := range slides {
		body, err := readZipPart(zr, s.name)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		var lines []string
		for _, para := range pptxParagraphEnd.Split(string(body), -1) {
			var b strings.Builder
			for _, r := range pptxTextRun.FindAllStringSubmatch(para, -1) {
				b.WriteString(r[1])
			}
			if line := strings.TrimSpace(html.UnescapeString(b.String())); line != "" {
				lines = append(lines, line)
			}
		}
		pages = append(pages, sanitize(strings.Join(lines, "\n")))
	}
	return pages, nil
}

// openODP returns one page per draw:page of an OpenDocument presentation.
func openODP(content []byte) (textPages, error) {
	body, err := readODFContent(content)
	if err != nil {
		return nil, fmt.Errorf("extract ODP: %w", err)
	}
	segments := splitAt(body, odpPageStart)
	if len(segments) == 0 {
		return nil, fmt.Errorf("extract ODP: no slides")
	}
	pages := make(textPages, len(segments))
	for i, seg := range segments {
		pages[i] = sanitize(odfText(seg))
	}
	return pages, nil
}

// openODS returns one page per table of an OpenDocument spreadsheet: rows joined by
// newlines, cells by tabs, as for Excel workbooks.
func openODS(content []byte) (textPages, error) {
	body, err := readODFContent(content)
	if err != nil {
		return nil, fmt.Errorf("extract ODS: %w", err)
	}
	tables := splitAt(body, odsTableStart)
	if len(tables) == 0 {
		return nil, fmt.Errorf("extract ODS: no sheets")
	}
	pages := make(textPages, len(tables))
	for i, table := range tables {
		var rows []string
		for _, row := range odsRowEnd.Split(table, -1) {
			cells := odsCellEnd.Split(row, -1)
			texts := make([]string, 0, len(cells))
			for _, cell := range cells {
				texts = append(texts, strings.ReplaceAll(odfText(cell), "\n", " "))
			}
			if line := strings.TrimRight(strings.Join(texts, "\t"), "\t"); strings.TrimSpace(line) != "" {
				rows = append(rows, strings.TrimLeft(line, " "))
			}
		}
		pages[i] = sanitize(strings.Join(rows, "\n"))
	}
	return pages, nil
}

func readODFContent(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("not a zip: %w", err)
	}
	body, err := readZipPart(zr, odfContentPart)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// splitAt cuts s at each match of start; text before the first match is dropped.
func splitAt(s string, start *regexp.Regexp) []string {
	locs := start.FindAllStringIndex(s, -1)
	out := make([]string, len(locs))
	for i, loc := range locs {
		end := len(s)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		out[i] = s[loc[0]:end]
	}
	return out
}

// odfText flattens an OpenDocument XML fragment to text, one line per paragraph or heading.
func odfText(fragment string) string {
	s := odfSpace.ReplaceAllString(fragment, " ")
	s = odfLineEnd.ReplaceAllString(s, "\n")
	s = html.UnescapeString(xmlTag.ReplaceAllString(s, ""))
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
