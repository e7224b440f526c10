package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	docxDefaultPart  = "word/document.xml"
	docxContentTypes = "[Content_Types].xml"
	docxMainType     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

var (
	// <w:t>text</w:t>, with or without attributes such as xml:space="preserve".
	docxTextRun = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	// Override elements name the main part; attribute order varies between writers.
	docxPartFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"`)
	docxTypeFirst = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxMainType) + `"[^>]+PartName="([^"]+)"`)
	// Paragraph ends become line breaks so sentences from different paragraphs do not fuse.
	docxParagraphEnd = regexp.MustCompile(`</w:p>`)
)

// extractDOCX returns the text runs of the main document part, one line per paragraph.
func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := docxDefaultPart
	if ct, err := readZipPart(zr, docxContentTypes); err == nil {
		if m := docxPartFirst.FindSubmatch(ct); len(m) > 1 {
			part = strings.TrimPrefix(string(m[1]), "/")
		} else if m := docxTypeFirst.FindSubmatch(ct); len(m) > 1 {
			part = strings.TrimPrefix(string(m[1]), "/")
		}
	}
	body, err := readZipPart(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}

	var lines []string
	for _, para := range docxParagraphEnd.Split(string(body), -1) {
		runs := docxTextRun.FindAllStringSubmatch(para, -1)
		if len(runs) == 0 {
			continue
		}
		words := make([]string, 0, len(runs))
		for _, r := range runs {
			if s := strings.TrimSpace(r[1]); s != "" {
				words = append(words, s)
			}
		}
		if len(words) > 0 {
			lines = append(lines, strings.Join(words, " "))
		}
	}
	return sanitize(strings.Join(lines, "\n")), nil
}

func readZipPart(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return data, nil
	}
	return nil, fmt.Errorf("%s not found", name)
}
