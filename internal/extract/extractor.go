// Package extract reads a source document into a lazy sequence of page segments.
package extract

import (
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/fileid"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/lu4p/cat"
)

// PageSeq yields pages in order. Iteration stops after the first error.
type PageSeq = iter.Seq2[models.Page, error]

// pageSource gives random access to the pages of an opened document. Page is 1-based.
type pageSource interface {
	NumPages() int
	Page(n int) (string, error)
}

// Extractor extracts page text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// SupportedExtensions lists the extensions Pages accepts.
var SupportedExtensions = []string{".pdf", ".txt", ".md", ".docx", ".xlsx", ".pptx", ".odt", ".odp", ".ods", ".rtf"}

// Pages opens the document at path and returns its metadata and a lazy page sequence.
// The file is parsed up front so an unreadable or corrupt document fails here with an
// ingest error; page text is extracted only as the sequence is consumed.
func (e *Extractor) Pages(path string) (*models.Document, PageSeq, error) {
	const op = "extract.Pages"
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, nil, errs.New(errs.KindIngest, op, fmt.Errorf("absolute path: %w", err))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, nil, errs.New(errs.KindIngest, op, fmt.Errorf("stat file: %w", err))
	}
	if !info.Mode().IsRegular() {
		return nil, nil, errs.Newf(errs.KindIngest, op, "not a regular file: %s", absPath)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if ext != "" && !slices.Contains(SupportedExtensions, ext) {
		return nil, nil, errs.Newf(errs.KindIngest, op, "unsupported document format %q (supported: %s)",
			ext, strings.Join(SupportedExtensions, ", "))
	}
	var src pageSource
	switch ext {
	case ".odt", ".rtf":
		text, catErr := cat.File(absPath)
		if catErr != nil {
			return nil, nil, errs.New(errs.KindIngest, op, fmt.Errorf("extract %s: %w", ext, catErr))
		}
		src = textPages{sanitize(text)}
	default:
		content, readErr := os.ReadFile(absPath)
		if readErr != nil {
			return nil, nil, errs.New(errs.KindIngest, op, fmt.Errorf("read file: %w", readErr))
		}
		src, err = openBytes(content, ext)
		if err != nil {
			return nil, nil, errs.New(errs.KindIngest, op, err)
		}
	}

	doc := &models.Document{
		ID:        fileid.FileDocID(absPath),
		Path:      absPath,
		Title:     filepath.Base(absPath),
		PageCount: src.NumPages(),
		Size:      info.Size(),
		Metadata: map[string]interface{}{
			"format": strings.TrimPrefix(ext, "."),
			"mtime":  strconv.FormatInt(info.ModTime().UnixNano(), 10),
		},
	}
	return doc, sequence(src), nil
}

func openBytes(content []byte, ext string) (pageSource, error) {
	switch ext {
	case ".pdf":
		return openPDF(content)
	case ".docx":
		text, err := extractDOCX(content)
		if err != nil {
			return nil, err
		}
		return textPages{text}, nil
	case ".xlsx":
		return openExcel(content)
	case ".pptx":
		return openPPTX(content)
	case ".odp":
		return openODP(content)
	case ".ods":
		return openODS(content)
	case ".txt", ".md", "":
		return splitPlain(content), nil
	default:
		return nil, fmt.Errorf("unsupported document format %q", ext)
	}
}

func sequence(src pageSource) PageSeq {
	return func(yield func(models.Page, error) bool) {
		for n := 1; n <= src.NumPages(); n++ {
			text, err := src.Page(n)
			if err != nil {
				yield(models.Page{Number: n}, errs.New(errs.KindIngest, "extract.page", err))
				return
			}
			if !yield(models.Page{Number: n, Text: text}, nil) {
				return
			}
		}
	}
}

// textPages serves already-extracted page texts.
type textPages []string

func (t textPages) NumPages() int { return len(t) }

func (t textPages) Page(n int) (string, error) {
	if n < 1 || n > len(t) {
		return "", fmt.Errorf("page %d out of range [1, %d]", n, len(t))
	}
	return t[n-1], nil
}
