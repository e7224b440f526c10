package extract

import (
	"bytes"
	"fmt"

	"github.com/ledongthuc/pdf"
)

type pdfPages struct {
	r *pdf.Reader
}

func openPDF(content []byte) (pdfPages, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return pdfPages{}, fmt.Errorf("open PDF: %w", err)
	}
	return pdfPages{r: r}, nil
}

func (p pdfPages) NumPages() int {
	return p.r.NumPage()
}

// Page extracts one page's plain text. The PDF reader panics on some malformed content
// streams; that is reported as an error for the page.
func (p pdfPages) Page(n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("extract page %d: malformed content: %v", n, r)
		}
	}()
	page := p.r.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	text, err = page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d: %w", n, err)
	}
	return sanitize(text), nil
}
