// Package indexer turns a source document into a persisted index: extract, chunk, embed, build.
package indexer

import (
	"iter"
	"strings"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/fileid"
	"github.com/hyperjump/docqa/internal/models"
)

// Chunker splits page text into overlapping character windows.
type Chunker struct {
	windowSize int
	overlap    int
}

// NewChunker creates a chunker with the given window size and overlap, in characters.
// It requires windowSize > overlap >= 0.
func NewChunker(windowSize, overlap int) (*Chunker, error) {
	if overlap < 0 || windowSize <= overlap {
		return nil, errs.Newf(errs.KindValidation, "indexer.NewChunker",
			"window size must exceed overlap and overlap must be non-negative (window=%d, overlap=%d)", windowSize, overlap)
	}
	return &Chunker{windowSize: windowSize, overlap: overlap}, nil
}

// ChunkPage splits one page into windows advancing by windowSize-overlap characters.
// The final partial window is kept. Windows that are blank after trimming are dropped.
// Chunk indexes start at firstIndex.
func (c *Chunker) ChunkPage(docID string, page models.Page, firstIndex int) []*models.Chunk {
	runes := []rune(Preprocess(page.Text))
	if len(runes) == 0 {
		return nil
	}
	step := c.windowSize - c.overlap
	var chunks []*models.Chunk
	index := firstIndex
	for start := 0; start < len(runes); start += step {
		end := min(start+c.windowSize, len(runes))
		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = append(chunks, &models.Chunk{
				ID:         fileid.ChunkID(docID, index),
				DocumentID: docID,
				Content:    text,
				Page:       page.Number,
				ChunkIndex: index,
			})
			index++
		}
		if end >= len(runes) {
			break
		}
	}
	return chunks
}

// Chunk consumes pages in order and returns all chunks with a document-wide chunk index.
// Iteration stops at the first page error.
func (c *Chunker) Chunk(docID string, pages iter.Seq2[models.Page, error]) ([]*models.Chunk, error) {
	var chunks []*models.Chunk
	for page, err := range pages {
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c.ChunkPage(docID, page, len(chunks))...)
	}
	return chunks, nil
}
