// Package models defines core data structures for documents, chunks, queries, and answers.
package models

import "time"

// Document describes the source file an index was built from.
type Document struct {
	ID        string                 `json:"id" db:"id"`
	Path      string                 `json:"path" db:"path"`
	Title     string                 `json:"title" db:"title"`
	PageCount int                    `json:"page_count" db:"page_count"`
	Size      int64                  `json:"size" db:"size"`
	Metadata  map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time              `json:"created_at" db:"created_at"`
}

// Page is one text segment of a document. Number is 1-based.
type Page struct {
	Number int    `json:"number"`
	Text   string `json:"text"`
}

// Chunk is a bounded span of a page's text, the unit of embedding and retrieval.
type Chunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	Page       int       `json:"page" db:"page"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
}
