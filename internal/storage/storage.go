// Package storage persists document and chunk records for a built index.
package storage

import (
	"context"

	"github.com/hyperjump/docqa/internal/models"
)

// Storage defines document and chunk persistence operations.
type Storage interface {
	// Document operations
	CreateDocument(ctx context.Context, doc *models.Document) error
	ListDocuments(ctx context.Context) ([]*models.Document, error)

	// Chunk operations
	BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error
	ListChunks(ctx context.Context) ([]*models.Chunk, error)

	Close() error
}
