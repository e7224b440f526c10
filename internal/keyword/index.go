// Package keyword provides full-text search over chunk texts.
package keyword

import (
	"context"

	"github.com/hyperjump/docqa/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// PhraseBoost multiplies the score when the query terms appear together as a phrase.
	// Values > 1 boost chunks with adjacent query terms (e.g. 1.5). Use 1.0 for no boost.
	PhraseBoost float64
	// FuzzyEnabled enables fuzzy matching for typo tolerance.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 2 when FuzzyEnabled is true.
	Fuzziness int
}

// KeywordIndex defines keyword search operations over chunks.
type KeywordIndex interface {
	IndexChunks(ctx context.Context, chunks []*models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit. ID is the chunk ID.
type KeywordResult struct {
	ID    string
	Score float64
}
