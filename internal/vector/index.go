// Package vector provides exact cosine-similarity search over embedding vectors.
package vector

import "context"

// VectorIndex stores (id, vector) pairs and answers nearest-neighbour queries.
type VectorIndex interface {
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	Save(path string) error
	Load(path string) error
	IDs() []string
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit. Position is the entry's insertion order.
type VectorResult struct {
	ID       string
	Score    float64 // cosine similarity in [-1, 1]
	Position int
}
