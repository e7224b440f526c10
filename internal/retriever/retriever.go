// Package retriever finds the chunks most relevant to a question.
package retriever

import (
	"context"
	"strings"

	"github.com/hyperjump/docqa/internal/embedding"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/pkg/utils"
	"go.uber.org/zap"
)

// DefaultK is the number of chunks retrieved when none is configured.
const DefaultK = 3

// Searcher is the part of the index the retriever needs.
type Searcher interface {
	Search(ctx context.Context, query []float32, k int) ([]*models.SearchResult, error)
}

// Retriever embeds a question with the model the index was built with and returns the
// top-k chunks. Nothing is cached between calls.
type Retriever struct {
	embedder embedding.Embedder
	index    Searcher
	k        int
	logger   *zap.Logger
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithK sets the number of chunks to retrieve. Values <= 0 keep DefaultK.
func WithK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithLogger sets a logger for per-query debug output.
func WithLogger(l *zap.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// New creates a retriever over index using embedder for queries.
func New(embedder embedding.Embedder, index Searcher, opts ...Option) *Retriever {
	r := &Retriever{embedder: embedder, index: index, k: DefaultK, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// K returns the configured number of chunks per query.
func (r *Retriever) K() int { return r.k }

// Retrieve returns up to k chunks for query, most similar first. An empty query is a
// validation error; embedding failures are embedding errors.
func (r *Retriever) Retrieve(ctx context.Context, query string) ([]*models.SearchResult, error) {
	return r.RetrieveTop(ctx, query, r.k)
}

// RetrieveTop is Retrieve with an explicit k.
func (r *Retriever) RetrieveTop(ctx context.Context, query string, k int) ([]*models.SearchResult, error) {
	const op = "retriever.Retrieve"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Newf(errs.KindValidation, op, "query cannot be empty")
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		if errs.KindOf(err) == errs.KindEmbedding {
			return nil, err
		}
		return nil, errs.New(errs.KindEmbedding, op, err)
	}
	results, err := r.index.Search(ctx, vec, k)
	if err != nil {
		return nil, err
	}
	if ce := r.logger.Check(zap.DebugLevel, "retriever results"); ce != nil {
		pages := make([]int, len(results))
		for i, res := range results {
			pages[i] = res.Chunk.Page
		}
		ce.Write(zap.String("query", utils.Truncate(query, 80)), zap.Int("k", k), zap.Ints("pages", pages))
	}
	return results, nil
}

// Texts returns the chunk texts of results in order.
func Texts(results []*models.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Chunk.Content
	}
	return out
}
