// Package qa answers questions about the indexed document: retrieve relevant chunks, then
// ask the generator. A Service is built once at startup and shared by all requests.
package qa

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/generator"
	"github.com/hyperjump/docqa/internal/index"
	"github.com/hyperjump/docqa/internal/keyword"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/internal/retriever"
	"github.com/hyperjump/docqa/internal/storage"
	"github.com/hyperjump/docqa/pkg/utils"
	"go.uber.org/zap"
)

// Search modes for SearchChunks.
const (
	ModeKeyword = "keyword"
	ModeHybrid  = "hybrid"
)

// Default weights for hybrid chunk search.
const (
	DefaultKeywordWeight  = 0.5
	DefaultSemanticWeight = 0.5
)

// Retriever returns the chunks most relevant to a query.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]*models.SearchResult, error)
	RetrieveTop(ctx context.Context, query string, k int) ([]*models.SearchResult, error)
	K() int
}

// Index is the part of the loaded index the service reports on and searches by keyword.
type Index interface {
	KeywordSearch(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]*models.SearchResult, error)
	Size() int
	Manifest() index.Manifest
	Dir() string
}

// Service holds the application state shared by request handlers.
type Service struct {
	index     Index
	retriever Retriever
	generator generator.Answerer
	logger    *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service over a loaded index.
func NewService(idx Index, r Retriever, g generator.Answerer, opts ...Option) *Service {
	s := &Service{index: idx, retriever: r, generator: g, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ask answers query from the retrieved chunks. Each call is independent.
func (s *Service) Ask(ctx context.Context, query string) (*models.Answer, error) {
	start := time.Now()
	req := models.AskRequest{Query: query}
	if err := req.Validate(); err != nil {
		return nil, errs.New(errs.KindValidation, "qa.Ask", err)
	}

	results, err := s.retriever.Retrieve(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	text, err := s.generator.Generate(ctx, req.Query, retriever.Texts(results))
	if err != nil {
		return nil, err
	}

	s.logger.Info("answered question",
		zap.String("query", utils.Truncate(req.Query, 80)),
		zap.Int("chunks", len(results)),
		zap.Duration("took", time.Since(start)),
	)
	return &models.Answer{Query: req.Query, Text: text, Sources: results}, nil
}

// SearchChunks looks up chunks matching query. Keyword mode ranks by full-text score; hybrid
// mode fuses normalized keyword scores with cosine similarity. limit <= 0 is a validation error.
// opts tunes keyword matching and may be nil.
func (s *Service) SearchChunks(ctx context.Context, query string, limit int, mode string, opts *keyword.SearchOptions) (*models.ChunkSearchResponse, error) {
	const op = "qa.SearchChunks"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Newf(errs.KindValidation, op, "query cannot be empty")
	}
	if limit <= 0 {
		return nil, errs.Newf(errs.KindValidation, op, "limit must be positive, got %d", limit)
	}
	if opts != nil {
		if opts.PhraseBoost < 0 || math.IsNaN(opts.PhraseBoost) || math.IsInf(opts.PhraseBoost, 0) {
			return nil, errs.Newf(errs.KindValidation, op, "phrase boost must be a non-negative number, got %v", opts.PhraseBoost)
		}
		if opts.Fuzziness < 0 || opts.Fuzziness > 2 {
			return nil, errs.Newf(errs.KindValidation, op, "fuzziness must be 1 or 2, got %d", opts.Fuzziness)
		}
	}

	var results []*models.SearchResult
	switch mode {
	case "", ModeKeyword:
		hits, err := s.index.KeywordSearch(ctx, query, limit, opts)
		if err != nil {
			return nil, err
		}
		results = hits
	case ModeHybrid:
		keywordHits, err := s.index.KeywordSearch(ctx, query, limit, opts)
		if err != nil {
			return nil, err
		}
		semanticHits, err := s.retriever.RetrieveTop(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		results = fuse(keywordHits, semanticHits, DefaultKeywordWeight, DefaultSemanticWeight)
		if len(results) > limit {
			results = results[:limit]
		}
	default:
		return nil, errs.Newf(errs.KindValidation, op, "unknown search mode %q", mode)
	}

	if results == nil {
		results = []*models.SearchResult{}
	}
	return &models.ChunkSearchResponse{Query: query, Results: results, Total: len(results)}, nil
}

// Status describes the loaded index.
type Status struct {
	Chunks         int    `json:"chunks"`
	Dimensions     int    `json:"dimensions"`
	Model          string `json:"model"`
	IndexDir       string `json:"index_dir"`
	Source         string `json:"source"`
	PageCount      int    `json:"page_count"`
	BuiltAt        string `json:"built_at"`
	K              int    `json:"k"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// Status reports on the loaded index. Disk usage is best effort.
func (s *Service) Status() Status {
	m := s.index.Manifest()
	st := Status{
		Chunks:     s.index.Size(),
		Dimensions: m.Dimensions,
		Model:      m.Model,
		IndexDir:   s.index.Dir(),
		Source:     m.Source.Path,
		PageCount:  m.Source.PageCount,
		BuiltAt:    m.CreatedAt,
		K:          s.retriever.K(),
	}
	if st.IndexDir != "" {
		if n, err := storage.DiskUsageBytes(st.IndexDir); err == nil {
			st.DiskUsageBytes = n
		} else {
			s.logger.Warn("disk usage failed", zap.String("dir", st.IndexDir), zap.Error(err))
		}
	}
	return st
}
