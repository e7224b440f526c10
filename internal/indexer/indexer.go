package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/embedding"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/extract"
	"github.com/hyperjump/docqa/internal/index"
	"go.uber.org/zap"
)

const (
	embedBatchSize = 64
	lockRetryDelay = 200 * time.Millisecond
)

// Indexer builds the index for the configured source document and persists it.
type Indexer struct {
	sourcePath string
	indexDir   string
	chunker    *Chunker
	chunking   config.ChunkingConfig
	embedder   embedding.Embedder
	extractor  *extract.Extractor
	cache      *embedding.EmbeddingCache
	logger     *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for build progress.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// WithCache dedupes chunk texts through cache while embedding.
func WithCache(c *embedding.EmbeddingCache) IndexerOption {
	return func(ix *Indexer) { ix.cache = c }
}

// NewIndexer creates an indexer for cfg's source and index directory. Invalid chunking
// settings are a validation error.
func NewIndexer(cfg *config.Config, embedder embedding.Embedder, extractor *extract.Extractor, opts ...IndexerOption) (*Indexer, error) {
	chunker, err := NewChunker(cfg.Chunking.WindowSize, cfg.Chunking.OverlapOrDefault())
	if err != nil {
		return nil, err
	}
	if extractor == nil {
		extractor = extract.NewExtractor()
	}
	ix := &Indexer{
		sourcePath: cfg.Source.Path,
		indexDir:   cfg.Index.Dir,
		chunker:    chunker,
		chunking:   cfg.Chunking,
		embedder:   embedder,
		extractor:  extractor,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Build extracts, chunks, and embeds the source document into an in-memory index.
func (ix *Indexer) Build(ctx context.Context) (*index.Index, error) {
	start := time.Now()
	doc, pages, err := ix.extractor.Pages(ix.sourcePath)
	if err != nil {
		return nil, err
	}
	ix.logger.Info("indexer extracting document",
		zap.String("path", doc.Path), zap.Int("pages", doc.PageCount), zap.Int64("size", doc.Size))

	chunks, err := ix.chunker.Chunk(doc.ID, pages)
	if err != nil {
		return nil, err
	}
	ix.logger.Debug("indexer chunked document", zap.Int("chunks", len(chunks)))

	vectors := make([][]float32, 0, len(chunks))
	for i := 0; i < len(chunks); i += embedBatchSize {
		end := min(i+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-i)
		for _, ch := range chunks[i:end] {
			texts = append(texts, ch.Content)
		}
		batch, err := embedding.EmbedBatchCached(ctx, ix.embedder, ix.cache, texts)
		if err != nil {
			return nil, errs.New(errs.KindEmbedding, "indexer.Build", fmt.Errorf("embed chunks %d-%d: %w", i, end-1, err))
		}
		vectors = append(vectors, batch...)
		ix.logger.Debug("indexer embedded batch", zap.Int("done", end), zap.Int("total", len(chunks)))
	}

	idx, err := index.Build(doc, chunks, vectors, index.BuildInfo{
		Model:      ix.embedder.Model(),
		Dimensions: ix.embedder.Dimensions(),
		WindowSize: ix.chunking.WindowSize,
		Overlap:    ix.chunking.OverlapOrDefault(),
	})
	if err != nil {
		return nil, err
	}
	ix.logger.Info("indexer built index",
		zap.Int("chunks", idx.Size()), zap.Duration("elapsed", time.Since(start)))
	return idx, nil
}

// LoadOrBuild returns the persisted index, building and persisting it first if none exists.
// With force, any existing index is rebuilt. Building holds a file lock next to the index
// directory so concurrent processes build once; a waiting process loads the result.
// A corrupt index, or one built with a different embedding model, is returned as an error
// rather than silently rebuilt.
func (ix *Indexer) LoadOrBuild(ctx context.Context, force bool) (*index.Index, error) {
	if !force {
		idx, err := ix.load(ctx)
		if err == nil || errs.KindOf(err) != errs.KindNotFound {
			return idx, err
		}
		ix.logger.Info("indexer no index found, building", zap.String("dir", ix.indexDir))
	}

	unlock, err := ix.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !force {
		// Another process may have built the index while we waited for the lock.
		idx, err := ix.load(ctx)
		if err == nil || errs.KindOf(err) != errs.KindNotFound {
			return idx, err
		}
	}

	built, err := ix.Build(ctx)
	if err != nil {
		return nil, err
	}
	if err := built.Persist(ctx, ix.indexDir); err != nil {
		return nil, fmt.Errorf("persist index: %w", err)
	}
	ix.logger.Info("indexer persisted index", zap.String("dir", ix.indexDir))
	return ix.load(ctx)
}

func (ix *Indexer) load(ctx context.Context) (*index.Index, error) {
	idx, err := index.Load(ctx, ix.indexDir)
	if err != nil {
		return nil, err
	}
	m := idx.Manifest()
	if m.Model != ix.embedder.Model() || m.Dimensions != ix.embedder.Dimensions() {
		_ = idx.Close()
		return nil, errs.Newf(errs.KindConfiguration, "indexer.load",
			"index at %s was built with model %q (%d dims) but the embedder is %q (%d dims); rebuild with `docqa index --force`",
			ix.indexDir, m.Model, m.Dimensions, ix.embedder.Model(), ix.embedder.Dimensions())
	}
	ix.logger.Info("indexer loaded index",
		zap.String("dir", ix.indexDir), zap.Int("chunks", idx.Size()), zap.String("model", m.Model))
	return idx, nil
}

// lock takes the build lock at <index dir>.lock, polling until acquired or ctx is done.
func (ix *Indexer) lock(ctx context.Context) (func(), error) {
	lockPath := filepath.Clean(ix.indexDir) + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	l := flock.New(lockPath)
	waiting := false
	for {
		locked, err := l.TryLock()
		if err != nil {
			return nil, fmt.Errorf("cannot acquire index lock %s: %w", lockPath, err)
		}
		if locked {
			return func() { _ = l.Unlock() }, nil
		}
		if !waiting {
			ix.logger.Info("indexer waiting for another build to finish", zap.String("lock", lockPath))
			waiting = true
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for index lock %s: %w", lockPath, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}
