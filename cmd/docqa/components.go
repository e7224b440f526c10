package main

import (
	"context"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/embedding"
	"github.com/hyperjump/docqa/internal/extract"
	"github.com/hyperjump/docqa/internal/generator"
	"github.com/hyperjump/docqa/internal/index"
	"github.com/hyperjump/docqa/internal/indexer"
	"github.com/hyperjump/docqa/internal/qa"
	"github.com/hyperjump/docqa/internal/retriever"
	"go.uber.org/zap"
)

// Components holds everything a serving process owns.
type Components struct {
	Embedder embedding.Embedder
	Index    *index.Index
	Service  *qa.Service
}

func (c *Components) Close() {
	if c.Index != nil {
		_ = c.Index.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// openIndex creates the embedder and loads the index, building it first if absent.
func openIndex(ctx context.Context, cfg *config.Config, logger *zap.Logger, force bool) (embedding.Embedder, *index.Index, error) {
	embedder, err := embedding.New(cfg.Embedding, logger)
	if err != nil {
		return nil, nil, err
	}
	ix, err := indexer.NewIndexer(cfg, embedder, extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithCache(embedding.NewEmbeddingCache(cfg.Embedding.CacheSize)),
	)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, err
	}
	idx, err := ix.LoadOrBuild(ctx, force)
	if err != nil {
		_ = embedder.Close()
		return nil, nil, err
	}
	return embedder, idx, nil
}

// initializeComponents wires the answering pipeline. The generator credential is checked
// before any index work so a missing key fails fast.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	gen, err := generator.NewFromConfig(cfg.Generator, generator.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	embedder, idx, err := openIndex(ctx, cfg, logger, false)
	if err != nil {
		return nil, err
	}
	r := retriever.New(embedder, idx,
		retriever.WithK(cfg.Retrieval.K),
		retriever.WithLogger(logger),
	)
	return &Components{
		Embedder: embedder,
		Index:    idx,
		Service:  qa.NewService(idx, r, gen, qa.WithLogger(logger)),
	}, nil
}
