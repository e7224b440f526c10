// Package embedding turns text into fixed-length vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/errs"
	"go.uber.org/zap"
)

// Embedder produces vector embeddings for text. Implementations are pure per model:
// the same text always yields the same vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Model() string
	Close() error
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	const op = "embedding.New"
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case config.ProviderONNX:
		logger.Info("loading onnx embedding model",
			zap.String("path", cfg.ModelPath), zap.String("vocab", cfg.VocabPath), zap.Int("dimensions", cfg.Dimensions))
		return NewONNXEmbedder(cfg.ModelPath, cfg.VocabPath, cfg.Model, cfg.Dimensions, cfg.MaxTokens, cfg.Truncate)
	case config.ProviderOpenAI:
		key, err := cfg.APIKey()
		if err != nil {
			return nil, err
		}
		logger.Info("using openai embeddings", zap.String("model", cfg.Model), zap.String("base_url", cfg.BaseURL))
		return NewOpenAIEmbedder(OpenAIConfig{
			APIKey:     key,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
			Truncate:   cfg.Truncate,
		}), nil
	case config.ProviderMock:
		return NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, errs.New(errs.KindConfiguration, op, fmt.Errorf("unknown embedding provider %q", cfg.Provider))
	}
}
