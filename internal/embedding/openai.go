package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures an OpenAIEmbedder. BaseURL may point at any OpenAI-compatible
// embeddings endpoint.
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
	MaxTokens  int
	Truncate   bool
}

// OpenAIEmbedder requests embeddings from an OpenAI-compatible API.
type OpenAIEmbedder struct {
	client    *openai.Client
	cfg       OpenAIConfig
	tokenizer Tokenizer
}

// NewOpenAIEmbedder creates an embedder for cfg. No request is made until Embed is called.
func NewOpenAIEmbedder(cfg OpenAIConfig) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientCfg),
		cfg:       cfg,
		tokenizer: &SimpleTokenizer{},
	}
}

// Embed returns the unit-length embedding for text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds all texts in one request. Results are returned in input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.OpenAIEmbedder.EmbedBatch"
	if len(texts) == 0 {
		return nil, nil
	}
	inputs := make([]string, len(texts))
	for i, text := range texts {
		fitted, err := fitTokens(e.tokenizer, text, e.cfg.MaxTokens, e.cfg.Truncate)
		if err != nil {
			return nil, err
		}
		inputs[i] = fitted
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.cfg.Model),
		Input: inputs,
	})
	if err != nil {
		return nil, errs.New(errs.KindEmbedding, op, fmt.Errorf("embeddings request: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Newf(errs.KindEmbedding, op, "got %d embeddings for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, errs.Newf(errs.KindEmbedding, op, "embedding index %d out of range", d.Index)
		}
		if e.cfg.Dimensions > 0 && len(d.Embedding) != e.cfg.Dimensions {
			return nil, errs.Newf(errs.KindEmbedding, op, "model returned %d dimensions, configured %d", len(d.Embedding), e.cfg.Dimensions)
		}
		v := make([]float32, len(d.Embedding))
		for i := range d.Embedding {
			v[i] = float32(d.Embedding[i])
		}
		utils.NormalizeL2(v)
		out[d.Index] = v
	}
	for i, v := range out {
		if v == nil {
			return nil, errs.Newf(errs.KindEmbedding, op, "no embedding returned for input %d", i)
		}
	}
	return out, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.cfg.Dimensions
}

// Model returns the configured model name.
func (e *OpenAIEmbedder) Model() string {
	return e.cfg.Model
}

// Close is a no-op; the HTTP client holds no resources that need releasing.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
