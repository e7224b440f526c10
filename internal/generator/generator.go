// Package generator asks a hosted chat-completion model to answer a question from retrieved context.
package generator

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/errs"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Cause classes attached to generation errors.
const (
	CauseNetwork  = "network"
	CauseAuth     = "auth"
	CauseUpstream = "upstream"
	CauseEmpty    = "empty"
)

const op = "generator.Generate"

// Answerer produces an answer to query grounded on chunks.
type Answerer interface {
	Generate(ctx context.Context, query string, chunks []string) (string, error)
}

// Generator calls an OpenAI-compatible chat-completions endpoint once per question.
// It never retries; a failed call is reported to the caller as a GenerationError.
type Generator struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	logger      *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogger sets a logger for per-call debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a generator from cfg using apiKey as the bearer credential.
func New(cfg config.GeneratorConfig, apiKey string, opts ...Option) *Generator {
	clientCfg := openai.DefaultConfig(apiKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	g := &Generator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: float32(cfg.TemperatureOrDefault()),
		maxTokens:   cfg.MaxTokens,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// NewFromConfig reads the credential named by cfg and creates a generator.
// A missing credential is a ConfigurationError.
func NewFromConfig(cfg config.GeneratorConfig, opts ...Option) (*Generator, error) {
	key, err := cfg.APIKey()
	if err != nil {
		return nil, err
	}
	return New(cfg, key, opts...), nil
}

// Model returns the configured model name.
func (g *Generator) Model() string { return g.model }

// Generate sends the rendered prompt and returns the first choice's content.
func (g *Generator) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	system, err := renderSystem(chunks)
	if err != nil {
		return "", errs.New(errs.KindGeneration, op, err)
	}

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", errs.Newf(errs.KindGeneration, op, "no choices in response").WithCause(CauseEmpty)
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", errs.Newf(errs.KindGeneration, op, "empty completion").WithCause(CauseEmpty)
	}

	if ce := g.logger.Check(zap.DebugLevel, "generated answer"); ce != nil {
		ce.Write(
			zap.String("model", g.model),
			zap.Int("context_chunks", len(chunks)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		)
	}
	return answer, nil
}

// classify maps a client error to a GenerationError with a cause.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	e := errs.New(errs.KindGeneration, op, err)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return e.WithCause(CauseAuth)
	case status != 0:
		return e.WithCause(CauseUpstream)
	default:
		return e.WithCause(CauseNetwork)
	}
}
