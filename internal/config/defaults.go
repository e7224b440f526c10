package config

import (
	"path/filepath"
	"time"
)

// Embedding providers.
const (
	ProviderONNX   = "onnx"
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

const (
	DefaultChunkOverlap   = 50
	DefaultTemperature    = 0.7
	DefaultRequestTimeout = 60 * time.Second
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Source.Path == "" {
		cfg.Source.Path = "data/document.pdf"
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "data/index"
	}
	if cfg.Chunking.WindowSize == 0 {
		cfg.Chunking.WindowSize = 500
	}
	if cfg.Chunking.Overlap == nil {
		o := DefaultChunkOverlap
		cfg.Chunking.Overlap = &o
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderONNX
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			cfg.Embedding.Model = "text-embedding-3-small"
		case ProviderMock:
			cfg.Embedding.Model = "mock-hash"
		default:
			cfg.Embedding.Model = "all-MiniLM-L6-v2"
		}
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Provider == ProviderONNX && cfg.Embedding.VocabPath == "" {
		cfg.Embedding.VocabPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), "vocab.txt")
	}
	if cfg.Embedding.Dimensions == 0 {
		switch cfg.Embedding.Provider {
		case ProviderOpenAI:
			cfg.Embedding.Dimensions = 1536
		default:
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BaseURL == "" {
		cfg.Embedding.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Retrieval.K == 0 {
		cfg.Retrieval.K = 3
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "llama3-8b-8192"
	}
	if cfg.Generator.Temperature == nil {
		t := DefaultTemperature
		cfg.Generator.Temperature = &t
	}
	if cfg.Generator.MaxTokens == 0 {
		cfg.Generator.MaxTokens = 512
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.Generator.Timeout == 0 {
		cfg.Generator.Timeout = 60 * time.Second
	}
}
