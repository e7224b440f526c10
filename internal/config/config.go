// Package config provides configuration loading and structs for the docqa server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/docqa/internal/errs"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Source    SourceConfig    `yaml:"source"`
	Index     IndexConfig     `yaml:"index"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Generator GeneratorConfig `yaml:"generator"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// SourceConfig names the one document this deployment answers questions about.
type SourceConfig struct {
	Path string `yaml:"path"`
}

// IndexConfig holds the persisted index location.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// ChunkingConfig holds the sliding window settings, in characters.
type ChunkingConfig struct {
	WindowSize int  `yaml:"window_size"`
	Overlap    *int `yaml:"overlap"`
}

// OverlapOrDefault returns the configured overlap; an explicit 0 is kept.
func (c ChunkingConfig) OverlapOrDefault() int {
	if c.Overlap != nil {
		return *c.Overlap
	}
	return DefaultChunkOverlap
}

// EmbeddingConfig selects and configures the embedder.
// Provider is one of "onnx", "openai", "mock".
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	Truncate   bool   `yaml:"truncate"`
	CacheSize  int    `yaml:"cache_size"`
	BaseURL    string `yaml:"base_url"`
	APIKeyEnv  string `yaml:"api_key_env"`
}

// RetrievalConfig holds retriever settings.
type RetrievalConfig struct {
	K int `yaml:"k"`
}

// GeneratorConfig configures the remote chat-completion endpoint.
type GeneratorConfig struct {
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature *float64      `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TemperatureOrDefault returns the configured temperature; an explicit 0 is kept.
func (g GeneratorConfig) TemperatureOrDefault() float64 {
	if g.Temperature != nil {
		return *g.Temperature
	}
	return DefaultTemperature
}

// APIKey reads the generator credential from the environment.
func (g GeneratorConfig) APIKey() (string, error) {
	return lookupKey("config.GeneratorConfig.APIKey", g.APIKeyEnv)
}

// APIKey reads the embedding credential from the environment (openai provider only).
func (e EmbeddingConfig) APIKey() (string, error) {
	return lookupKey("config.EmbeddingConfig.APIKey", e.APIKeyEnv)
}

func lookupKey(op, env string) (string, error) {
	if env == "" {
		return "", errs.Newf(errs.KindConfiguration, op, "api key environment variable name is empty")
	}
	key := strings.TrimSpace(os.Getenv(env))
	if key == "" {
		return "", errs.Newf(errs.KindConfiguration, op, "%s not found in environment", env)
	}
	return key, nil
}

// Default returns a config with all defaults applied. Used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths relative to the config file's directory.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Source.Path = expandPath(cfg.Source.Path, configDir)
	cfg.Index.Dir = expandPath(cfg.Index.Dir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ApplyEnv overrides deployment-specific fields from DOCQA_* environment variables.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("DOCQA_SOURCE"); v != "" {
		cfg.Source.Path = v
	}
	if v := os.Getenv("DOCQA_INDEX_DIR"); v != "" {
		cfg.Index.Dir = v
	}
	if v := os.Getenv("DOCQA_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

// Validate checks value ranges. Chunking and retrieval problems are validation errors;
// an unknown embedding provider is a configuration error.
func (c *Config) Validate() error {
	const op = "config.Validate"
	overlap := c.Chunking.OverlapOrDefault()
	if overlap < 0 || c.Chunking.WindowSize <= overlap {
		return errs.Newf(errs.KindValidation, op,
			"chunking requires window_size > overlap >= 0 (window_size=%d, overlap=%d)", c.Chunking.WindowSize, overlap)
	}
	if c.Retrieval.K <= 0 {
		return errs.Newf(errs.KindValidation, op, "retrieval.k must be positive, got %d", c.Retrieval.K)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errs.Newf(errs.KindValidation, op, "server.port out of range: %d", c.Server.Port)
	}
	switch c.Embedding.Provider {
	case ProviderONNX, ProviderOpenAI, ProviderMock:
	default:
		return errs.Newf(errs.KindConfiguration, op, "unknown embedding provider %q (supported: onnx, openai, mock)", c.Embedding.Provider)
	}
	if c.Source.Path == "" {
		return errs.Newf(errs.KindConfiguration, op, "source.path is required")
	}
	if c.Index.Dir == "" {
		return errs.Newf(errs.KindConfiguration, op, "index.dir is required")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "~/" are relative to the
// home directory; other relative paths are relative to configDir.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
		return path
	}
	return filepath.Join(configDir, path)
}
