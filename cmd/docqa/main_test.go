package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/models"
	"go.uber.org/zap"
)

const reportText = "Group overview: the company operates in three regions.\f" +
	"Total assets increased by 5% compared to the prior year.\f" +
	"Outlook: management expects stable growth next year."

func testConfig(t *testing.T, generatorURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	source := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(source, []byte(reportText), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := &config.Config{
		Source:    config.SourceConfig{Path: source},
		Index:     config.IndexConfig{Dir: filepath.Join(dir, "index")},
		Embedding: config.EmbeddingConfig{Provider: config.ProviderMock, Dimensions: 1024},
		Generator: config.GeneratorConfig{BaseURL: generatorURL, APIKeyEnv: "DOCQA_TEST_GROQ_KEY"},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestInitializeComponents_MissingCredential(t *testing.T) {
	t.Setenv("DOCQA_TEST_GROQ_KEY", "")
	cfg := testConfig(t, "http://127.0.0.1:1")

	_, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if !errors.Is(err, errs.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "DOCQA_TEST_GROQ_KEY") {
		t.Errorf("error should name the missing variable: %v", err)
	}
	if _, statErr := os.Stat(cfg.Index.Dir); !os.IsNotExist(statErr) {
		t.Errorf("index should not be built without a credential (stat err %v)", statErr)
	}
}

func TestInitializeComponents_AskEndToEnd(t *testing.T) {
	var gotSystem string
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) > 0 {
			gotSystem = req.Messages[0].Content
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Total assets increased by 5%."},"finish_reason":"stop"}]}`))
	}))
	defer llm.Close()

	t.Setenv("DOCQA_TEST_GROQ_KEY", "test-key")
	cfg := testConfig(t, llm.URL)

	components, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer components.Close()

	if components.Index.Size() != 3 {
		t.Errorf("index size = %d, want 3", components.Index.Size())
	}
	answer, err := components.Service.Ask(context.Background(), "How did total assets change?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.Text != "Total assets increased by 5%." {
		t.Errorf("answer = %q", answer.Text)
	}
	if answer.Sources[0].Chunk.Page != 2 {
		t.Errorf("top source page = %d, want 2", answer.Sources[0].Chunk.Page)
	}
	if !strings.Contains(gotSystem, "Total assets increased by 5%") {
		t.Errorf("prompt missing retrieved context: %q", gotSystem)
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("missing default path uses defaults", func(t *testing.T) {
		t.Setenv("DOCQA_PORT", "9090")
		cfg, resolved, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"), false)
		if err != nil {
			t.Fatal(err)
		}
		if resolved != "" {
			t.Errorf("resolved = %q, want empty", resolved)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("port = %d, want 9090", cfg.Server.Port)
		}
		if cfg.Generator.Model != "llama3-8b-8192" {
			t.Errorf("generator model = %q", cfg.Generator.Model)
		}
	})

	t.Run("missing explicit path fails", func(t *testing.T) {
		_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"), true)
		if err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("file is loaded and validated", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		data := "source:\n  path: report.pdf\nretrieval:\n  k: 5\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		cfg, resolved, err := loadConfig(path, true)
		if err != nil {
			t.Fatal(err)
		}
		if resolved != path {
			t.Errorf("resolved = %q", resolved)
		}
		if cfg.Retrieval.K != 5 {
			t.Errorf("k = %d, want 5", cfg.Retrieval.K)
		}
		if cfg.Source.Path != filepath.Join(dir, "report.pdf") {
			t.Errorf("source = %q", cfg.Source.Path)
		}
	})

	t.Run("invalid file fails validation", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		data := "chunking:\n  window_size: 10\n  overlap: 10\n"
		if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
		_, _, err := loadConfig(path, true)
		if !errors.Is(err, errs.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
	})
}

func TestAskViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ask/" {
			http.NotFound(w, r)
			return
		}
		var req models.AskRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		if req.Query == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"generator.Generate: generation: status 500"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(models.AskResponse{Query: req.Query, Answer: "42"})
	}))
	defer srv.Close()

	answer, err := askViaHTTP(context.Background(), srv.URL+"/", "what is it?")
	if err != nil {
		t.Fatal(err)
	}
	if answer.Query != "what is it?" || answer.Text != "42" {
		t.Errorf("answer = %+v", answer)
	}

	_, err = askViaHTTP(context.Background(), srv.URL, "fail")
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "generation") {
		t.Errorf("expected 502 generation error, got %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	var out strings.Builder
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	if !strings.Contains(out.String(), "docqa version dev") {
		t.Errorf("output = %q", out.String())
	}
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")
	if err := writeDefaultConfig(path, false); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("written config should validate: %v", err)
	}
	if cfg.Retrieval.K != config.Default().Retrieval.K {
		t.Errorf("k = %d", cfg.Retrieval.K)
	}

	if err := writeDefaultConfig(path, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("expected refusal to overwrite, got %v", err)
	}
	if err := writeDefaultConfig(path, true); err != nil {
		t.Errorf("force overwrite: %v", err)
	}
}
