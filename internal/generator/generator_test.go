package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type chatRequest struct {
	Model       string  `json:"model"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func testConfig(baseURL string) config.GeneratorConfig {
	temp := 0.7
	return config.GeneratorConfig{
		BaseURL:     baseURL,
		Model:       "llama3-8b-8192",
		Temperature: &temp,
		MaxTokens:   256,
		APIKeyEnv:   "GROQ_API_KEY",
		Timeout:     5 * time.Second,
	}
}

func completion(content string) string {
	body, _ := json.Marshal(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "llama3-8b-8192",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(body)
}

func TestGenerate_Success(t *testing.T) {
	var got chatRequest
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completion("  Total assets increased by 5%.  ")))
	}))
	defer server.Close()

	g := New(testConfig(server.URL), "test-key")
	answer, err := g.Generate(context.Background(), "How did total assets change?", []string{
		"Total assets increased by 5%.",
		"Revenue was flat.",
	})
	require.NoError(t, err)
	assert.Equal(t, "Total assets increased by 5%.", answer)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "llama3-8b-8192", got.Model)
	assert.InDelta(t, 0.7, got.Temperature, 1e-6)
	assert.Equal(t, 256, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, "Total assets increased by 5%.\n\nRevenue was flat.")
	assert.Contains(t, got.Messages[0].Content, "don't know")
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "How did total assets change?", got.Messages[1].Content)
}

func TestGenerate_Failures(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantCause string
	}{
		{
			name:      "unauthorized",
			status:    http.StatusUnauthorized,
			body:      `{"error":{"message":"Invalid API Key","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantCause: CauseAuth,
		},
		{
			name:      "forbidden plain body",
			status:    http.StatusForbidden,
			body:      "forbidden",
			wantCause: CauseAuth,
		},
		{
			name:      "server error",
			status:    http.StatusInternalServerError,
			body:      "internal error",
			wantCause: CauseUpstream,
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `{"error":{"message":"Rate limit reached","type":"requests"}}`,
			wantCause: CauseUpstream,
		},
		{
			name:      "no choices",
			status:    http.StatusOK,
			body:      `{"id":"x","object":"chat.completion","choices":[]}`,
			wantCause: CauseEmpty,
		},
		{
			name:      "blank content",
			status:    http.StatusOK,
			body:      completion("   "),
			wantCause: CauseEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			g := New(testConfig(server.URL), "test-key")
			_, err := g.Generate(context.Background(), "question", []string{"context"})
			require.Error(t, err)
			assert.ErrorIs(t, err, errs.ErrGeneration)
			assert.Equal(t, tt.wantCause, errs.CauseOf(err))
		})
	}
}

func TestGenerate_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	g := New(testConfig(url), "test-key")
	_, err := g.Generate(context.Background(), "question", []string{"context"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.Equal(t, CauseNetwork, errs.CauseOf(err))
}

func TestGenerate_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	g := New(testConfig(server.URL), "test-key")
	_, err := g.Generate(ctx, "question", []string{"context"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrGeneration)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFromConfig_MissingKey(t *testing.T) {
	t.Setenv("DOCQA_TEST_MISSING_KEY", "")
	cfg := testConfig("http://localhost")
	cfg.APIKeyEnv = "DOCQA_TEST_MISSING_KEY"

	_, err := NewFromConfig(cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestRenderSystem(t *testing.T) {
	out, err := renderSystem([]string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Contains(t, out, "----------------\na\n\nb\n\nc")

	out, err = renderSystem(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "----------------\n")
}
