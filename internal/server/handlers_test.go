package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/docqa/internal/config"
	"github.com/hyperjump/docqa/internal/embedding"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/generator"
	"github.com/hyperjump/docqa/internal/index"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/internal/qa"
	"github.com/hyperjump/docqa/internal/retriever"
	"go.uber.org/zap"
)

var pages = []string{
	"Group overview: the company operates in three regions.",
	"Total assets increased by 5% compared to the prior year.",
	"Outlook: management expects stable growth next year.",
}

// scriptedGenerator answers from the top chunk, or fails with err while it is set.
type scriptedGenerator struct {
	err   error
	block bool
	query string
}

func (g *scriptedGenerator) Generate(ctx context.Context, query string, chunks []string) (string, error) {
	g.query = query
	if g.block {
		<-ctx.Done()
		return "", errs.New(errs.KindGeneration, "generator.Generate", ctx.Err()).WithCause(generator.CauseNetwork)
	}
	if g.err != nil {
		return "", g.err
	}
	if len(chunks) == 0 {
		return "I don't know.", nil
	}
	return "According to the document: " + chunks[0], nil
}

type brokenEmbedder struct{ *embedding.MockEmbedder }

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errs.Newf(errs.KindEmbedding, "embedding.Embed", "model unavailable")
}

func loadIndex(t *testing.T, e embedding.Embedder) *index.Index {
	t.Helper()
	ctx := context.Background()
	chunks := make([]*models.Chunk, len(pages))
	for i, text := range pages {
		chunks[i] = &models.Chunk{ID: fmt.Sprintf("chunk-%d", i), DocumentID: "doc:test", Content: text, Page: i + 1, ChunkIndex: i}
	}
	vectors, err := e.EmbedBatch(ctx, pages)
	if err != nil {
		t.Fatal(err)
	}
	doc := &models.Document{ID: "doc:test", Path: "/data/report.pdf", Title: "report.pdf", PageCount: 3}
	built, err := index.Build(doc, chunks, vectors, index.BuildInfo{Model: e.Model(), Dimensions: e.Dimensions(), WindowSize: 500, Overlap: 50})
	if err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "index")
	if err := built.Persist(ctx, dir); err != nil {
		t.Fatal(err)
	}
	_ = built.Close()
	idx, err := index.Load(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func newTestServer(t *testing.T, gen generator.Answerer, queryEmbedder embedding.Embedder, timeout time.Duration) http.Handler {
	t.Helper()
	e := embedding.NewMockEmbedder(1024)
	if queryEmbedder == nil {
		queryEmbedder = e
	}
	idx := loadIndex(t, e)
	svc := qa.NewService(idx, retriever.New(queryEmbedder, idx), gen)
	cfg := config.Default()
	cfg.Server.RequestTimeout = timeout
	return NewServer(svc, cfg, zap.NewNop()).Handler()
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, target, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if out["error"] == "" {
		t.Fatalf("expected error message, got %v", out)
	}
	return out["error"]
}

func TestHandleAsk(t *testing.T) {
	h := newTestServer(t, &scriptedGenerator{}, nil, time.Minute)

	for _, path := range []string{"/ask/", "/ask"} {
		w := do(t, h, http.MethodPost, path, `{"query":"How did total assets change?"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: status %d, body %s", path, w.Code, w.Body.String())
		}
		if ct := w.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		var resp models.AskResponse
		if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
			t.Fatal(err)
		}
		if resp.Query != "How did total assets change?" {
			t.Errorf("query = %q", resp.Query)
		}
		if !strings.Contains(resp.Answer, "Total assets increased by 5%") {
			t.Errorf("answer = %q", resp.Answer)
		}
	}
}

func TestHandleAsk_EchoesQueryAsReceived(t *testing.T) {
	gen := &scriptedGenerator{}
	h := newTestServer(t, gen, nil, time.Minute)
	raw := "  What happened to total assets?\n"
	body, _ := json.Marshal(models.AskRequest{Query: raw})

	w := do(t, h, http.MethodPost, "/ask/", string(body))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var resp models.AskResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Query != raw {
		t.Errorf("query = %q, want %q", resp.Query, raw)
	}
	if gen.query != "What happened to total assets?" {
		t.Errorf("generator saw %q, want the trimmed query", gen.query)
	}
}

func TestHandleAsk_BadRequest(t *testing.T) {
	h := newTestServer(t, &scriptedGenerator{}, nil, time.Minute)
	tests := []struct {
		name string
		body string
	}{
		{"empty query", `{"query":""}`},
		{"blank query", `{"query":"   "}`},
		{"missing query", `{}`},
		{"malformed json", `{"query":`},
		{"wrong type", `{"query":42}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/ask/", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status %d, want 400", w.Code)
			}
			decodeError(t, w)
		})
	}
}

func TestHandleAsk_GenerationFailureThenRecovery(t *testing.T) {
	gen := &scriptedGenerator{
		err: errs.Newf(errs.KindGeneration, "generator.Generate", "status 500").WithCause(generator.CauseUpstream),
	}
	h := newTestServer(t, gen, nil, time.Minute)

	w := do(t, h, http.MethodPost, "/ask/", `{"query":"total assets"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status %d, want 502", w.Code)
	}
	if msg := decodeError(t, w); !strings.Contains(msg, "generation") {
		t.Errorf("error = %q", msg)
	}

	gen.err = nil
	w = do(t, h, http.MethodPost, "/ask/", `{"query":"total assets"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("after recovery: status %d, body %s", w.Code, w.Body.String())
	}
}

func TestHandleAsk_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name     string
		gen      *scriptedGenerator
		embedder embedding.Embedder
		timeout  time.Duration
		want     int
	}{
		{
			name: "auth",
			gen:  &scriptedGenerator{err: errs.Newf(errs.KindGeneration, "op", "401").WithCause(generator.CauseAuth)},
			want: http.StatusBadGateway,
		},
		{
			name: "empty completion",
			gen:  &scriptedGenerator{err: errs.Newf(errs.KindGeneration, "op", "no choices").WithCause(generator.CauseEmpty)},
			want: http.StatusBadGateway,
		},
		{
			name: "network",
			gen:  &scriptedGenerator{err: errs.Newf(errs.KindGeneration, "op", "connection refused").WithCause(generator.CauseNetwork)},
			want: http.StatusServiceUnavailable,
		},
		{
			name:     "embedding",
			gen:      &scriptedGenerator{},
			embedder: brokenEmbedder{embedding.NewMockEmbedder(1024)},
			want:     http.StatusInternalServerError,
		},
		{
			name:    "request timeout",
			gen:     &scriptedGenerator{block: true},
			timeout: 50 * time.Millisecond,
			want:    http.StatusGatewayTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			timeout := tt.timeout
			if timeout == 0 {
				timeout = time.Minute
			}
			h := newTestServer(t, tt.gen, tt.embedder, timeout)
			w := do(t, h, http.MethodPost, "/ask/", `{"query":"total assets"}`)
			if w.Code != tt.want {
				t.Errorf("status %d, want %d (body %s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t, &scriptedGenerator{}, nil, time.Minute)
	w := do(t, h, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out map[string]string
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["status"] != "ok" {
		t.Errorf("status = %q", out["status"])
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestServer(t, &scriptedGenerator{}, nil, time.Minute)
	w := do(t, h, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var out map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if out["chunks"] != float64(3) {
		t.Errorf("chunks = %v", out["chunks"])
	}
	if out["model"] != embedding.MockModel {
		t.Errorf("model = %v", out["model"])
	}
	if usage, _ := out["disk_usage_bytes"].(float64); usage <= 0 {
		t.Errorf("disk_usage_bytes = %v", out["disk_usage_bytes"])
	}
	cfg, ok := out["config"].(map[string]interface{})
	if !ok {
		t.Fatalf("config missing: %v", out)
	}
	if cfg["k"] != float64(3) || cfg["generator_model"] != "llama3-8b-8192" {
		t.Errorf("config = %v", cfg)
	}
	for _, key := range []string{"dimensions", "index_dir", "source", "page_count", "built_at", "k"} {
		if _, ok := out[key]; !ok {
			t.Errorf("status is missing %q: %v", key, out)
		}
	}
	if out["page_count"] != float64(3) || out["source"] != "/data/report.pdf" {
		t.Errorf("source fields = %v, %v", out["source"], out["page_count"])
	}
}

func TestHandleChunkSearch(t *testing.T) {
	h := newTestServer(t, &scriptedGenerator{}, nil, time.Minute)

	w := do(t, h, http.MethodGet, "/api/v1/chunks/search?q=assets&limit=5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", w.Code, w.Body.String())
	}
	var resp models.ChunkSearchResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].Chunk.Page != 2 {
		t.Errorf("results = %+v", resp.Results)
	}

	w = do(t, h, http.MethodGet, "/api/v1/chunks/search?q=total+assets&mode=hybrid&limit=2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("hybrid: status %d, body %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/api/v1/chunks/search?q=asets&fuzzy=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("fuzzy: status %d, body %s", w.Code, w.Body.String())
	}
	resp = models.ChunkSearchResponse{}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].Chunk.Page != 2 {
		t.Errorf("fuzzy results = %+v", resp.Results)
	}

	w = do(t, h, http.MethodGet, "/api/v1/chunks/search?q=stable+growth&phrase_boost=1.5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("phrase boost: status %d, body %s", w.Code, w.Body.String())
	}

	for _, target := range []string{
		"/api/v1/chunks/search",
		"/api/v1/chunks/search?q=assets&fuzzy=maybe",
		"/api/v1/chunks/search?q=assets&phrase_boost=high",
		"/api/v1/chunks/search?q=assets&phrase_boost=-2",
		"/api/v1/chunks/search?q=assets&limit=abc",
		"/api/v1/chunks/search?q=assets&limit=0",
		"/api/v1/chunks/search?q=assets&mode=nope",
	} {
		w := do(t, h, http.MethodGet, target, "")
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status %d, want 400", target, w.Code)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", errs.Newf(errs.KindValidation, "op", "bad"), http.StatusBadRequest},
		{"embedding", errs.Newf(errs.KindEmbedding, "op", "bad"), http.StatusInternalServerError},
		{"not found", errs.Newf(errs.KindNotFound, "op", "missing"), http.StatusNotFound},
		{"generation upstream", errs.Newf(errs.KindGeneration, "op", "x").WithCause(generator.CauseUpstream), http.StatusBadGateway},
		{"generation network", errs.Newf(errs.KindGeneration, "op", "x").WithCause(generator.CauseNetwork), http.StatusServiceUnavailable},
		{"deadline inside generation", errs.New(errs.KindGeneration, "op", context.DeadlineExceeded).WithCause(generator.CauseNetwork), http.StatusGatewayTimeout},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}
