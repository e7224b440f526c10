package qa

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/hyperjump/docqa/internal/embedding"
	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/generator"
	"github.com/hyperjump/docqa/internal/index"
	"github.com/hyperjump/docqa/internal/keyword"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/internal/retriever"
)

var pageTexts = []string{
	"Group overview: the company operates in three regions.",
	"Total assets increased by 5% compared to the prior year.",
	"Outlook: management expects stable growth next year.",
}

type fakeGenerator struct {
	calls  int
	query  string
	chunks []string
	err    error
}

func (g *fakeGenerator) Generate(_ context.Context, query string, chunks []string) (string, error) {
	g.calls++
	g.query = query
	g.chunks = chunks
	if g.err != nil {
		return "", g.err
	}
	return "Total assets increased by 5%.", nil
}

func loadTestIndex(t *testing.T, e embedding.Embedder) *index.Index {
	t.Helper()
	ctx := context.Background()
	chunks := make([]*models.Chunk, len(pageTexts))
	for i, text := range pageTexts {
		chunks[i] = &models.Chunk{ID: fmt.Sprintf("chunk-%d", i), DocumentID: "doc:test", Content: text, Page: i + 1, ChunkIndex: i}
	}
	vectors, err := e.EmbedBatch(ctx, pageTexts)
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

func newTestService(t *testing.T, g generator.Answerer) *Service {
	t.Helper()
	e := embedding.NewMockEmbedder(1024)
	idx := loadTestIndex(t, e)
	return NewService(idx, retriever.New(e, idx, retriever.WithK(2)), g)
}

func TestAsk(t *testing.T) {
	g := &fakeGenerator{}
	s := newTestService(t, g)

	answer, err := s.Ask(context.Background(), "  How did total assets change?  ")
	if err != nil {
		t.Fatal(err)
	}
	if answer.Query != "How did total assets change?" {
		t.Errorf("Query = %q", answer.Query)
	}
	if answer.Text != "Total assets increased by 5%." {
		t.Errorf("Text = %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(answer.Sources))
	}
	if answer.Sources[0].Chunk.Page != 2 {
		t.Errorf("top source page = %d, want 2", answer.Sources[0].Chunk.Page)
	}
	if len(g.chunks) != 2 || g.chunks[0] != pageTexts[1] {
		t.Errorf("generator chunks = %q", g.chunks)
	}
}

func TestAsk_Errors(t *testing.T) {
	t.Run("empty query", func(t *testing.T) {
		g := &fakeGenerator{}
		s := newTestService(t, g)
		_, err := s.Ask(context.Background(), "   ")
		if !errors.Is(err, errs.ErrValidation) {
			t.Errorf("expected validation error, got %v", err)
		}
		if g.calls != 0 {
			t.Error("generator should not be called for an empty query")
		}
	})

	t.Run("generation failure then recovery", func(t *testing.T) {
		g := &fakeGenerator{err: errs.Newf(errs.KindGeneration, "generator.Generate", "boom").WithCause(generator.CauseUpstream)}
		s := newTestService(t, g)
		_, err := s.Ask(context.Background(), "total assets")
		if !errors.Is(err, errs.ErrGeneration) {
			t.Fatalf("expected generation error, got %v", err)
		}
		g.err = nil
		if _, err := s.Ask(context.Background(), "total assets"); err != nil {
			t.Errorf("second ask failed: %v", err)
		}
	})
}

func TestSearchChunks(t *testing.T) {
	s := newTestService(t, &fakeGenerator{})
	ctx := context.Background()

	resp, err := s.SearchChunks(ctx, "assets", 10, ModeKeyword, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].Chunk.ID != "chunk-1" {
		t.Errorf("keyword results = %+v", resp.Results)
	}

	resp, err = s.SearchChunks(ctx, "nonexistentterm", 10, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 || resp.Results == nil {
		t.Errorf("expected empty non-nil results, got %+v", resp)
	}

	resp, err = s.SearchChunks(ctx, "total assets", 2, ModeHybrid, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 2 {
		t.Fatalf("hybrid total = %d, want 2", resp.Total)
	}
	if resp.Results[0].Chunk.ID != "chunk-1" || resp.Results[0].Rank != 1 {
		t.Errorf("hybrid top = %+v", resp.Results[0])
	}
}

func TestSearchChunks_KeywordOptions(t *testing.T) {
	s := newTestService(t, &fakeGenerator{})
	ctx := context.Background()

	resp, err := s.SearchChunks(ctx, "asets", 10, ModeKeyword, nil)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 0 {
		t.Errorf("misspelled term without fuzzy matched %+v", resp.Results)
	}

	resp, err = s.SearchChunks(ctx, "asets", 10, ModeKeyword, &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: 1})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total != 1 || resp.Results[0].Chunk.ID != "chunk-1" {
		t.Errorf("fuzzy results = %+v", resp.Results)
	}

	resp, err = s.SearchChunks(ctx, "stable growth", 10, ModeKeyword, &keyword.SearchOptions{PhraseBoost: 2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Total == 0 || resp.Results[0].Chunk.ID != "chunk-2" {
		t.Errorf("phrase results = %+v", resp.Results)
	}
}

func TestSearchChunks_Validation(t *testing.T) {
	s := newTestService(t, &fakeGenerator{})
	tests := []struct {
		name  string
		query string
		limit int
		mode  string
		opts  *keyword.SearchOptions
	}{
		{"empty query", " ", 10, ModeKeyword, nil},
		{"zero limit", "assets", 0, ModeKeyword, nil},
		{"unknown mode", "assets", 10, "vector", nil},
		{"negative phrase boost", "assets", 10, ModeKeyword, &keyword.SearchOptions{PhraseBoost: -1}},
		{"fuzziness too large", "assets", 10, ModeKeyword, &keyword.SearchOptions{FuzzyEnabled: true, Fuzziness: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SearchChunks(context.Background(), tt.query, tt.limit, tt.mode, tt.opts)
			if !errors.Is(err, errs.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	s := newTestService(t, &fakeGenerator{})
	st := s.Status()
	if st.Chunks != 3 {
		t.Errorf("Chunks = %d, want 3", st.Chunks)
	}
	if st.Dimensions != 1024 || st.Model != embedding.MockModel {
		t.Errorf("Dimensions/Model = %d/%s", st.Dimensions, st.Model)
	}
	if st.K != 2 {
		t.Errorf("K = %d, want 2", st.K)
	}
	if st.PageCount != 3 || st.Source != "/data/report.pdf" {
		t.Errorf("source = %s (%d pages)", st.Source, st.PageCount)
	}
	if st.DiskUsageBytes <= 0 {
		t.Errorf("DiskUsageBytes = %d, want > 0", st.DiskUsageBytes)
	}
}
