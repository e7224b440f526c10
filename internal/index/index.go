// Package index ties the vector index, chunk store, and keyword index together into one
// persisted unit that is built once and loaded read-only.
package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/keyword"
	"github.com/hyperjump/docqa/internal/models"
	"github.com/hyperjump/docqa/internal/storage"
	"github.com/hyperjump/docqa/internal/vector"
)

// BuildInfo carries the settings recorded in the manifest of a built index.
type BuildInfo struct {
	Model      string
	Dimensions int
	WindowSize int
	Overlap    int
}

// Index is a searchable set of chunks and their vectors. It is read-only once built or loaded
// and safe for concurrent searches.
type Index struct {
	manifest Manifest
	doc      *models.Document
	chunks   map[string]*models.Chunk
	ordered  []*models.Chunk
	vectors  vector.VectorIndex
	keyword  keyword.KeywordIndex // nil until persisted and loaded
	store    storage.Storage      // nil until persisted and loaded
	dir      string

	closeOnce sync.Once
}

// Build assembles an in-memory index from chunks and their vectors, pairwise by position.
// Mismatched lengths or vector dimensions are validation errors.
func Build(doc *models.Document, chunks []*models.Chunk, vectors [][]float32, info BuildInfo) (*Index, error) {
	const op = "index.Build"
	if len(chunks) != len(vectors) {
		return nil, errs.Newf(errs.KindValidation, op, "%d chunks but %d vectors", len(chunks), len(vectors))
	}
	if info.Dimensions <= 0 && len(vectors) > 0 {
		info.Dimensions = len(vectors[0])
	}
	vi, err := vector.NewMemoryIndex(info.Dimensions)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chunks))
	byID := make(map[string]*models.Chunk, len(chunks))
	for i, ch := range chunks {
		if _, dup := byID[ch.ID]; dup {
			return nil, errs.Newf(errs.KindValidation, op, "duplicate chunk id %s", ch.ID)
		}
		ids[i] = ch.ID
		byID[ch.ID] = ch
	}
	if err := vi.Add(context.Background(), ids, vectors); err != nil {
		return nil, err
	}

	m := Manifest{
		FormatVersion: FormatVersion,
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
		Model:         info.Model,
		Dimensions:    info.Dimensions,
		Count:         len(chunks),
		Chunking:      ChunkingInfo{WindowSize: info.WindowSize, Overlap: info.Overlap},
	}
	if doc != nil {
		m.Source = SourceInfo{DocumentID: doc.ID, Path: doc.Path, Size: doc.Size, PageCount: doc.PageCount}
	}
	return &Index{
		manifest: m,
		doc:      doc,
		chunks:   byID,
		ordered:  chunks,
		vectors:  vi,
	}, nil
}

// Persist writes the index into dir. Everything is written into a temporary sibling
// directory first and renamed onto dir at the end, so dir holds either the complete
// previous index or the complete new one. An existing index at dir is replaced.
func (idx *Index) Persist(ctx context.Context, dir string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("cannot create index parent dir %s: %w", parent, err)
	}
	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("cannot create temp index dir: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := idx.vectors.Save(filepath.Join(tmp, VectorFile)); err != nil {
		return fmt.Errorf("write vectors: %w", err)
	}
	if err := idx.writeChunkStore(ctx, filepath.Join(tmp, ChunkDBFile)); err != nil {
		return fmt.Errorf("write chunk store: %w", err)
	}
	if err := idx.writeKeywordIndex(ctx, filepath.Join(tmp, KeywordDir)); err != nil {
		return fmt.Errorf("write keyword index: %w", err)
	}
	// The manifest goes last: its presence marks a complete index.
	if err := writeManifest(tmp, idx.manifest); err != nil {
		return err
	}

	var old string
	if _, err := os.Stat(dir); err == nil {
		old = tmp + ".old"
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move previous index aside: %w", err)
		}
	}
	if err := os.Rename(tmp, dir); err != nil {
		if old != "" {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("install index: %w", err)
	}
	committed = true
	if old != "" {
		_ = os.RemoveAll(old)
	}
	return nil
}

func (idx *Index) writeChunkStore(ctx context.Context, path string) error {
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return err
	}
	if idx.doc != nil {
		if err := store.CreateDocument(ctx, idx.doc); err != nil {
			_ = store.Close()
			return fmt.Errorf("store document: %w", err)
		}
	}
	if err := store.BatchCreateChunks(ctx, idx.ordered); err != nil {
		_ = store.Close()
		return fmt.Errorf("store chunks: %w", err)
	}
	return store.Close()
}

func (idx *Index) writeKeywordIndex(ctx context.Context, path string) error {
	kw, err := keyword.NewBleveIndex(path)
	if err != nil {
		return err
	}
	if err := kw.IndexChunks(ctx, idx.ordered); err != nil {
		_ = kw.Close()
		return err
	}
	return kw.Close()
}

// Load opens the index persisted in dir. A missing directory or manifest is a not-found
// error. Unreadable, malformed, or mutually inconsistent files are corrupt-index errors.
func Load(ctx context.Context, dir string) (*Index, error) {
	const op = "index.Load"
	m, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}
	corrupt := func(err error) error {
		return errs.New(errs.KindCorruptIndex, op, fmt.Errorf("%s: %w", dir, err))
	}

	vi, err := vector.NewMemoryIndex(m.Dimensions)
	if err != nil {
		return nil, corrupt(err)
	}
	if err := vi.Load(filepath.Join(dir, VectorFile)); err != nil {
		return nil, corrupt(err)
	}
	if vi.Size() != m.Count {
		return nil, corrupt(fmt.Errorf("manifest count %d, vector file has %d entries", m.Count, vi.Size()))
	}

	store, err := storage.OpenSQLiteStorage(filepath.Join(dir, ChunkDBFile))
	if err != nil {
		return nil, corrupt(err)
	}
	idx := &Index{manifest: m, vectors: vi, store: store, dir: dir}
	if err := idx.loadChunks(ctx); err != nil {
		_ = store.Close()
		return nil, corrupt(err)
	}

	kw, err := keyword.OpenBleveIndex(filepath.Join(dir, KeywordDir))
	if err != nil {
		_ = store.Close()
		return nil, corrupt(err)
	}
	if n, err := kw.DocCount(); err != nil || int(n) != m.Count {
		_ = kw.Close()
		_ = store.Close()
		if err == nil {
			err = fmt.Errorf("manifest count %d, keyword index has %d chunks", m.Count, n)
		}
		return nil, corrupt(err)
	}
	idx.keyword = kw
	return idx, nil
}

func (idx *Index) loadChunks(ctx context.Context) error {
	chunks, err := idx.store.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("read chunks: %w", err)
	}
	byID := make(map[string]*models.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}
	ids := idx.vectors.IDs()
	if len(byID) != len(ids) {
		return fmt.Errorf("vector file has %d entries, chunk store has %d", len(ids), len(byID))
	}
	ordered := make([]*models.Chunk, len(ids))
	for i, id := range ids {
		ch, ok := byID[id]
		if !ok {
			return fmt.Errorf("vector id %s has no chunk", id)
		}
		ordered[i] = ch
	}
	docs, err := idx.store.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("read documents: %w", err)
	}
	if len(docs) > 0 {
		idx.doc = docs[0]
	}
	idx.chunks = byID
	idx.ordered = ordered
	return nil
}

// Search returns the k chunks most similar to query, best first. Equal scores keep
// build order; fewer than k chunks yields all of them. k <= 0 is a validation error.
func (idx *Index) Search(ctx context.Context, query []float32, k int) ([]*models.SearchResult, error) {
	hits, err := idx.vectors.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SearchResult, 0, len(hits))
	for i, h := range hits {
		ch, ok := idx.chunks[h.ID]
		if !ok {
			return nil, errs.Newf(errs.KindCorruptIndex, "index.Search", "vector id %s has no chunk", h.ID)
		}
		out = append(out, &models.SearchResult{Chunk: ch, Score: h.Score, Rank: i + 1})
	}
	return out, nil
}

// KeywordSearch runs a full-text query over chunk texts. Only available on a loaded index.
// A hit whose chunk is unknown is a corrupt-index error.
func (idx *Index) KeywordSearch(ctx context.Context, query string, limit int, opts *keyword.SearchOptions) ([]*models.SearchResult, error) {
	if idx.keyword == nil {
		return nil, errs.Newf(errs.KindNotFound, "index.KeywordSearch", "keyword index is only available on a persisted index")
	}
	hits, err := idx.keyword.Search(ctx, query, limit, opts)
	if err != nil {
		return nil, err
	}
	out := make([]*models.SearchResult, 0, len(hits))
	for _, h := range hits {
		ch, ok := idx.chunks[h.ID]
		if !ok {
			return nil, errs.Newf(errs.KindCorruptIndex, "index.KeywordSearch", "keyword hit %s has no chunk", h.ID)
		}
		out = append(out, &models.SearchResult{Chunk: ch, Score: h.Score, Rank: len(out) + 1})
	}
	return out, nil
}

// Chunks returns the chunks in build order.
func (idx *Index) Chunks() []*models.Chunk {
	out := make([]*models.Chunk, len(idx.ordered))
	copy(out, idx.ordered)
	return out
}

// Size returns the number of chunks.
func (idx *Index) Size() int { return idx.vectors.Size() }

// Dimensions returns the vector dimension.
func (idx *Index) Dimensions() int { return idx.manifest.Dimensions }

// Manifest returns the index manifest.
func (idx *Index) Manifest() Manifest { return idx.manifest }

// Document returns the source document record, if known.
func (idx *Index) Document() *models.Document { return idx.doc }

// Dir returns the directory the index was loaded from, or "" for an unpersisted index.
func (idx *Index) Dir() string { return idx.dir }

// Close releases the chunk store and keyword index.
func (idx *Index) Close() error {
	var firstErr error
	idx.closeOnce.Do(func() {
		if idx.keyword != nil {
			firstErr = idx.keyword.Close()
		}
		if idx.store != nil {
			if err := idx.store.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		_ = idx.vectors.Close()
	})
	return firstErr
}
