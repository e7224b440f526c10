package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/pkg/utils"
)

// maxIDLen bounds a single id read from disk so a corrupt length cannot trigger a huge allocation.
const maxIDLen = 1 << 16

// MemoryIndex is an in-memory vector index using brute-force cosine similarity.
type MemoryIndex struct {
	dimensions int
	ids        []string
	vectors    [][]float32
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, errs.Newf(errs.KindValidation, "vector.NewMemoryIndex", "dimensions must be positive, got %d", dimensions)
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]string, 0),
		vectors:    make([][]float32, 0),
	}, nil
}

// Add appends vectors with the given IDs. Nothing is added if any vector is invalid.
func (m *MemoryIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	const op = "vector.MemoryIndex.Add"
	if len(ids) != len(vectors) {
		return errs.Newf(errs.KindValidation, op, "ids and vectors length mismatch: %d ids, %d vectors", len(ids), len(vectors))
	}
	for i := range vectors {
		if len(vectors[i]) != m.dimensions {
			return errs.Newf(errs.KindValidation, op, "vector %d dimension mismatch: got %d, expected %d", i, len(vectors[i]), m.dimensions)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		vec := make([]float32, m.dimensions)
		copy(vec, vectors[i])
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, vec)
	}
	return nil
}

// Search returns the top-k entries by cosine similarity, highest first. Equal scores keep
// insertion order. If the index holds fewer than k entries, all of them are returned.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	const op = "vector.MemoryIndex.Search"
	if k <= 0 {
		return nil, errs.Newf(errs.KindValidation, op, "k must be positive, got %d", k)
	}
	if len(query) != m.dimensions {
		return nil, errs.Newf(errs.KindValidation, op, "query dimension mismatch: got %d, expected %d", len(query), m.dimensions)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	scores := make([]*VectorResult, len(m.ids))
	for i, vec := range m.vectors {
		scores[i] = &VectorResult{ID: m.ids[i], Score: utils.Cosine(query, vec), Position: i}
	}
	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Save persists the index to path. Format (little-endian): dimension u32, n u32,
// then per vector: idLen u32, id bytes, dimension*f32.
func (m *MemoryIndex) Save(path string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	w := bufio.NewWriter(f)
	if err := m.write(w); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	return f.Close()
}

func (m *MemoryIndex) write(w io.Writer) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(m.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.ids))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(id))); err != nil {
			return fmt.Errorf("write id len: %w", err)
		}
		if _, err := io.WriteString(w, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := w.Write(float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the in-memory contents with the index at path. A missing file is a
// not-found error; a short, oversized, or mismatched file is a corrupt-index error.
func (m *MemoryIndex) Load(path string) error {
	const op = "vector.MemoryIndex.Load"
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errs.New(errs.KindNotFound, op, err)
		}
		return errs.New(errs.KindCorruptIndex, op, fmt.Errorf("open index file: %w", err))
	}
	defer f.Close()
	ids, vectors, err := m.read(bufio.NewReader(f))
	if err != nil {
		return errs.New(errs.KindCorruptIndex, op, fmt.Errorf("%s: %w", path, err))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ids = ids
	m.vectors = vectors
	return nil
}

func (m *MemoryIndex) read(r io.Reader) ([]string, [][]float32, error) {
	var dim, n uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return nil, nil, fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != m.dimensions {
		return nil, nil, fmt.Errorf("dimension mismatch: file has %d, index expects %d", dim, m.dimensions)
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, nil, fmt.Errorf("read count: %w", err)
	}
	ids := make([]string, 0, min(n, 1<<20))
	vectors := make([][]float32, 0, min(n, 1<<20))
	seen := make(map[string]struct{}, min(n, 1<<20))
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var idLen uint32
		if err := binary.Read(r, binary.LittleEndian, &idLen); err != nil {
			return nil, nil, fmt.Errorf("read id len of entry %d: %w", i, err)
		}
		if idLen > maxIDLen {
			return nil, nil, fmt.Errorf("entry %d: id length %d exceeds limit", i, idLen)
		}
		idBytes := make([]byte, idLen)
		if _, err := io.ReadFull(r, idBytes); err != nil {
			return nil, nil, fmt.Errorf("read id of entry %d: %w", i, err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, nil, fmt.Errorf("read vector of entry %d: %w", i, err)
		}
		id := string(idBytes)
		if _, dup := seen[id]; dup {
			return nil, nil, fmt.Errorf("entry %d: duplicate id %s", i, id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}
	if _, err := r.Read(make([]byte, 1)); err != io.EOF {
		return nil, nil, fmt.Errorf("trailing data after %d entries", n)
	}
	return ids, vectors, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// IDs returns the entry ids in insertion order.
func (m *MemoryIndex) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.ids))
	copy(out, m.ids)
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector dimension.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
