package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperjump/docqa/internal/errs"
)

// FormatVersion is bumped whenever the on-disk layout changes incompatibly.
const FormatVersion = 1

// File and directory names inside an index directory.
const (
	ManifestFile = "manifest.json"
	VectorFile   = "vectors.bin"
	ChunkDBFile  = "chunks.db"
	KeywordDir   = "keyword"
)

// Manifest describes a persisted index and how it was built.
type Manifest struct {
	FormatVersion int          `json:"format_version"`
	CreatedAt     string       `json:"created_at"`
	Model         string       `json:"model"`
	Dimensions    int          `json:"dimensions"`
	Count         int          `json:"count"`
	Chunking      ChunkingInfo `json:"chunking"`
	Source        SourceInfo   `json:"source"`
}

// ChunkingInfo records the window settings the chunks were produced with.
type ChunkingInfo struct {
	WindowSize int `json:"window_size"`
	Overlap    int `json:"overlap"`
}

// SourceInfo identifies the document the index was built from.
type SourceInfo struct {
	DocumentID string `json:"document_id"`
	Path       string `json:"path"`
	Size       int64  `json:"size"`
	PageCount  int    `json:"page_count"`
}

func writeManifest(dir string, m Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), b, 0o644); err != nil {
		return fmt.Errorf("cannot write manifest: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest of the index in dir. A missing directory or manifest is
// a not-found error; an unparseable or unsupported manifest is a corrupt-index error.
func ReadManifest(dir string) (Manifest, error) {
	const op = "index.ReadManifest"
	path := filepath.Join(dir, ManifestFile)
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Manifest{}, errs.New(errs.KindNotFound, op, fmt.Errorf("no index at %s", dir))
		}
		return Manifest{}, errs.New(errs.KindCorruptIndex, op, fmt.Errorf("cannot read manifest %s: %w", path, err))
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, errs.New(errs.KindCorruptIndex, op, fmt.Errorf("invalid manifest JSON %s: %w", path, err))
	}
	if m.FormatVersion != FormatVersion {
		return Manifest{}, errs.Newf(errs.KindCorruptIndex, op, "unsupported index format version %d (want %d)", m.FormatVersion, FormatVersion)
	}
	if m.Dimensions <= 0 {
		return Manifest{}, errs.Newf(errs.KindCorruptIndex, op, "invalid dimensions in manifest: %d", m.Dimensions)
	}
	if m.Count < 0 {
		return Manifest{}, errs.Newf(errs.KindCorruptIndex, op, "invalid count in manifest: %d", m.Count)
	}
	return m, nil
}
