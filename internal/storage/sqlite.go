package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/docqa/internal/errs"
	"github.com/hyperjump/docqa/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist. The rollback journal is used rather
// than WAL so a closed database is a single self-contained file that can be moved.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLiteStorage{db: db}, nil
}

// OpenSQLiteStorage opens an existing database read-only. A missing file is a not-found
// error; a file that is not a chunk store is a corrupt-index error.
func OpenSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	const op = "storage.OpenSQLiteStorage"
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, errs.New(errs.KindNotFound, op, err)
		}
		return nil, errs.New(errs.KindCorruptIndex, op, err)
	}
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, errs.New(errs.KindCorruptIndex, op, fmt.Errorf("open database: %w", err))
	}
	var n int64
	if err := db.QueryRow(`SELECT COUNT(*) FROM document_chunks`).Scan(&n); err != nil {
		_ = db.Close()
		return nil, errs.New(errs.KindCorruptIndex, op, fmt.Errorf("read chunk table: %w", err))
	}
	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		title TEXT,
		page_count INTEGER NOT NULL,
		size INTEGER NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS document_chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		page INTEGER NOT NULL,
		chunk_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_chunks_document_chunk ON document_chunks(document_id, chunk_index);
	`
	_, err := db.Exec(schema)
	return err
}

// CreateDocument inserts a document.
func (s *SQLiteStorage) CreateDocument(ctx context.Context, doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, path, title, page_count, size, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Path, doc.Title, doc.PageCount, doc.Size, string(metadataJSON), doc.CreatedAt,
	)
	return err
}

const documentColumns = `id, path, title, page_count, size, metadata, created_at`

func scanDocument(scan func(dest ...any) error) (*models.Document, error) {
	var doc models.Document
	var metadataJSON sql.NullString
	if err := scan(&doc.ID, &doc.Path, &doc.Title, &doc.PageCount, &doc.Size, &metadataJSON, &doc.CreatedAt); err != nil {
		return nil, err
	}
	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &doc, nil
}

// ListDocuments returns all documents ordered by creation time.
func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]*models.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		doc, err := scanDocument(rows.Scan)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

const chunkColumns = `id, document_id, page, chunk_index, content`

func scanChunk(scan func(dest ...any) error) (*models.Chunk, error) {
	var chunk models.Chunk
	if err := scan(&chunk.ID, &chunk.DocumentID, &chunk.Page, &chunk.ChunkIndex, &chunk.Content); err != nil {
		return nil, err
	}
	return &chunk, nil
}

// BatchCreateChunks inserts multiple chunks in a transaction.
func (s *SQLiteStorage) BatchCreateChunks(ctx context.Context, chunks []*models.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_chunks (`+chunkColumns+`) VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		if _, err := stmt.ExecContext(ctx, chunk.ID, chunk.DocumentID, chunk.Page, chunk.ChunkIndex, chunk.Content); err != nil {
			return fmt.Errorf("insert chunk %s: %w", chunk.ID, err)
		}
	}
	return tx.Commit()
}

// ListChunks returns every chunk ordered by document and chunk index.
func (s *SQLiteStorage) ListChunks(ctx context.Context) ([]*models.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM document_chunks ORDER BY document_id, chunk_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var chunks []*models.Chunk
	for rows.Next() {
		chunk, err := scanChunk(rows.Scan)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
