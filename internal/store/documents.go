package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Meta keys recorded by the indexer.
const (
	MetaEmbedModel      = "embed_model"
	MetaEmbedDimensions = "embed_dimensions"
	MetaIndexedAt       = "indexed_at"
)

// DocumentStore persists documents and their chunks in SQLite. It is the
// source of passage text for retrieval results.
type DocumentStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// DocumentStoreOption configures a DocumentStore.
type DocumentStoreOption func(*documentStoreOptions)

type documentStoreOptions struct {
	driver string
}

// WithDriver selects the database/sql driver name. The default is
// "sqlite" (modernc.org/sqlite); "sqlite3" selects a cgo driver when the
// binary registers one.
func WithDriver(name string) DocumentStoreOption {
	return func(o *documentStoreOptions) { o.driver = name }
}

// OpenDocumentStore opens or creates the store at path. An empty path
// opens an in-memory store.
func OpenDocumentStore(path string, opts ...DocumentStoreOption) (*DocumentStore, error) {
	o := documentStoreOptions{driver: "sqlite"}
	for _, opt := range opts {
		opt(&o)
	}

	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		dsn = path
	}

	db, err := sql.Open(o.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open document store: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		synopsis TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		source_url TEXT NOT NULL DEFAULT '',
		scraped_at TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		ordinal INTEGER NOT NULL,
		content TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id, ordinal);
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize document schema: %w", err)
	}
	if err := migrateSynopsis(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DocumentStore{db: db}, nil
}

// migrateSynopsis adds the synopsis column to stores created before it
// existed.
func migrateSynopsis(db *sql.DB) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info('documents') WHERE name = 'synopsis'`).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect document schema: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(`ALTER TABLE documents ADD COLUMN synopsis TEXT NOT NULL DEFAULT ''`); err != nil {
		return fmt.Errorf("failed to add synopsis column: %w", err)
	}
	return nil
}

// SaveDocument inserts or replaces a document. Its chunks are kept.
func (s *DocumentStore) SaveDocument(ctx context.Context, doc *Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var scraped any
	if !doc.ScrapedAt.IsZero() {
		scraped = doc.ScrapedAt.UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, synopsis, content, source_url, scraped_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			synopsis = excluded.synopsis,
			content = excluded.content,
			source_url = excluded.source_url,
			scraped_at = excluded.scraped_at`,
		doc.ID, doc.Title, doc.Synopsis, doc.Content, doc.SourceURL, scraped)
	if err != nil {
		return fmt.Errorf("failed to save document %s: %w", doc.ID, err)
	}
	return nil
}

// ReplaceChunks swaps a document's chunks for a new set and returns the
// ids of the chunks that were removed.
func (s *DocumentStore) ReplaceChunks(ctx context.Context, documentID string, chunks []*Chunk) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	old, err := queryStrings(ctx, tx, `SELECT id FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID); err != nil {
		return nil, fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks (id, document_id, ordinal, content) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	kept := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, documentID, c.Ordinal, c.Content); err != nil {
			return nil, fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
		kept[c.ID] = struct{}{}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit chunks: %w", err)
	}

	removed := old[:0]
	for _, id := range old {
		if _, ok := kept[id]; !ok {
			removed = append(removed, id)
		}
	}
	return removed, nil
}

// GetDocument returns a document by id, or ErrNotFound.
func (s *DocumentStore) GetDocument(ctx context.Context, id string) (*Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var doc Document
	var scraped sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, synopsis, content, source_url, scraped_at FROM documents WHERE id = ?`, id).
		Scan(&doc.ID, &doc.Title, &doc.Synopsis, &doc.Content, &doc.SourceURL, &scraped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document %s: %w", id, err)
	}
	if scraped.Valid {
		doc.ScrapedAt = scraped.Time
	}
	return &doc, nil
}

// Chunks returns a document's chunks in order.
func (s *DocumentStore) Chunks(ctx context.Context, documentID string) ([]*Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, ordinal, content FROM chunks
		WHERE document_id = ? ORDER BY ordinal`, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	var out []*Chunk
	for rows.Next() {
		var c Chunk
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Ordinal, &c.Content); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// Passages returns text for ids. Chunk ids resolve to chunk content;
// anything else is looked up as a document id. Unknown ids are absent
// from the result.
func (s *DocumentStore) Passages(ctx context.Context, ids []string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	for _, q := range []string{
		`SELECT id, content FROM chunks WHERE id IN (%s)`,
		`SELECT id, content FROM documents WHERE id IN (%s)`,
	} {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(q, placeholders), args...)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve passages: %w", err)
		}
		for rows.Next() {
			var id, content string
			if err := rows.Scan(&id, &content); err != nil {
				rows.Close()
				return nil, fmt.Errorf("failed to scan passage: %w", err)
			}
			if _, seen := out[id]; !seen {
				out[id] = content
			}
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DocumentRefs returns the title and source URL of each known document id.
// Unknown ids are absent from the result.
func (s *DocumentStore) DocumentRefs(ctx context.Context, ids []string) (map[string]DocumentRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make(map[string]DocumentRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, title, source_url FROM documents WHERE id IN (%s)`,
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var ref DocumentRef
		if err := rows.Scan(&id, &ref.Title, &ref.SourceURL); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		out[id] = ref
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its chunks and returns the
// removed chunk ids.
func (s *DocumentStore) DeleteDocument(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	chunkIDs, err := queryStrings(ctx, s.db, `SELECT id FROM chunks WHERE document_id = ?`, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	return chunkIDs, nil
}

// DocumentIDs returns every document id in ascending order.
func (s *DocumentStore) DocumentIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return queryStrings(ctx, s.db, `SELECT id FROM documents ORDER BY id`)
}

// Counts returns the number of documents and chunks.
func (s *DocumentStore) Counts(ctx context.Context) (documents, chunks int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, 0, ErrClosed
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM documents), (SELECT COUNT(*) FROM chunks)`).
		Scan(&documents, &chunks)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return documents, chunks, nil
}

// SetMeta records a key/value pair.
func (s *DocumentStore) SetMeta(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// GetMeta returns a recorded value, or "" if the key is unset.
func (s *DocumentStore) GetMeta(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", ErrClosed
	}
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// EmbeddingInfo returns the model and width the vectors were built with.
// A store that was never indexed returns "" and 0.
func (s *DocumentStore) EmbeddingInfo(ctx context.Context) (model string, dims int, err error) {
	model, err = s.GetMeta(ctx, MetaEmbedModel)
	if err != nil {
		return "", 0, err
	}
	raw, err := s.GetMeta(ctx, MetaEmbedDimensions)
	if err != nil || raw == "" {
		return model, 0, err
	}
	dims, err = strconv.Atoi(raw)
	if err != nil {
		return "", 0, fmt.Errorf("corrupt %s value %q: %w", MetaEmbedDimensions, raw, err)
	}
	return model, dims, nil
}

// SetEmbeddingInfo records the model and width used for the vectors.
func (s *DocumentStore) SetEmbeddingInfo(ctx context.Context, model string, dims int) error {
	if err := s.SetMeta(ctx, MetaEmbedModel, model); err != nil {
		return err
	}
	if err := s.SetMeta(ctx, MetaEmbedDimensions, strconv.Itoa(dims)); err != nil {
		return err
	}
	return s.SetMeta(ctx, MetaIndexedAt, time.Now().UTC().Format(time.RFC3339))
}

// Close closes the database. It is idempotent.
func (s *DocumentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryStrings(ctx context.Context, q queryer, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
