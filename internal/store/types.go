// Package store holds the persistent pieces of amanrag: the corpus document
// store, the lexical (BM25) indexes and the vector indexes.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrClosed is returned by any operation on a closed store or index.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidQuery is returned when a backend rejects query syntax.
	ErrInvalidQuery = errors.New("invalid query syntax")

	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
)

// Document is a scraped article as persisted in the document store.
type Document struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Synopsis  string    `json:"synopsis,omitempty"`
	Content   string    `json:"content"`
	SourceURL string    `json:"source_url,omitempty"`
	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// DocumentRef identifies a document to a reader.
type DocumentRef struct {
	Title     string
	SourceURL string
}

// Chunk is a passage of a document. Its ID is shared by every index.
type Chunk struct {
	ID         string
	DocumentID string
	Ordinal    int
	Content    string

	// Heading is extra text indexed lexically with the chunk, such as the
	// document title and synopsis. It is not stored or returned.
	Heading string
}

// LexicalText is the text the full-text index sees for c.
func (c *Chunk) LexicalText() string {
	if c.Heading == "" {
		return c.Content
	}
	return c.Heading + "\n\n" + c.Content
}

// Passage is the unit the lexical index stores.
type Passage struct {
	ID      string
	Content string
}

// BM25Result is a single lexical hit. Higher scores are better.
type BM25Result struct {
	DocID        string
	Score        float64
	MatchedTerms []string
}

// IndexStats provides statistics about a lexical index.
type IndexStats struct {
	DocumentCount int
}

// BM25Index provides keyword search ranked by BM25.
//
// The bleve backend and the SQLite FTS5 backend both implement it. Entries
// are keyed by chunk id; the text they index is not returned by Search,
// which leaves passage text to the document store.
type BM25Index interface {
	// Index adds or replaces passages.
	Index(ctx context.Context, passages []*Passage) error

	// Search returns at most limit passages ranked by descending score.
	// Syntax errors match ErrInvalidQuery.
	Search(ctx context.Context, query string, limit int) ([]*BM25Result, error)

	// Delete removes passages by id. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Stats returns index statistics.
	Stats() *IndexStats

	// Flush makes indexed data durable.
	Flush() error

	Close() error
}

// QuerySyntax selects how lexical queries are interpreted.
type QuerySyntax string

const (
	// QueryPlain tokenizes the query and matches any of its terms.
	QueryPlain QuerySyntax = "plain"
	// QueryRaw passes the query to the backend's own syntax (FTS5 MATCH
	// expressions or bleve query strings).
	QueryRaw QuerySyntax = "raw"
)

// BM25Config configures a lexical index.
type BM25Config struct {
	// StopWords are dropped from plain queries.
	StopWords []string

	// MinTokenLength is the minimum query token length (default: 2).
	MinTokenLength int

	// Syntax selects plain or raw query handling (default: plain).
	Syntax QuerySyntax
}

// DefaultBM25Config returns the configuration used for English prose.
func DefaultBM25Config() BM25Config {
	return BM25Config{
		StopWords:      DefaultEnglishStopWords,
		MinTokenLength: 2,
		Syntax:         QueryPlain,
	}
}

// VectorResult is a single nearest-neighbour hit.
type VectorResult struct {
	ID       string
	Distance float32
	// Score is a similarity: higher is better.
	Score float32
}

// VectorStoreConfig configures a vector store.
type VectorStoreConfig struct {
	// Dimensions is the embedding width every vector must have.
	Dimensions int

	// Metric is "cos" (default) or "l2".
	Metric string

	// M is the HNSW max connections per layer (default: 16).
	M int

	// EfSearch is the HNSW query-time search width (default: 64).
	EfSearch int

	// Path is where a file-backed store persists itself. Empty keeps the
	// store in memory.
	Path string

	// ReadOnly loads Path but never writes it back.
	ReadOnly bool
}

// DefaultVectorStoreConfig returns cosine HNSW defaults.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides nearest-neighbour search over embeddings.
//
// Two implementations exist: HNSWStore keeps a coder/hnsw graph in memory
// and snapshots it to disk, and PgVectorStore keeps vectors in a
// PostgreSQL table with the pgvector extension. Both key vectors by chunk
// id and are safe for concurrent use.
//
// Vectors must all have Dimensions() components; a mismatch is reported
// as ErrDimensionMismatch and nothing is written.
type VectorStore interface {
	// Add inserts vectors with their ids. Existing ids are replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns up to k nearest neighbours, most similar first.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by id.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of live vectors.
	Count(ctx context.Context) (int, error)

	// Dimensions returns the configured embedding width.
	Dimensions() int

	// Flush makes added vectors durable. A read-only store and pgvector,
	// which commits on every write, return nil.
	Flush() error

	Close() error
}

// ErrDimensionMismatch indicates a vector of the wrong width.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'amanrag index --rebuild')", e.Expected, e.Got)
}
