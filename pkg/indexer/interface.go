package indexer

import (
	"context"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// Indexer writes chunks into one index.
//
// Implementations are safe for concurrent use. Every method that touches
// storage takes a context for cancellation.
//
// Indexers work on [store.Chunk], so the ingestion pipeline never sees
// whether passages land in bleve, SQLite FTS5, HNSW or pgvector.
type Indexer interface {
	// Index adds chunks to the index.
	//
	// Behavior:
	//   - Re-indexing a chunk id replaces its entry
	//   - An empty slice is a no-op
	//   - The lexical side indexes [store.Chunk.LexicalText]; the vector
	//     side embeds Content only
	Index(ctx context.Context, chunks []*store.Chunk) error

	// Delete removes chunks by id. Unknown ids are ignored and an empty
	// slice is a no-op.
	Delete(ctx context.Context, ids []string) error

	// Stats returns a snapshot of the index size. Values may change as
	// soon as the call returns.
	Stats(ctx context.Context) (IndexStats, error)

	// Flush makes written data durable. Indexes that persist on every
	// write return nil.
	Flush() error

	// Close releases the index.
	//
	// Behavior:
	//   - Safe to call more than once
	//   - Other methods may fail with [store.ErrClosed] afterwards
	Close() error
}

// IndexStats holds statistics about an index.
type IndexStats struct {
	// Entries is the number of indexed passages.
	Entries int `json:"entries"`
}
