package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// ErrNilStore is returned when a LexicalIndexer has no BM25 index.
var ErrNilStore = errors.New("lexical index is required")

// LexicalIndexer writes chunks into a [store.BM25Index].
//
// Each chunk becomes one passage keyed by the chunk id. The passage text is
// [store.Chunk.LexicalText], so a first chunk also matches on its
// document's title and synopsis. Writes are serialized with a mutex
// because neither BM25 backend accepts concurrent batches.
type LexicalIndexer struct {
	index  store.BM25Index
	mu     sync.Mutex
	closed bool
}

// Option configures a LexicalIndexer.
type Option func(*LexicalIndexer)

// WithStore sets the BM25 index. It is required.
func WithStore(s store.BM25Index) Option {
	return func(i *LexicalIndexer) {
		i.index = s
	}
}

// NewLexicalIndexer creates a lexical indexer. It returns ErrNilStore when
// WithStore is missing.
func NewLexicalIndexer(opts ...Option) (*LexicalIndexer, error) {
	i := &LexicalIndexer{}
	for _, opt := range opts {
		opt(i)
	}
	if i.index == nil {
		return nil, ErrNilStore
	}
	return i, nil
}

// Index converts chunks to passages and indexes them in one batch.
//
// This method is thread-safe.
func (i *LexicalIndexer) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	passages := make([]*store.Passage, len(chunks))
	for j, c := range chunks {
		passages[j] = &store.Passage{ID: c.ID, Content: c.LexicalText()}
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Index(ctx, passages); err != nil {
		return fmt.Errorf("lexical index: %w", err)
	}
	return nil
}

// Delete removes passages by id.
func (i *LexicalIndexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Delete(ctx, ids); err != nil {
		return fmt.Errorf("lexical delete: %w", err)
	}
	return nil
}

// Stats reports the number of indexed passages.
func (i *LexicalIndexer) Stats(_ context.Context) (IndexStats, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := i.index.Stats()
	if s == nil {
		return IndexStats{}, nil
	}
	return IndexStats{Entries: s.DocumentCount}, nil
}

// Flush persists the index.
func (i *LexicalIndexer) Flush() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.index.Flush(); err != nil {
		return fmt.Errorf("lexical flush: %w", err)
	}
	return nil
}

// Close closes the underlying index once.
func (i *LexicalIndexer) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return nil
	}
	i.closed = true
	if err := i.index.Close(); err != nil {
		return fmt.Errorf("lexical close: %w", err)
	}
	return nil
}

var _ Indexer = (*LexicalIndexer)(nil)
