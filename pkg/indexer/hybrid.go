package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aman-CERP/amanrag/internal/store"
)

// ErrNoIndexers is returned when a HybridIndexer has neither component.
var ErrNoIndexers = errors.New("at least one indexer is required")

// HybridIndexer fans writes out to a lexical and a vector indexer.
//
// Either component may be nil, which gives a lexical-only corpus (the
// semantic backend is "none") or, rarely, a vector-only one. Chunk ids are
// shared, so a passage found by either index resolves to the same text.
//
// HybridIndexer is safe for concurrent use.
type HybridIndexer struct {
	lexical Indexer
	vector  Indexer

	mu     sync.RWMutex
	closed bool
}

// HybridOption configures a HybridIndexer.
type HybridOption func(*HybridIndexer)

// WithLexical sets the lexical component.
func WithLexical(idx Indexer) HybridOption {
	return func(h *HybridIndexer) {
		h.lexical = idx
	}
}

// WithVector sets the vector component.
func WithVector(idx Indexer) HybridOption {
	return func(h *HybridIndexer) {
		h.vector = idx
	}
}

// NewHybridIndexer creates a hybrid indexer from its components.
//
//	// Both signals
//	h, err := NewHybridIndexer(WithLexical(lex), WithVector(vec))
//
//	// Lexical only, when no embedder is configured
//	h, err := NewHybridIndexer(WithLexical(lex))
//
// It returns ErrNoIndexers when both components are nil.
func NewHybridIndexer(opts ...HybridOption) (*HybridIndexer, error) {
	h := &HybridIndexer{}
	for _, opt := range opts {
		opt(h)
	}
	if h.lexical == nil && h.vector == nil {
		return nil, ErrNoIndexers
	}
	return h, nil
}

// Index writes lexically first, then embeds.
//
// It stops at the first error, and a context cancelled between the two
// writes skips the embedding. A batch that fails halfway is repaired by
// re-indexing it, since both components replace entries by id.
//
// Concurrent calls are allowed; each component serializes its own writes.
func (h *HybridIndexer) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return store.ErrClosed
	}

	if h.lexical != nil {
		if err := h.lexical.Index(ctx, chunks); err != nil {
			return fmt.Errorf("hybrid lexical index: %w", err)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.vector != nil {
		if err := h.vector.Index(ctx, chunks); err != nil {
			return fmt.Errorf("hybrid vector index: %w", err)
		}
	}
	return nil
}

// Delete removes ids from both components. Both are attempted and their
// errors are joined.
func (h *HybridIndexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var errs []error
	if h.lexical != nil {
		if err := h.lexical.Delete(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("hybrid lexical delete: %w", err))
		}
	}
	if h.vector != nil {
		if err := h.vector.Delete(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("hybrid vector delete: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Stats reports the larger of the two entry counts. They are equal when
// every ingestion completed.
func (h *HybridIndexer) Stats(ctx context.Context) (IndexStats, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var stats IndexStats
	for _, idx := range []Indexer{h.lexical, h.vector} {
		if idx == nil {
			continue
		}
		s, err := idx.Stats(ctx)
		if err != nil {
			return IndexStats{}, err
		}
		stats.Entries = max(stats.Entries, s.Entries)
	}
	return stats, nil
}

// Flush persists both components and joins their errors.
func (h *HybridIndexer) Flush() error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var errs []error
	if h.lexical != nil {
		errs = append(errs, h.lexical.Flush())
	}
	if h.vector != nil {
		errs = append(errs, h.vector.Flush())
	}
	return errors.Join(errs...)
}

// Close closes both components once and joins their errors. Later calls
// return nil.
//
// This method is thread-safe. It waits for in-flight Index and Delete
// calls to finish.
func (h *HybridIndexer) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true

	var errs []error
	if h.lexical != nil {
		if err := h.lexical.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hybrid lexical close: %w", err))
		}
	}
	if h.vector != nil {
		if err := h.vector.Close(); err != nil {
			errs = append(errs, fmt.Errorf("hybrid vector close: %w", err))
		}
	}
	return errors.Join(errs...)
}

var _ Indexer = (*HybridIndexer)(nil)
