package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

var (
	// ErrNilEmbedder is returned when a VectorIndexer has no embedder.
	ErrNilEmbedder = errors.New("embedder is required")

	// ErrNilVectorStore is returned when a VectorIndexer has no vector store.
	ErrNilVectorStore = errors.New("vector store is required")
)

// VectorIndexer embeds chunks and adds the vectors to a [store.VectorStore].
//
// Embedding runs outside the lock so concurrent Index calls overlap their
// provider requests; only the store write is serialized.
//
// Example:
//
//	emb, _ := embed.NewEmbedder(ctx, embed.Options{Provider: embed.ProviderStatic})
//	vs, _ := store.NewHNSWStore(store.DefaultVectorStoreConfig(emb.Dimensions()))
//	vi, err := indexer.NewVectorIndexer(indexer.WithEmbedder(emb), indexer.WithVectorStore(vs))
//
// VectorIndexer is safe for concurrent use.
type VectorIndexer struct {
	embedder embed.Embedder
	store    store.VectorStore

	mu     sync.Mutex
	closed bool
}

// VectorOption configures a VectorIndexer.
type VectorOption func(*VectorIndexer)

// WithEmbedder sets the embedder. It is required.
func WithEmbedder(e embed.Embedder) VectorOption {
	return func(v *VectorIndexer) {
		v.embedder = e
	}
}

// WithVectorStore sets the vector store. It is required.
func WithVectorStore(s store.VectorStore) VectorOption {
	return func(v *VectorIndexer) {
		v.store = s
	}
}

// NewVectorIndexer creates a vector indexer.
//
// It returns ErrNilEmbedder or ErrNilVectorStore when a dependency is
// missing, and a DimensionMismatch error when the embedder and the store
// disagree on the vector width.
func NewVectorIndexer(opts ...VectorOption) (*VectorIndexer, error) {
	v := &VectorIndexer{}
	for _, opt := range opts {
		opt(v)
	}
	if v.embedder == nil {
		return nil, ErrNilEmbedder
	}
	if v.store == nil {
		return nil, ErrNilVectorStore
	}
	if got, want := v.embedder.Dimensions(), v.store.Dimensions(); got != want {
		return nil, amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
			"embedder %s produces %d dimensions but the vector index holds %d",
			v.embedder.ModelName(), got, want)
	}
	return v, nil
}

// Index embeds the chunk contents in one batch and stores the vectors.
//
// Behavior:
//   - An empty slice is a no-op
//   - Embedding failures are returned wrapped; nothing is stored
//   - A vector of the wrong width becomes a DimensionMismatch error
//
// This method is thread-safe.
func (v *VectorIndexer) Index(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
		ids[i] = c.ID
	}

	vectors, err := v.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("vector embed: %w", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Add(ctx, ids, vectors); err != nil {
		var dm store.ErrDimensionMismatch
		if errors.As(err, &dm) {
			return amerrors.New(amerrors.ErrCodeDimensionMismatch, dm.Error(), err)
		}
		return fmt.Errorf("vector add: %w", err)
	}
	return nil
}

// Delete removes vectors by id.
func (v *VectorIndexer) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Delete(ctx, ids); err != nil {
		return fmt.Errorf("vector delete: %w", err)
	}
	return nil
}

// Stats reports the number of live vectors.
func (v *VectorIndexer) Stats(ctx context.Context) (IndexStats, error) {
	n, err := v.store.Count(ctx)
	if err != nil {
		return IndexStats{}, fmt.Errorf("vector count: %w", err)
	}
	return IndexStats{Entries: n}, nil
}

// Flush persists the vector store.
func (v *VectorIndexer) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.store.Flush(); err != nil {
		return fmt.Errorf("vector flush: %w", err)
	}
	return nil
}

// Close closes the vector store once. The embedder belongs to the caller.
func (v *VectorIndexer) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return nil
	}
	v.closed = true
	if err := v.store.Close(); err != nil {
		return fmt.Errorf("vector close: %w", err)
	}
	return nil
}

var _ Indexer = (*VectorIndexer)(nil)
