package indexer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

func newLexical(t *testing.T) *LexicalIndexer {
	t.Helper()
	idx, err := store.NewBM25Index("", store.BM25BackendSQLite, store.DefaultBM25Config())
	require.NoError(t, err)
	li, err := NewLexicalIndexer(WithStore(idx))
	require.NoError(t, err)
	t.Cleanup(func() { _ = li.Close() })
	return li
}

func newVector(t *testing.T, dims int) (*VectorIndexer, *store.HNSWStore) {
	t.Helper()
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(dims))
	require.NoError(t, err)
	vi, err := NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedderWithDimensions(dims)), WithVectorStore(vs))
	require.NoError(t, err)
	t.Cleanup(func() { _ = vi.Close() })
	return vi, vs
}

func TestNewLexicalIndexer_MissingStore(t *testing.T) {
	_, err := NewLexicalIndexer()
	assert.ErrorIs(t, err, ErrNilStore)
}

func TestLexicalIndexer_IndexSearchDelete(t *testing.T) {
	// Given: two indexed passages
	ctx := context.Background()
	idx, err := store.NewBM25Index("", store.BM25BackendSQLite, store.DefaultBM25Config())
	require.NoError(t, err)
	li, err := NewLexicalIndexer(WithStore(idx))
	require.NoError(t, err)
	defer li.Close()

	require.NoError(t, li.Index(ctx, []*store.Chunk{
		{ID: "doc#0", Content: "inflation pushed central banks to raise rates"},
		{ID: "doc#1", Content: "the football season opened on saturday"},
	}))

	// When: searching and deleting
	hits, err := idx.Search(ctx, "inflation", 10)
	require.NoError(t, err)
	require.NoError(t, li.Delete(ctx, []string{"doc#0"}))
	after, err := idx.Search(ctx, "inflation", 10)
	require.NoError(t, err)

	// Then: the passage was searchable until deleted
	require.Len(t, hits, 1)
	assert.Equal(t, "doc#0", hits[0].DocID)
	assert.Empty(t, after)

	stats, err := li.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)
}

func TestLexicalIndexer_IndexesHeading(t *testing.T) {
	ctx := context.Background()
	idx, err := store.NewBM25Index("", store.BM25BackendSQLite, store.DefaultBM25Config())
	require.NoError(t, err)
	li, err := NewLexicalIndexer(WithStore(idx))
	require.NoError(t, err)
	defer li.Close()

	require.NoError(t, li.Index(ctx, []*store.Chunk{
		{ID: "doc#0", Heading: "Harbour closures", Content: "trade slowed this week"},
	}))

	hits, err := idx.Search(ctx, "harbour", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "doc#0", hits[0].DocID)
}

func TestNewVectorIndexer_RequiredDependencies(t *testing.T) {
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(8))
	require.NoError(t, err)

	_, err = NewVectorIndexer(WithVectorStore(vs))
	assert.ErrorIs(t, err, ErrNilEmbedder)

	_, err = NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedderWithDimensions(8)))
	assert.ErrorIs(t, err, ErrNilVectorStore)
}

func TestNewVectorIndexer_WidthMismatch(t *testing.T) {
	// Given: a 16-wide store and an 8-wide embedder
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(16))
	require.NoError(t, err)

	// When: pairing them
	_, err = NewVectorIndexer(WithEmbedder(embed.NewStaticEmbedderWithDimensions(8)), WithVectorStore(vs))

	// Then: DimensionMismatch
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestVectorIndexer_IndexAndSearch(t *testing.T) {
	// Given: embedded passages
	ctx := context.Background()
	vi, vs := newVector(t, 32)
	require.NoError(t, vi.Index(ctx, []*store.Chunk{
		{ID: "a#0", Content: "interest rates and inflation"},
		{ID: "b#0", Content: "goalkeeper saves penalty"},
	}))

	// When: searching with the embedding of the first passage
	q, err := embed.NewStaticEmbedderWithDimensions(32).Embed(ctx, "interest rates and inflation")
	require.NoError(t, err)
	hits, err := vs.Search(ctx, q, 2)
	require.NoError(t, err)

	// Then: it ranks first
	require.NotEmpty(t, hits)
	assert.Equal(t, "a#0", hits[0].ID)

	stats, err := vi.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}

func TestVectorIndexer_DeleteAndClose(t *testing.T) {
	ctx := context.Background()
	vi, _ := newVector(t, 8)
	require.NoError(t, vi.Index(ctx, chunks("a#0", "a#1")))

	require.NoError(t, vi.Delete(ctx, []string{"a#1", "missing"}))
	stats, err := vi.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Entries)

	require.NoError(t, vi.Close())
	require.NoError(t, vi.Close())
}

func TestHybridIndexer_RealComponents(t *testing.T) {
	// Given: a lexical and a vector indexer behind one hybrid indexer
	ctx := context.Background()
	vi, _ := newVector(t, 16)
	h, err := NewHybridIndexer(WithLexical(newLexical(t)), WithVector(vi))
	require.NoError(t, err)

	// When: indexing then deleting a passage
	require.NoError(t, h.Index(ctx, chunks("a#0", "a#1", "b#0")))
	require.NoError(t, h.Delete(ctx, []string{"b#0"}))
	require.NoError(t, h.Flush())

	// Then: both indexes hold two entries
	stats, err := h.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Entries)
}
