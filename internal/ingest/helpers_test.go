package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/pkg/indexer"
)

const testDims = 32

// testEnv is an in-memory corpus with both indexes.
type testEnv struct {
	docs     *store.DocumentStore
	lexical  store.BM25Index
	vectors  *store.HNSWStore
	index    *indexer.HybridIndexer
	embedder embed.Embedder
	chunker  *chunk.TextChunker
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	docs, err := store.OpenDocumentStore("")
	require.NoError(t, err)
	lex, err := store.NewBM25Index("", store.BM25BackendSQLite, store.DefaultBM25Config())
	require.NoError(t, err)
	vs, err := store.NewHNSWStore(store.DefaultVectorStoreConfig(testDims))
	require.NoError(t, err)
	emb := embed.NewStaticEmbedderWithDimensions(testDims)

	li, err := indexer.NewLexicalIndexer(indexer.WithStore(lex))
	require.NoError(t, err)
	vi, err := indexer.NewVectorIndexer(indexer.WithEmbedder(emb), indexer.WithVectorStore(vs))
	require.NoError(t, err)
	h, err := indexer.NewHybridIndexer(indexer.WithLexical(li), indexer.WithVector(vi))
	require.NoError(t, err)

	ch, err := chunk.NewTextChunker(chunk.Options{ChunkWords: 16, OverlapWords: 4})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = h.Close()
		_ = docs.Close()
	})
	return &testEnv{docs: docs, lexical: lex, vectors: vs, index: h, embedder: emb, chunker: ch}
}

func (e *testEnv) pipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithEmbedder(e.embedder), WithBatchSize(2), WithPoolSize(3)}, opts...)
	p, err := NewPipeline(e.docs, e.index, e.chunker, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p
}

func (e *testEnv) counts(t *testing.T) (docs, chunks, vectors int) {
	t.Helper()
	docs, chunks, err := e.docs.Counts(context.Background())
	require.NoError(t, err)
	vectors, err = e.vectors.Count(context.Background())
	require.NoError(t, err)
	return docs, chunks, vectors
}

// words returns n distinct words starting with prefix.
func words(prefix string, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("%s%d", prefix, i)
	}
	return strings.Join(parts, " ")
}
