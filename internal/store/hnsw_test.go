package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHNSW(t *testing.T, path string) *HNSWStore {
	t.Helper()
	cfg := DefaultVectorStoreConfig(3)
	cfg.Path = path
	s, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	return s
}

func seedVectors(t *testing.T, s VectorStore) {
	t.Helper()
	err := s.Add(context.Background(),
		[]string{"a", "b", "c"},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0.9, 0.1, 0}})
	require.NoError(t, err)
}

func TestHNSWStore_SearchOrdersBySimilarity(t *testing.T) {
	// Given: three vectors
	s := newTestHNSW(t, "")
	defer func() { _ = s.Close() }()
	seedVectors(t, s)

	// When: searching near the x axis
	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)

	// Then: results are ordered by cosine similarity
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "c", results[1].ID)
	assert.Equal(t, "b", results[2].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-5)
	assert.InDelta(t, 0.0, results[2].Score, 1e-5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestHNSWStore_DimensionMismatch(t *testing.T) {
	s := newTestHNSW(t, "")
	defer func() { _ = s.Close() }()

	err := s.Add(context.Background(), []string{"x"}, [][]float32{{1, 2}})
	var dm ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 2, dm.Got)

	_, err = s.Search(context.Background(), []float32{1, 2, 3, 4}, 1)
	assert.ErrorAs(t, err, &dm)
}

func TestHNSWStore_ReplaceAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestHNSW(t, "")
	defer func() { _ = s.Close() }()
	seedVectors(t, s)

	// When: "b" is moved onto the x axis and "a" is deleted
	require.NoError(t, s.Add(ctx, []string{"b"}, [][]float32{{1, 0, 0}}))
	require.NoError(t, s.Delete(ctx, []string{"a", "missing"}))

	// Then: "b" is now the nearest and "a" never appears
	results, err := s.Search(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "b", results[0].ID)
	assert.Equal(t, "c", results[1].ID)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Orphans())
	assert.False(t, s.Contains("a"))
}

func TestHNSWStore_EmptyAndZeroK(t *testing.T) {
	s := newTestHNSW(t, "")
	defer func() { _ = s.Close() }()

	results, err := s.Search(context.Background(), []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)

	seedVectors(t, s)
	results, err = s.Search(context.Background(), []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStore_PersistsThroughPath(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	// Given: a file-backed store that is closed after seeding
	s := newTestHNSW(t, path)
	seedVectors(t, s)
	require.NoError(t, s.Close())

	dims, err := ReadHNSWDimensions(path)
	require.NoError(t, err)
	assert.Equal(t, 3, dims)

	// When: it is reopened
	reopened := newTestHNSW(t, path)
	defer func() { _ = reopened.Close() }()

	// Then: the vectors are searchable
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	results, err := reopened.Search(ctx, []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestHNSWStore_ReadOnlyNeverWrites(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "vectors.hnsw")

	// Given: a saved store with three vectors
	s := newTestHNSW(t, path)
	seedVectors(t, s)
	require.NoError(t, s.Close())

	// When: a read-only copy adds a vector and closes
	cfg := DefaultVectorStoreConfig(3)
	cfg.Path = path
	cfg.ReadOnly = true
	ro, err := NewHNSWStore(cfg)
	require.NoError(t, err)
	require.NoError(t, ro.Add(ctx, []string{"d"}, [][]float32{{0, 0, 1}}))
	require.NoError(t, ro.Flush())
	require.NoError(t, ro.Close())

	// Then: the file still holds the original three
	reopened := newTestHNSW(t, path)
	defer func() { _ = reopened.Close() }()
	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestHNSWStore_ReopenWithOtherWidthFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.hnsw")
	s := newTestHNSW(t, path)
	seedVectors(t, s)
	require.NoError(t, s.Flush())
	require.NoError(t, s.Close())

	cfg := DefaultVectorStoreConfig(8)
	cfg.Path = path
	_, err := NewHNSWStore(cfg)

	var dm ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestReadHNSWDimensions_Missing(t *testing.T) {
	dims, err := ReadHNSWDimensions(filepath.Join(t.TempDir(), "none.hnsw"))
	require.NoError(t, err)
	assert.Zero(t, dims)
}

func TestHNSWStore_Closed(t *testing.T) {
	s := newTestHNSW(t, "")
	require.NoError(t, s.Close())

	_, err := s.Search(context.Background(), []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = s.Count(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNewHNSWStore_RejectsBadConfig(t *testing.T) {
	_, err := NewHNSWStore(VectorStoreConfig{})
	assert.Error(t, err)

	cfg := DefaultVectorStoreConfig(3)
	cfg.Metric = "dot"
	_, err = NewHNSWStore(cfg)
	assert.Error(t, err)
}
