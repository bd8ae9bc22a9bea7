package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var lexicalBackends = []struct {
	name string
	open func(path string, cfg BM25Config) (BM25Index, error)
}{
	{"sqlite", func(p string, c BM25Config) (BM25Index, error) { return NewSQLiteBM25Index(p, c) }},
	{"bleve", func(p string, c BM25Config) (BM25Index, error) { return NewBleveBM25Index(p, c) }},
}

func newsPassages() []*Passage {
	return []*Passage{
		{ID: "fed#0", Content: "The Federal Reserve raised interest rates by a quarter point on Wednesday."},
		{ID: "fed#1", Content: "Inflation cooled for a third month as energy prices fell."},
		{ID: "match#0", Content: "The home side won the football match after extra time."},
	}
}

func TestLexicalIndex_SearchRanksMatchingPassages(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			// Given: an index with three news passages
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(context.Background(), newsPassages()))

			// When: searching for interest rates
			results, err := idx.Search(context.Background(), "interest rates", 10)
			require.NoError(t, err)

			// Then: only the rates passage matches, with a positive score
			require.Len(t, results, 1)
			assert.Equal(t, "fed#0", results[0].DocID)
			assert.Greater(t, results[0].Score, 0.0)
		})
	}
}

func TestLexicalIndex_PlainQueryMatchesAnyTerm(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(context.Background(), newsPassages()))

			// When: the query names terms from two different passages
			results, err := idx.Search(context.Background(), "inflation football", 10)
			require.NoError(t, err)

			// Then: both passages are returned, scores non-increasing
			ids := make([]string, len(results))
			for i, r := range results {
				ids[i] = r.DocID
			}
			assert.ElementsMatch(t, []string{"fed#1", "match#0"}, ids)
			for i := 1; i < len(results); i++ {
				assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
			}
		})
	}
}

func TestLexicalIndex_StopWordOnlyQueryReturnsEmpty(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(context.Background(), newsPassages()))

			results, err := idx.Search(context.Background(), "the of and", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestLexicalIndex_RespectsLimit(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(context.Background(), newsPassages()))

			results, err := idx.Search(context.Background(), "inflation football rates", 2)
			require.NoError(t, err)
			assert.Len(t, results, 2)

			results, err = idx.Search(context.Background(), "inflation", 0)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestLexicalIndex_ReindexReplacesAndDeleteRemoves(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = idx.Close() }()
			require.NoError(t, idx.Index(ctx, newsPassages()))

			// When: a passage is re-indexed with new text
			require.NoError(t, idx.Index(ctx, []*Passage{{ID: "fed#1", Content: "Unemployment held steady."}}))

			// Then: the old text no longer matches and the count is unchanged
			results, err := idx.Search(ctx, "inflation", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Equal(t, 3, idx.Stats().DocumentCount)

			// When: a passage is deleted
			require.NoError(t, idx.Delete(ctx, []string{"match#0", "unknown"}))

			// Then: it is gone
			results, err = idx.Search(ctx, "football", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
			assert.Equal(t, 2, idx.Stats().DocumentCount)
		})
	}
}

func TestLexicalIndex_ClosedIndexFails(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			idx, err := b.open("", DefaultBM25Config())
			require.NoError(t, err)
			require.NoError(t, idx.Close())
			require.NoError(t, idx.Close())

			_, err = idx.Search(context.Background(), "rates", 10)
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, idx.Index(context.Background(), newsPassages()), ErrClosed)
			assert.Equal(t, 0, idx.Stats().DocumentCount)
		})
	}
}

func TestLexicalIndex_PersistsAcrossReopen(t *testing.T) {
	for _, b := range lexicalBackends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			path := filepath.Join(t.TempDir(), "lexical")

			idx, err := b.open(path, DefaultBM25Config())
			require.NoError(t, err)
			require.NoError(t, idx.Index(ctx, newsPassages()))
			require.NoError(t, idx.Flush())
			require.NoError(t, idx.Close())

			reopened, err := b.open(path, DefaultBM25Config())
			require.NoError(t, err)
			defer func() { _ = reopened.Close() }()

			results, err := reopened.Search(ctx, "football", 10)
			require.NoError(t, err)
			require.Len(t, results, 1)
			assert.Equal(t, "match#0", results[0].DocID)
		})
	}
}

func TestSQLiteBM25Index_RawSyntaxErrorIsInvalidQuery(t *testing.T) {
	// Given: an index in raw query mode
	cfg := DefaultBM25Config()
	cfg.Syntax = QueryRaw
	idx, err := NewSQLiteBM25Index("", cfg)
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Index(context.Background(), newsPassages()))

	// When: the query is malformed FTS5
	_, err = idx.Search(context.Background(), `"unterminated`, 10)

	// Then: the error matches ErrInvalidQuery
	assert.ErrorIs(t, err, ErrInvalidQuery)

	// And: a valid expression still works
	results, err := idx.Search(context.Background(), "inflation OR football", 10)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSQLiteBM25Index_PlainModeEscapesSyntax(t *testing.T) {
	idx, err := NewSQLiteBM25Index("", DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	require.NoError(t, idx.Index(context.Background(), newsPassages()))

	// FTS5 operators in user text are treated as words.
	results, err := idx.Search(context.Background(), `"rates" AND (NEAR`, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "fed#0", results[0].DocID)
}

func TestSQLiteBM25Index_CorruptFileIsRecreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lexical.db")
	require.NoError(t, writeFile(path, "not a database"))

	idx, err := NewSQLiteBM25Index(path, DefaultBM25Config())
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	assert.Equal(t, 0, idx.Stats().DocumentCount)
}

func TestNewBM25Index_Backends(t *testing.T) {
	dir := t.TempDir()

	idx, err := NewBM25Index(dir, BM25BackendBleve, DefaultBM25Config())
	require.NoError(t, err)
	_, ok := idx.(*BleveBM25Index)
	assert.True(t, ok)
	require.NoError(t, idx.Close())

	idx, err = NewBM25Index(dir, "", DefaultBM25Config())
	require.NoError(t, err)
	_, ok = idx.(*SQLiteBM25Index)
	assert.True(t, ok)
	require.NoError(t, idx.Close())

	_, err = NewBM25Index(dir, "lucene", DefaultBM25Config())
	assert.ErrorContains(t, err, "unknown lexical backend")

	assert.Equal(t, filepath.Join(dir, "lexical.db"), LexicalIndexPath(dir, BM25BackendSQLite))
	assert.Equal(t, filepath.Join(dir, "lexical.bleve"), LexicalIndexPath(dir, BM25BackendBleve))
}
