package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

func TestDocumentID_Stable(t *testing.T) {
	a := DocumentID("https://news.example.com/a", "Rates rise")
	b := DocumentID("https://news.example.com/a", "A different title")
	c := DocumentID("", "Rates rise")

	// The URL wins over the title, and the id is deterministic.
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, c, DocumentID("", "  Rates rise "))
	assert.Len(t, a, 36)
}

func TestLoadJSONL(t *testing.T) {
	// Given: records with and without ids plus a blank line
	input := strings.Join([]string{
		`{"id":"a1","title":"Rates","content":"central banks","source_url":"https://x/a","scraped_at":"2024-03-01T10:00:00Z"}`,
		``,
		`{"title":"Football","content":"season opens","source_url":"https://x/b"}`,
		`{"id":"a1","title":"Rates v2","content":"updated"}`,
	}, "\n")

	// When: loading
	docs, err := LoadJSONL(context.Background(), strings.NewReader(input))

	// Then: duplicates collapse onto the last record and ids are filled in
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a1", docs[0].ID)
	assert.Equal(t, "Rates v2", docs[0].Title)
	assert.Equal(t, DocumentID("https://x/b", "Football"), docs[1].ID)
	assert.Equal(t, "https://x/b", docs[1].SourceURL)
}

func TestLoadJSONL_ScrapedAt(t *testing.T) {
	docs, err := LoadJSONL(context.Background(),
		strings.NewReader(`{"id":"a","title":"t","content":"c","scraped_at":"2024-03-01T10:00:00Z"}`))
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.True(t, docs[0].ScrapedAt.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
}

func TestLoadJSONL_Synopsis(t *testing.T) {
	docs, err := LoadJSONL(context.Background(), strings.NewReader(
		`{"id":"a","title":"Rates","synopsis":"Banks hold steady.","content":"c","source_url":"https://x/a"}`))

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "Banks hold steady.", docs[0].Synopsis)
}

func TestLoadJSONL_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"broken json", `{"id":`},
		{"no identity", `{"content":"orphan"}`},
		{"separator in id", `{"id":"a#1","title":"t"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadJSONL(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Equal(t, amerrors.ErrCodeInvalidInput, amerrors.GetCode(err))
			assert.Contains(t, err.Error(), "line 1")
		})
	}
}

func TestLoadDir(t *testing.T) {
	// Given: a corpus with markdown, text, an unrelated file and a hidden dir
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "world"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".cache"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "world", "rates.md"), []byte("# Rates climb\n\nBanks raised rates."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("plain notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "image.png"), []byte{0x89}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".cache", "x.md"), []byte("# hidden"), 0o644))

	// When: loading
	docs, err := LoadDir(context.Background(), dir)

	// Then: two documents in path order with derived titles
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "notes", docs[0].Title)
	assert.Equal(t, "file:notes.txt", docs[0].SourceURL)
	assert.Equal(t, "Rates climb", docs[1].Title)
	assert.Equal(t, "file:world/rates.md", docs[1].SourceURL)
	assert.Equal(t, DocumentID("file:world/rates.md", ""), docs[1].ID)
	assert.False(t, docs[1].ScrapedAt.IsZero())
}

func TestLoad_Dispatch(t *testing.T) {
	dir := t.TempDir()
	jsonl := filepath.Join(dir, "corpus.jsonl")
	require.NoError(t, os.WriteFile(jsonl, []byte(`{"id":"x","title":"t","content":"c"}`+"\n"), 0o644))
	single := filepath.Join(dir, "one.md")
	require.NoError(t, os.WriteFile(single, []byte("# One\nbody"), 0o644))

	docs, err := Load(context.Background(), jsonl)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "x", docs[0].ID)

	docs, err = Load(context.Background(), single)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "One", docs[0].Title)

	_, err = Load(context.Background(), filepath.Join(dir, "missing"))
	assert.Equal(t, amerrors.ErrCodeFileNotFound, amerrors.GetCode(err))
}
