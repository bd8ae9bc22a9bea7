package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(w, " ")
}

func TestNewTextChunker_Defaults(t *testing.T) {
	c, err := NewTextChunker(Options{})
	require.NoError(t, err)
	assert.Equal(t, Options{ChunkWords: 510, OverlapWords: 50}, c.Options())
}

func TestNewTextChunker_RejectsBadWindows(t *testing.T) {
	for _, opts := range []Options{
		{ChunkWords: 4},
		{ChunkWords: 20, OverlapWords: 20},
		{ChunkWords: 20, OverlapWords: -1},
	} {
		_, err := NewTextChunker(opts)
		assert.Error(t, err, "%+v", opts)
	}
}

func TestTextChunker_OverlappingWindows(t *testing.T) {
	// Given: 50 words, windows of 20 sharing 5
	c, err := NewTextChunker(Options{ChunkWords: 20, OverlapWords: 5})
	require.NoError(t, err)

	// When: chunking
	chunks, err := c.Chunk(context.Background(), &Input{DocumentID: "doc", Content: words(50)})
	require.NoError(t, err)

	// Then: windows start every 15 words and the last ends at the end
	require.Len(t, chunks, 3)
	bounds := [][2]int{{0, 20}, {15, 35}, {30, 50}}
	for i, ch := range chunks {
		assert.Equal(t, bounds[i], [2]int{ch.StartWord, ch.EndWord})
		assert.Equal(t, i, ch.Ordinal)
		assert.Equal(t, retrieval.ChunkID("doc", i), ch.ID)
		assert.Equal(t, "doc", retrieval.ParentID(ch.ID))
	}
	assert.True(t, strings.HasPrefix(chunks[1].Content, "w15 "))
	assert.True(t, strings.HasSuffix(chunks[0].Content, " w19"))
}

func TestTextChunker_ShortDocumentIsOneChunk(t *testing.T) {
	c, err := NewTextChunker(Options{})
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), &Input{DocumentID: "d", Content: "  Oil prices\n\nrose.  "})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Oil prices rose.", chunks[0].Content)
}

func TestTextChunker_BlankDocumentHasNoChunks(t *testing.T) {
	c, err := NewTextChunker(Options{})
	require.NoError(t, err)

	chunks, err := c.Chunk(context.Background(), &Input{DocumentID: "d", Content: " \n\t"})
	require.NoError(t, err)
	assert.Empty(t, chunks)

	_, err = c.Chunk(context.Background(), &Input{Content: "text"})
	assert.Error(t, err)
}

func TestTextChunker_DropsFrontmatter(t *testing.T) {
	c, err := NewTextChunker(Options{})
	require.NoError(t, err)
	content := "---\nsource: wire\n---\n# Rates\nThe Fed held."

	chunks, err := c.Chunk(context.Background(), &Input{DocumentID: "d", Content: content})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "# Rates The Fed held.", chunks[0].Content)
}

func TestTextChunker_Cancelled(t *testing.T) {
	c, err := NewTextChunker(Options{ChunkWords: 16, OverlapWords: 1})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = c.Chunk(ctx, &Input{DocumentID: "d", Content: words(100)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTitle(t *testing.T) {
	tests := map[string]string{
		"# Rates hold\nbody":                 "Rates hold",
		"intro\n\n## Second level ##\n":      "Second level",
		"---\ntitle: x\n---\n# After matter": "After matter",
		"no heading here":                    "",
		"#hashtag is not a heading":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Title(in), in)
	}
}
