package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

func TestWriter_StatusLines(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing each kind of line
	w.Success("Index complete!")
	w.Warningf("%d documents were empty", 2)
	w.Errorf("failed: %s", "boom")
	w.Status("", "indented")

	// Then: each carries its icon
	out := buf.String()
	assert.Contains(t, out, "✅ Index complete!")
	assert.Contains(t, out, "⚠️  2 documents were empty")
	assert.Contains(t, out, "❌ failed: boom")
	assert.Contains(t, out, "   indented\n")
}

func TestWriter_Results(t *testing.T) {
	// Given: a degraded result with one lexical item
	res := &retrieval.Result{
		Query:    "tariffs",
		Degraded: true,
		Failures: []retrieval.SourceFailure{{Source: retrieval.SourceSemantic, Err: errors.New("timeout")}},
		Items: []retrieval.RetrievedItem{{
			ID: "doc-1#2", Source: retrieval.SourceLexical, FusedScore: 0.5,
			Lexical: &retrieval.SourceScore{Rank: 1, Raw: 3.25, Normalized: 1},
			Text:    "Tariffs   on steel\nraised costs.",
		}},
		Stats: retrieval.Stats{Limit: 40, Strategy: retrieval.MinMax},
	}
	buf := &bytes.Buffer{}

	// When: printing with explanations
	New(buf).Results(res, true)

	// Then: the warning, ranking and preview are shown
	out := buf.String()
	assert.Contains(t, out, "semantic search unavailable: timeout")
	assert.Contains(t, out, " 1. LEXICAL  0.5000  doc-1#2")
	assert.Contains(t, out, "lexical  rank 1    raw 3.2500 norm 1.0000")
	assert.Contains(t, out, "Tariffs on steel raised costs.")
	assert.Contains(t, out, "1 results")
}

func TestWriter_Results_Empty(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Results(&retrieval.Result{Query: "nothing"}, false)

	assert.Contains(t, buf.String(), `No results for "nothing"`)
}

func TestWriter_Answer(t *testing.T) {
	buf := &bytes.Buffer{}

	New(buf).Answer(&answer.Answer{
		Text: "Steel costs rose [1].",
		Citations: []answer.Citation{
			{ID: "doc-1#2", Source: retrieval.SourceBoth, Score: 0.75},
			{ID: "doc-2#0", Title: "Mill output", SourceURL: "https://news.example/2", Source: retrieval.SourceLexical, Score: 0.5},
		},
		ContextWords: 7000,
		Truncated:    true,
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Steel costs rose [1].\n"))
	assert.Contains(t, out, "[1] doc-1#2 (BOTH, 0.750)\n")
	assert.Contains(t, out, "[2] doc-2#0 (LEXICAL, 0.500) Mill output <https://news.example/2>\n")
	assert.Contains(t, out, "context truncated at 7000 words")
}

func TestWriter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, New(buf).JSON(map[string]int{"k": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, 3, got["k"])
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "a b", preview(" a \n b ", 10))
	assert.Equal(t, "abc…", preview("abcdef", 3))
}
