package mcp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

func TestFormatRetrieval_Empty(t *testing.T) {
	assert.Equal(t, `No passages found for "tariffs"`, FormatRetrieval(&retrieval.Result{Query: "tariffs"}))
	assert.Equal(t, `No passages found for ""`, FormatRetrieval(nil))
}

func TestFormatRetrieval_DegradedAndTruncated(t *testing.T) {
	// Given: a degraded single-item result with a long passage
	res := &retrieval.Result{
		Query:    "tariffs",
		Degraded: true,
		Failures: []retrieval.SourceFailure{{Source: retrieval.SourceSemantic, Err: errors.New("down")}},
		Items: []retrieval.RetrievedItem{{
			ID: "d#0", Source: retrieval.SourceLexical, FusedScore: 1,
			Lexical: &retrieval.SourceScore{Rank: 1},
			Text:    strings.Repeat("x", maxSnippetRunes+10),
		}},
	}

	// When: formatting
	out := FormatRetrieval(res)

	// Then: the degradation is called out and the snippet is cut
	assert.Contains(t, out, "Found 1 result\n")
	assert.Contains(t, out, "> Degraded: semantic search was unavailable.")
	assert.Contains(t, out, strings.Repeat("x", maxSnippetRunes)+"...")
	assert.NotContains(t, out, strings.Repeat("x", maxSnippetRunes+1))
}

func TestMatchReason(t *testing.T) {
	assert.Equal(t, "matched content", matchReason(retrieval.RetrievedItem{}))
	assert.Equal(t, "semantic rank 3", matchReason(retrieval.RetrievedItem{
		Semantic: &retrieval.SourceScore{Rank: 3},
	}))
	assert.Equal(t, "full-text rank 1; matched: a, b, c, d, e", matchReason(retrieval.RetrievedItem{
		Lexical: &retrieval.SourceScore{Rank: 1},
		Terms:   []string{"a", "b", "c", "d", "e", "f"},
	}))
}

func TestFormatAnswer_Degraded(t *testing.T) {
	out := FormatAnswer(&answer.Answer{Text: answer.NoContextAnswer, Degraded: true})

	assert.True(t, strings.HasPrefix(out, answer.NoContextAnswer))
	assert.Contains(t, out, "one retrieval signal only")
	assert.NotContains(t, out, "Sources")
}

func TestClampK(t *testing.T) {
	assert.Equal(t, 10, clampK(0, 10, 100))
	assert.Equal(t, 7, clampK(7, 10, 100))
	assert.Equal(t, 100, clampK(1000, 10, 100))
}
