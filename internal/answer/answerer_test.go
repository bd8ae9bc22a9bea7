package answer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

type fakeRetriever struct {
	result *retrieval.Result
	err    error
	gotK   int
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, k int, _ retrieval.Config) (*retrieval.Result, error) {
	f.gotK = k
	return f.result, f.err
}

type fakeGenerator struct {
	prompt Prompt
	calls  int
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, p Prompt) (string, error) {
	f.calls++
	f.prompt = p
	return "generated", f.err
}

type fakeDocuments struct {
	refs   map[string]store.DocumentRef
	err    error
	gotIDs []string
}

func (f *fakeDocuments) DocumentRefs(_ context.Context, ids []string) (map[string]store.DocumentRef, error) {
	f.gotIDs = ids
	return f.refs, f.err
}

func TestNewAnswerer_Validation(t *testing.T) {
	_, err := NewAnswerer(nil, &fakeGenerator{}, Options{})
	assert.Error(t, err)
}

func TestAnswerer_Ask(t *testing.T) {
	// Given: a result with a textless item between two passages
	r := &fakeRetriever{result: &retrieval.Result{Items: []retrieval.RetrievedItem{
		{ID: "a#0", DocumentID: "a", Text: "ports are congested", Source: retrieval.SourceBoth, FusedScore: 0.9},
		{ID: "b#0", DocumentID: "b", Source: retrieval.SourceLexical, FusedScore: 0.5},
		{ID: "c#2", DocumentID: "c", Text: "freight rates doubled", Source: retrieval.SourceSemantic, FusedScore: 0.4},
	}}}
	g := &fakeGenerator{}
	a, err := NewAnswerer(r, g, Options{K: 3})
	require.NoError(t, err)

	// When: asking for trends
	ans, err := a.Ask(context.Background(), "shipping trends", PromptTrends)

	// Then: the model saw both passages and they are cited in order
	require.NoError(t, err)
	assert.Equal(t, "generated", ans.Text)
	assert.Equal(t, 3, r.gotK)
	assert.Equal(t, 6, ans.ContextWords)
	require.Len(t, ans.Citations, 2)
	assert.Equal(t, "a#0", ans.Citations[0].ID)
	assert.Equal(t, "c#2", ans.Citations[1].ID)
	assert.Contains(t, g.prompt.User, "freight rates doubled")
	assert.False(t, ans.Degraded)
}

func TestAnswerer_Ask_DegradedNote(t *testing.T) {
	r := &fakeRetriever{result: &retrieval.Result{Degraded: true, Items: []retrieval.RetrievedItem{
		{ID: "a#0", DocumentID: "a", Text: "text"},
	}}}
	g := &fakeGenerator{}
	a, err := NewAnswerer(r, g, Options{})
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "q", PromptSummary)

	require.NoError(t, err)
	assert.True(t, ans.Degraded)
	assert.Contains(t, g.prompt.System, degradedNote)
}

func TestAnswerer_Ask_NoContextSkipsModel(t *testing.T) {
	g := &fakeGenerator{}
	a, err := NewAnswerer(&fakeRetriever{result: &retrieval.Result{}}, g, Options{})
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "q", PromptExplanation)

	require.NoError(t, err)
	assert.Equal(t, NoContextAnswer, ans.Text)
	assert.Zero(t, g.calls)
}

func TestAnswerer_Ask_Errors(t *testing.T) {
	boom := amerrors.New(amerrors.ErrCodeBothSourcesFailed, "both failed", nil)

	tests := []struct {
		name     string
		query    string
		typ      PromptType
		retErr   error
		genErr   error
		wantCode string
	}{
		{"empty query", " ", PromptTrends, nil, nil, amerrors.ErrCodeQueryEmpty},
		{"bad prompt type", "q", "poem", nil, nil, amerrors.ErrCodeInvalidInput},
		{"retrieval failure surfaces", "q", PromptTrends, boom, nil, amerrors.ErrCodeBothSourcesFailed},
		{"generation failure surfaces", "q", PromptTrends, nil,
			amerrors.New(amerrors.ErrCodeGenerationFailed, "down", errors.New("503")), amerrors.ErrCodeGenerationFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &fakeRetriever{err: tt.retErr, result: &retrieval.Result{Items: []retrieval.RetrievedItem{
				{ID: "a#0", DocumentID: "a", Text: "text"},
			}}}
			a, err := NewAnswerer(r, &fakeGenerator{err: tt.genErr}, Options{})
			require.NoError(t, err)

			_, err = a.Ask(context.Background(), tt.query, tt.typ)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, amerrors.GetCode(err))
		})
	}
}

func TestAnswerer_Ask_CitationsNameTheirDocuments(t *testing.T) {
	// Given: two passages of one article and a resolver that knows it
	r := &fakeRetriever{result: &retrieval.Result{Items: []retrieval.RetrievedItem{
		{ID: "a#0", DocumentID: "a", Text: "ports are congested"},
		{ID: "a#1", DocumentID: "a", Text: "freight rates doubled"},
	}}}
	docs := &fakeDocuments{refs: map[string]store.DocumentRef{
		"a": {Title: "Shipping squeeze", SourceURL: "https://news.example/a"},
	}}
	g := &fakeGenerator{}
	a, err := NewAnswerer(r, g, Options{Documents: docs})
	require.NoError(t, err)

	// When
	ans, err := a.Ask(context.Background(), "shipping", PromptSummary)

	// Then: the document is looked up once and named in citations and context
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, docs.gotIDs)
	require.Len(t, ans.Citations, 2)
	for _, c := range ans.Citations {
		assert.Equal(t, "Shipping squeeze", c.Title)
		assert.Equal(t, "https://news.example/a", c.SourceURL)
	}
	assert.Contains(t, g.prompt.User, "[1] Shipping squeeze (https://news.example/a)")
}

func TestAnswerer_Ask_ResolverFailureKeepsAnswer(t *testing.T) {
	r := &fakeRetriever{result: &retrieval.Result{Items: []retrieval.RetrievedItem{
		{ID: "a#0", DocumentID: "a", Text: "text"},
	}}}
	docs := &fakeDocuments{err: errors.New("database is locked")}
	a, err := NewAnswerer(r, &fakeGenerator{}, Options{Documents: docs})
	require.NoError(t, err)

	ans, err := a.Ask(context.Background(), "q", PromptSummary)

	require.NoError(t, err)
	require.Len(t, ans.Citations, 1)
	assert.Equal(t, "a", ans.Citations[0].DocumentID)
	assert.Empty(t, ans.Citations[0].Title)
}
