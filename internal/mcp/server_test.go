package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/internal/answer"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// fakeRetriever records the last call and returns a canned result.
type fakeRetriever struct {
	err  error
	k    int
	cfg  retrieval.Config
	seen string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string, k int, cfg retrieval.Config) (*retrieval.Result, error) {
	f.seen, f.k, f.cfg = query, k, cfg
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Result{
		Query: query,
		K:     k,
		Items: []retrieval.RetrievedItem{
			{
				ID: "doc-1#0", DocumentID: "doc-1", Text: "Lead times for castings rose in Q3.",
				Source: retrieval.SourceBoth, FusedScore: 0.9,
				Lexical:  &retrieval.SourceScore{Rank: 1, Raw: 7.2, Normalized: 1},
				Semantic: &retrieval.SourceScore{Rank: 2, Raw: 0.8, Normalized: 0.8},
				Terms:    []string{"lead", "castings"},
			},
			{
				ID: "doc-2#3", DocumentID: "doc-2", Text: "Suppliers shifted to nearshoring.",
				Source: retrieval.SourceSemantic, FusedScore: 0.4,
				Semantic: &retrieval.SourceScore{Rank: 1, Raw: 0.9, Normalized: 1},
			},
		},
	}, nil
}

type fakeAnswerer struct {
	err  error
	kind answer.PromptType
}

func (f *fakeAnswerer) Ask(_ context.Context, query string, t answer.PromptType) (*answer.Answer, error) {
	f.kind = t
	if f.err != nil {
		return nil, f.err
	}
	return &answer.Answer{
		Text:       "Casting lead times are rising [1].",
		PromptType: t,
		Citations: []answer.Citation{
			{ID: "doc-1#0", DocumentID: "doc-1", Source: retrieval.SourceBoth, Score: 0.9},
			{ID: "doc-2#1", DocumentID: "doc-2", Title: "Foundry report", SourceURL: "https://example.com/foundry",
				Source: retrieval.SourceSemantic, Score: 0.4},
		},
		ContextWords: 7,
	}, nil
}

type fakeDocuments map[string]*store.Document

func (f fakeDocuments) GetDocument(_ context.Context, id string) (*store.Document, error) {
	if d, ok := f[id]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *fakeRetriever) {
	t.Helper()
	r := &fakeRetriever{}
	s, err := NewServer(r, retrieval.DefaultConfig(), opts...)
	require.NoError(t, err)
	return s, r
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(nil, retrieval.DefaultConfig())
	assert.Error(t, err)

	bad := retrieval.DefaultConfig()
	bad.LexicalWeight, bad.SemanticWeight = 0, 0
	_, err = NewServer(&fakeRetriever{}, bad)
	assert.ErrorIs(t, err, retrieval.ErrConfiguration)
}

func TestServer_ListTools(t *testing.T) {
	s, _ := newTestServer(t)
	names := func(tools []ToolInfo) []string {
		var out []string
		for _, ti := range tools {
			out = append(out, ti.Name)
			assert.NotEmpty(t, ti.Description)
		}
		return out
	}

	assert.Equal(t, []string{ToolRetrieve, ToolIndexStatus}, names(s.ListTools()))

	withAnswer, _ := newTestServer(t, WithAnswerer(&fakeAnswerer{}))
	assert.Equal(t, []string{ToolRetrieve, ToolAnswer, ToolIndexStatus}, names(withAnswer.ListTools()))
}

func TestServer_CallTool_Retrieve(t *testing.T) {
	// Given: a server with default k 5
	s, r := newTestServer(t, WithDefaultK(5))

	// When: calling retrieve without k
	out, err := s.CallTool(context.Background(), ToolRetrieve, map[string]any{"query": "casting lead times"})

	// Then: the default k is used and markdown is returned
	require.NoError(t, err)
	assert.Equal(t, 5, r.k)
	assert.Equal(t, "casting lead times", r.seen)
	text := out.(string)
	assert.Contains(t, text, "Found 2 results")
	assert.Contains(t, text, "### 1. doc-1#0")
	assert.Contains(t, text, "full-text rank 1; semantic rank 2; matched: lead, castings")
}

func TestServer_CallTool_RetrieveOverrides(t *testing.T) {
	s, r := newTestServer(t)

	_, err := s.CallTool(context.Background(), ToolRetrieve, map[string]any{
		"query":           "tariffs",
		"k":               float64(500),
		"normalization":   "rr",
		"lexical_weight":  0.0,
		"semantic_weight": 2.0,
		"granularity":     "Document",
	})

	require.NoError(t, err)
	assert.Equal(t, MaxK, r.k)
	assert.Equal(t, retrieval.ReciprocalRank, r.cfg.Normalization)
	assert.Zero(t, r.cfg.LexicalWeight)
	assert.Equal(t, 2.0, r.cfg.SemanticWeight)
	assert.Equal(t, retrieval.GranularityDocument, r.cfg.Granularity)
}

func TestServer_CallTool_InvalidParams(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing query", nil},
		{"blank query", map[string]any{"query": "   "}},
		{"negative k", map[string]any{"query": "q", "k": float64(-1)}},
		{"unknown normalization", map[string]any{"query": "q", "normalization": "zscore"}},
		{"zero weights", map[string]any{"query": "q", "lexical_weight": 0.0, "semantic_weight": 0.0}},
		{"bad granularity", map[string]any{"query": "q", "granularity": "sentence"}},
		{"wrong type", map[string]any{"query": 42}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, r := newTestServer(t)

			_, err := s.CallTool(context.Background(), ToolRetrieve, tt.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
			assert.Empty(t, r.seen, "retriever must not be called")
		})
	}
}

func TestServer_CallTool_RetrieveErrorMapped(t *testing.T) {
	s, r := newTestServer(t)
	r.err = amerrors.New(amerrors.ErrCodeBothSourcesFailed, "both retrieval sources failed", nil)

	_, err := s.CallTool(context.Background(), ToolRetrieve, map[string]any{"query": "q"})

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeIndexUnavailable, mcpErr.Code)
}

func TestServer_CallTool_Answer(t *testing.T) {
	a := &fakeAnswerer{}
	s, _ := newTestServer(t, WithAnswerer(a))

	out, err := s.CallTool(context.Background(), ToolAnswer, map[string]any{
		"query":       "why are casting lead times rising?",
		"prompt_type": "explanation",
	})

	require.NoError(t, err)
	assert.Equal(t, answer.PromptExplanation, a.kind)
	assert.Contains(t, out.(string), "Casting lead times are rising [1].")
	assert.Contains(t, out.(string), "- [1] doc-1#0 (BOTH, 0.900)\n")
	assert.Contains(t, out.(string), "- [2] doc-2#1 (SEMANTIC, 0.400) Foundry report <https://example.com/foundry>")
}

func TestServer_CallTool_AnswerErrors(t *testing.T) {
	s, _ := newTestServer(t)
	_, err := s.CallTool(context.Background(), ToolAnswer, map[string]any{"query": "q"})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)

	s, _ = newTestServer(t, WithAnswerer(&fakeAnswerer{}))
	_, err = s.CallTool(context.Background(), ToolAnswer, map[string]any{"query": "q", "prompt_type": "poem"})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)

	s, _ = newTestServer(t, WithAnswerer(&fakeAnswerer{
		err: amerrors.New(amerrors.ErrCodeGenerationFailed, "generation failed", nil),
	}))
	_, err = s.CallTool(context.Background(), ToolAnswer, map[string]any{"query": "q"})
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeGenerationFailed, mcpErr.Code)
}

func TestServer_CallTool_IndexStatus(t *testing.T) {
	// Given: a status source and telemetry with one query
	indexed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	metrics := telemetry.New(nil, telemetry.Config{}, nil)
	defer metrics.Close()
	metrics.Observe(&retrieval.Result{Query: "inventory", Items: nil})

	s, _ := newTestServer(t,
		WithMetrics(metrics),
		WithStatus(func(context.Context) (ui.StatusInfo, error) {
			return ui.StatusInfo{DataDir: "/data", Documents: 3, Chunks: 12, Vectors: 12, LastIndexed: indexed, EmbedderStatus: "ready"}, nil
		}))

	// When: calling index_status
	out, err := s.CallTool(context.Background(), ToolIndexStatus, nil)

	// Then: counts and telemetry are reported
	require.NoError(t, err)
	status := out.(*IndexStatusOutput)
	assert.Equal(t, 12, status.Index.Chunks)
	assert.Equal(t, "2026-10-01T12:00:00Z", status.Index.LastIndexed)
	require.NotNil(t, status.Queries)
	assert.Equal(t, int64(1), status.Queries.TotalQueries)
	assert.Equal(t, []string{"inventory"}, status.Queries.ZeroResultQueries)
}

func TestServer_CallTool_IndexStatusError(t *testing.T) {
	s, _ := newTestServer(t, WithStatus(func(context.Context) (ui.StatusInfo, error) {
		return ui.StatusInfo{}, errors.New("disk gone")
	}))

	_, err := s.CallTool(context.Background(), ToolIndexStatus, nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInternalError, mcpErr.Code)
}

func TestServer_CallTool_Unknown(t *testing.T) {
	s, _ := newTestServer(t)

	_, err := s.CallTool(context.Background(), "search_code", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestServer_DocumentText(t *testing.T) {
	s, _ := newTestServer(t, WithDocuments(fakeDocuments{
		"doc-1": {ID: "doc-1", Title: "Castings", SourceURL: "https://example.com/castings", Content: "Body text."},
		"doc-2": {ID: "doc-2", Title: "Forging", Synopsis: "Presses are booked out.", Content: "More text."},
	}))

	text, err := s.documentText(context.Background(), "amanrag://documents/doc-1")
	require.NoError(t, err)
	assert.Equal(t, "# Castings\n\nSource: https://example.com/castings\n\nBody text.", text)

	text, err = s.documentText(context.Background(), "amanrag://documents/doc-2")
	require.NoError(t, err)
	assert.Equal(t, "# Forging\n\n> Presses are booked out.\n\nMore text.", text)

	for _, uri := range []string{"amanrag://documents/missing", "amanrag://documents/", "file:///etc/passwd"} {
		_, err := s.documentText(context.Background(), uri)
		var mcpErr *MCPError
		require.ErrorAs(t, err, &mcpErr, uri)
		assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
	}
}

// connect runs s over an in-memory transport and returns a client session.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	serverTransport, clientTransport := mcp.NewInMemoryTransports()

	ss, err := s.MCPServer().Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func TestServer_OverMCP(t *testing.T) {
	// Given: a fully optioned server connected to a client
	metrics := telemetry.New(nil, telemetry.Config{}, nil)
	defer metrics.Close()
	s, _ := newTestServer(t,
		WithAnswerer(&fakeAnswerer{}),
		WithMetrics(metrics),
		WithDocuments(fakeDocuments{"doc-1": {ID: "doc-1", Content: "Body text."}}))
	cs := connect(t, s)
	ctx := context.Background()

	// When/Then: every tool is listed
	tools, err := cs.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{ToolRetrieve, ToolAnswer, ToolIndexStatus}, names)

	// When/Then: retrieve returns markdown content
	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolRetrieve,
		Arguments: map[string]any{"query": "casting lead times", "k": 2},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "doc-2#3")

	// When/Then: a blank query is a tool error, not a protocol error
	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      ToolRetrieve,
		Arguments: map[string]any{"query": " "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	// When/Then: documents are readable through the template
	doc, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: "amanrag://documents/doc-1"})
	require.NoError(t, err)
	require.Len(t, doc.Contents, 1)
	assert.Equal(t, "Body text.", doc.Contents[0].Text)

	// When/Then: the metrics resource is served
	m, err := cs.ReadResource(ctx, &mcp.ReadResourceParams{URI: QueryMetricsURI})
	require.NoError(t, err)
	assert.Contains(t, m.Contents[0].Text, `"total_queries"`)
}
