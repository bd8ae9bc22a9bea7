package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// ServerName identifies the server to MCP clients.
const ServerName = "amanrag"

// Limits for the k parameter of the retrieve tool.
const (
	DefaultK = 10
	MaxK     = 100
)

// Retriever runs hybrid retrieval. *retrieval.Retriever satisfies it.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int, cfg retrieval.Config) (*retrieval.Result, error)
}

// Answerer generates answers. *answer.Answerer satisfies it.
type Answerer interface {
	Ask(ctx context.Context, query string, t answer.PromptType) (*answer.Answer, error)
}

// DocumentReader loads stored documents. *store.DocumentStore satisfies it.
type DocumentReader interface {
	GetDocument(ctx context.Context, id string) (*store.Document, error)
}

// StatusFunc reports the state of the data directory.
type StatusFunc func(ctx context.Context) (ui.StatusInfo, error)

// Server bridges MCP clients with the retrieval engine.
type Server struct {
	mcp       *mcp.Server
	retriever Retriever
	retrieval retrieval.Config
	defaultK  int

	answerer  Answerer
	documents DocumentReader
	status    StatusFunc
	metrics   *telemetry.QueryMetrics
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithAnswerer enables the answer tool.
func WithAnswerer(a Answerer) Option {
	return func(s *Server) { s.answerer = a }
}

// WithDocuments enables the document resource template.
func WithDocuments(d DocumentReader) Option {
	return func(s *Server) { s.documents = d }
}

// WithStatus sets the index_status source.
func WithStatus(fn StatusFunc) Option {
	return func(s *Server) { s.status = fn }
}

// WithMetrics exposes query telemetry in index_status and as a resource.
func WithMetrics(m *telemetry.QueryMetrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithDefaultK sets k when a request omits it.
func WithDefaultK(k int) Option {
	return func(s *Server) {
		if k > 0 {
			s.defaultK = min(k, MaxK)
		}
	}
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewServer creates an MCP server. cfg is the retrieval configuration
// requests start from before applying their own overrides.
func NewServer(r Retriever, cfg retrieval.Config, opts ...Option) (*Server, error) {
	if r == nil {
		return nil, errors.New("retriever is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		retriever: r,
		retrieval: cfg,
		defaultK:  DefaultK,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version.Version,
	}, nil)

	s.registerTools()
	s.registerResources()
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// ToolInfo describes a registered tool.
type ToolInfo struct {
	Name        string
	Description string
}

// ListTools returns the registered tools.
func (s *Server) ListTools() []ToolInfo {
	names := []string{ToolRetrieve}
	if s.answerer != nil {
		names = append(names, ToolAnswer)
	}
	names = append(names, ToolIndexStatus)

	tools := make([]ToolInfo, 0, len(names))
	for _, n := range names {
		tools = append(tools, ToolInfo{Name: n, Description: toolDescriptions[n]})
	}
	return tools
}

// CallTool invokes a tool with loosely typed arguments. retrieve and
// answer return markdown; index_status returns *IndexStatusOutput.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolRetrieve:
		var in RetrieveInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		res, err := s.retrieve(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatRetrieval(res), nil
	case ToolAnswer:
		if s.answerer == nil {
			return nil, NewMethodNotFoundError(name)
		}
		var in AnswerInput
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		a, err := s.ask(ctx, in)
		if err != nil {
			return nil, err
		}
		return FormatAnswer(a), nil
	case ToolIndexStatus:
		return s.indexStatus(ctx)
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs(args map[string]any, v any) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return NewInvalidParamsError(err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return nil
}

// requestConfig applies per-request overrides to the server's config.
func (s *Server) requestConfig(in RetrieveInput) (retrieval.Config, error) {
	cfg := s.retrieval
	if in.Normalization != "" {
		st, err := retrieval.ParseStrategy(in.Normalization)
		if err != nil {
			return cfg, NewInvalidParamsError(err.Error())
		}
		cfg.Normalization = st
		cfg.LexicalNormalization = ""
		cfg.SemanticNormalization = ""
	}
	if in.LexicalWeight != nil {
		cfg.LexicalWeight = *in.LexicalWeight
	}
	if in.SemanticWeight != nil {
		cfg.SemanticWeight = *in.SemanticWeight
	}
	if in.Granularity != "" {
		cfg.Granularity = retrieval.Granularity(strings.ToLower(in.Granularity))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, NewInvalidParamsError(err.Error())
	}
	return cfg, nil
}

func (s *Server) retrieve(ctx context.Context, in RetrieveInput) (*retrieval.Result, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	if in.K < 0 {
		return nil, NewInvalidParamsError("k must be positive")
	}
	k := clampK(in.K, s.defaultK, MaxK)
	cfg, err := s.requestConfig(in)
	if err != nil {
		return nil, err
	}

	s.logger.Info("retrieve started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.Int("k", k))

	res, err := s.retriever.Retrieve(ctx, in.Query, k, cfg)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("retrieve failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("retrieve completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("result_count", len(res.Items)),
		slog.Bool("degraded", res.Degraded))
	return res, nil
}

func (s *Server) ask(ctx context.Context, in AnswerInput) (*answer.Answer, error) {
	start := time.Now()
	requestID := generateRequestID()

	if strings.TrimSpace(in.Query) == "" {
		return nil, NewInvalidParamsError("query cannot be empty or whitespace only")
	}
	t := answer.PromptTrends
	if in.PromptType != "" {
		parsed, err := answer.ParsePromptType(in.PromptType)
		if err != nil {
			return nil, MapError(err)
		}
		t = parsed
	}

	s.logger.Info("answer started",
		slog.String("request_id", requestID),
		slog.String("query", in.Query),
		slog.String("prompt_type", string(t)))

	a, err := s.answerer.Ask(ctx, in.Query, t)
	duration := time.Since(start)
	if err != nil {
		s.logger.Error("answer failed",
			slog.String("request_id", requestID),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}

	s.logger.Info("answer completed",
		slog.String("request_id", requestID),
		slog.Duration("duration", duration),
		slog.Int("citations", len(a.Citations)))
	return a, nil
}

func (s *Server) indexStatus(ctx context.Context) (*IndexStatusOutput, error) {
	out := &IndexStatusOutput{}
	if s.status != nil {
		info, err := s.status(ctx)
		if err != nil {
			return nil, MapError(err)
		}
		out.Index = toIndexInfo(info)
	}
	if s.metrics != nil {
		out.Queries = toQueryStats(s.metrics.Snapshot())
	}
	return out, nil
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolRetrieve,
		Description: toolDescriptions[ToolRetrieve],
	}, s.mcpRetrieveHandler)

	if s.answerer != nil {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        ToolAnswer,
			Description: toolDescriptions[ToolAnswer],
		}, s.mcpAnswerHandler)
	}

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: toolDescriptions[ToolIndexStatus],
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("MCP tools registered", slog.Int("count", len(s.ListTools())))
}

func (s *Server) mcpRetrieveHandler(ctx context.Context, _ *mcp.CallToolRequest, in RetrieveInput) (
	*mcp.CallToolResult,
	RetrieveOutput,
	error,
) {
	res, err := s.retrieve(ctx, in)
	if err != nil {
		return nil, RetrieveOutput{}, err
	}
	return textResult(FormatRetrieval(res)), toRetrieveOutput(res), nil
}

func (s *Server) mcpAnswerHandler(ctx context.Context, _ *mcp.CallToolRequest, in AnswerInput) (
	*mcp.CallToolResult,
	*AnswerOutput,
	error,
) {
	a, err := s.ask(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatAnswer(a)), toAnswerOutput(a), nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out, err := s.indexStatus(ctx)
	if err != nil {
		return nil, nil, err
	}
	return nil, out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// Serve runs the server on the given transport until ctx is done.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("Starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio", "":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
		} else {
			s.logger.Info("MCP server stopped gracefully")
		}
		return err
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// generateRequestID creates a short id for log correlation.
func generateRequestID() string {
	return uuid.NewString()[:8]
}
