package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultOpenAIModel is the embedding model used when none is configured.
const DefaultOpenAIModel = "text-embedding-3-small"

// OpenAIConfig configures an OpenAI-compatible embedding endpoint.
type OpenAIConfig struct {
	// BaseURL of the API, e.g. http://localhost:11434/v1. Empty uses OpenAI.
	BaseURL string
	// APIKey may be empty for local services that do not authenticate.
	APIKey string
	Model  string

	// Dimensions is the expected width. Zero asks the endpoint once.
	Dimensions int

	BatchSize int
	Timeout   time.Duration
	Retry     amerrors.RetryConfig

	// Breaker guards the endpoint. Nil creates one named "embeddings".
	Breaker *amerrors.CircuitBreaker
	Logger  *slog.Logger
}

// OpenAIEmbedder embeds text through an OpenAI-compatible API.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	config   OpenAIConfig
	breaker  *amerrors.CircuitBreaker
	logger   *slog.Logger

	mu     sync.RWMutex
	dims   int
	closed bool
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder connects to the endpoint described by cfg. When
// cfg.Dimensions is zero the width is learned from a sample request.
func NewOpenAIEmbedder(ctx context.Context, cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = isRetryableEmbedError
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "failed to create embedding client", err)
	}
	inner, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(cfg.BatchSize))
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "failed to create embedder", err)
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = amerrors.NewCircuitBreaker("embeddings")
	}

	e := &OpenAIEmbedder{
		embedder: inner,
		config:   cfg,
		breaker:  breaker,
		logger:   cfg.Logger.With(slog.String("component", "openai-embedder")),
		dims:     cfg.Dimensions,
	}

	if e.dims == 0 {
		vec, err := e.Embed(ctx, "dimension check")
		if err != nil {
			return nil, fmt.Errorf("failed to detect embedding width: %w", err)
		}
		e.mu.Lock()
		e.dims = len(vec)
		e.mu.Unlock()
		e.logger.Info("embedding width detected",
			slog.String("model", cfg.Model),
			slog.Int("dimensions", len(vec)))
	}
	return e, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts with retries behind the circuit breaker. Every
// returned vector is checked against the configured width.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	closed, dims := e.closed, e.dims
	e.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embedder is closed")
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	start := time.Now()
	vecs, err := amerrors.CircuitExecute(e.breaker, func() ([][]float32, error) {
		return amerrors.RetryWithResult(ctx, e.config.Retry, func() ([][]float32, error) {
			rctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
			defer cancel()
			return e.embedder.EmbedDocuments(rctx, texts)
		})
	}, isCallerError)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("embedding request failed",
			slog.Int("texts", len(texts)),
			slog.String("error", err.Error()))
		return nil, amerrors.New(amerrors.ErrCodeEmbeddingFailed, "embedding request failed", err)
	}
	if len(vecs) != len(texts) {
		return nil, amerrors.Newf(amerrors.ErrCodeEmbeddingFailed,
			"embedding endpoint returned %d vectors for %d texts", len(vecs), len(texts))
	}
	for i, v := range vecs {
		if dims > 0 && len(v) != dims {
			return nil, amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
				"model %s returned %d dimensions, expected %d", e.config.Model, len(v), dims).
				WithDetail("index", fmt.Sprint(i))
		}
	}

	e.logger.Debug("embedded batch",
		slog.Int("texts", len(texts)),
		slog.Duration("elapsed", time.Since(start)))
	return vecs, nil
}

// Dimensions returns the embedding width.
func (e *OpenAIEmbedder) Dimensions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dims
}

// ModelName returns the configured model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.config.Model
}

// Available reports whether the embedder is open and its breaker admits
// requests.
func (e *OpenAIEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed && e.breaker.State() != amerrors.StateOpen
}

// Close marks the embedder closed.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

func isCallerError(err error) bool {
	return errors.Is(err, context.Canceled)
}

// isRetryableEmbedError skips retries for cancellation and for client
// errors the endpoint will keep rejecting.
func isRetryableEmbedError(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"status code: 400", "status code: 401", "status code: 403", "status code: 404", "invalid_api_key"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}
