package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = "gpt-4o-mini"

// Generator produces an answer for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// LLMConfig configures an OpenAI-compatible chat endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   amerrors.RetryConfig
	Breaker *amerrors.CircuitBreaker
	Logger  *slog.Logger
}

// LLMGenerator generates answers through langchaingo at temperature 0.
type LLMGenerator struct {
	client  llms.Model
	config  LLMConfig
	breaker *amerrors.CircuitBreaker
	logger  *slog.Logger
}

var _ Generator = (*LLMGenerator)(nil)

// NewLLMGenerator creates a generator for cfg.
func NewLLMGenerator(cfg LLMConfig) (*LLMGenerator, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.InitialDelay == 0 {
		cfg.Retry = amerrors.DefaultRetryConfig()
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = isRetryable
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{openai.WithToken(token), openai.WithModel(cfg.Model)}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeConfigInvalid, "failed to create chat client", err)
	}

	breaker := cfg.Breaker
	if breaker == nil {
		breaker = amerrors.NewCircuitBreaker("generation")
	}
	return &LLMGenerator{
		client:  client,
		config:  cfg,
		breaker: breaker,
		logger:  cfg.Logger.With(slog.String("component", "llm-generator")),
	}, nil
}

// Generate sends the system and user messages and returns the first
// choice.
func (g *LLMGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, prompt.System),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt.User),
	}

	start := time.Now()
	resp, err := amerrors.CircuitExecute(g.breaker, func() (*llms.ContentResponse, error) {
		return amerrors.RetryWithResult(ctx, g.config.Retry, func() (*llms.ContentResponse, error) {
			rctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
			defer cancel()
			return g.client.GenerateContent(rctx, content, llms.WithTemperature(0))
		})
	}, func(err error) bool { return errors.Is(err, context.Canceled) })
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("generation failed", slog.String("error", err.Error()))
		return "", amerrors.New(amerrors.ErrCodeGenerationFailed, "answer generation failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", amerrors.New(amerrors.ErrCodeGenerationFailed, "model returned no choices", nil)
	}

	g.logger.Debug("generated answer",
		slog.String("model", g.config.Model),
		slog.Duration("elapsed", time.Since(start)))
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"status code: 400", "status code: 401", "status code: 403", "status code: 404"} {
		if strings.Contains(msg, s) {
			return false
		}
	}
	return true
}

// String describes the generator for status output.
func (g *LLMGenerator) String() string {
	return fmt.Sprintf("openai-compatible(%s)", g.config.Model)
}
