package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// embeddingServer is a minimal OpenAI-compatible /embeddings endpoint that
// answers with static vectors of width dims.
type embeddingServer struct {
	*httptest.Server
	dims     int
	requests atomic.Int64
	// failFirst makes the first n requests fail with status.
	failFirst int64
	status    int
}

func newEmbeddingServer(t *testing.T, dims int) *embeddingServer {
	t.Helper()
	s := &embeddingServer{dims: dims, status: http.StatusInternalServerError}
	static := NewStaticEmbedderWithDimensions(dims)
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := s.requests.Add(1)
		if n <= s.failFirst {
			w.WriteHeader(s.status)
			_, _ = w.Write([]byte(`{"error":{"message":"unavailable"}}`))
			return
		}
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		type datum struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		data := make([]datum, len(req.Input))
		for i, text := range req.Input {
			vec, _ := static.Embed(r.Context(), text)
			data[i] = datum{Object: "embedding", Embedding: vec, Index: i}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   data,
			"model":  req.Model,
			"usage":  map[string]int{"prompt_tokens": 1, "total_tokens": 1},
		})
	}))
	t.Cleanup(s.Close)
	return s
}

func fastRetry() amerrors.RetryConfig {
	return amerrors.RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}
}

func TestOpenAIEmbedder_DetectsWidth(t *testing.T) {
	// Given: an endpoint serving 12-wide vectors
	srv := newEmbeddingServer(t, 12)

	// When: the embedder is created without a width
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Model: "test-embed", Retry: fastRetry(), Logger: quietLogger(),
	})

	// Then: the width is learned from the sample request
	require.NoError(t, err)
	assert.Equal(t, 12, e.Dimensions())
	assert.Equal(t, "test-embed", e.ModelName())
	assert.True(t, e.Available(context.Background()))
}

func TestOpenAIEmbedder_EmbedBatch(t *testing.T) {
	srv := newEmbeddingServer(t, 8)
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Dimensions: 8, Retry: fastRetry(), Logger: quietLogger(),
	})
	require.NoError(t, err)

	vecs, err := e.EmbedBatch(context.Background(), []string{"rates", "oil"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Len(t, vecs[0], 8)
	assert.NotEqual(t, vecs[0], vecs[1])
	// No sample request when the width is configured.
	assert.Equal(t, int64(1), srv.requests.Load())
}

func TestOpenAIEmbedder_RetriesServerErrors(t *testing.T) {
	// Given: an endpoint that fails once with 500
	srv := newEmbeddingServer(t, 4)
	srv.failFirst = 1
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Dimensions: 4, Retry: fastRetry(), Logger: quietLogger(),
	})
	require.NoError(t, err)

	// When: embedding
	_, err = e.Embed(context.Background(), "q")

	// Then: the retry succeeds
	require.NoError(t, err)
	assert.Equal(t, int64(2), srv.requests.Load())
}

func TestOpenAIEmbedder_DoesNotRetryAuthErrors(t *testing.T) {
	srv := newEmbeddingServer(t, 4)
	srv.failFirst = 100
	srv.status = http.StatusUnauthorized
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Dimensions: 4, Retry: fastRetry(), Logger: quietLogger(),
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, amerrors.ErrCodeEmbeddingFailed, amerrors.GetCode(err))
	assert.Equal(t, int64(1), srv.requests.Load())
}

func TestOpenAIEmbedder_WidthMismatch(t *testing.T) {
	srv := newEmbeddingServer(t, 6)
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Dimensions: 768, Retry: fastRetry(), Logger: quietLogger(),
	})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "q")
	assert.Equal(t, amerrors.ErrCodeDimensionMismatch, amerrors.GetCode(err))
}

func TestOpenAIEmbedder_BreakerOpensAfterFailures(t *testing.T) {
	// Given: an endpoint that always fails and a breaker tripping at 1
	srv := newEmbeddingServer(t, 4)
	srv.failFirst = 100
	cb := amerrors.NewCircuitBreaker("embeddings", amerrors.WithMaxFailures(1), amerrors.WithResetTimeout(time.Hour))
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{
		BaseURL: srv.URL, Dimensions: 4, Breaker: cb,
		Retry:  amerrors.RetryConfig{MaxRetries: 0, InitialDelay: time.Millisecond},
		Logger: quietLogger(),
	})
	require.NoError(t, err)

	// When: embedding twice
	_, err = e.Embed(context.Background(), "q")
	require.Error(t, err)
	_, err = e.Embed(context.Background(), "q")
	require.Error(t, err)

	// Then: the second call never reached the endpoint
	assert.ErrorIs(t, err, amerrors.ErrCircuitOpen)
	assert.Equal(t, int64(1), srv.requests.Load())
	assert.False(t, e.Available(context.Background()))
}

func TestOpenAIEmbedder_Closed(t *testing.T) {
	srv := newEmbeddingServer(t, 4)
	e, err := NewOpenAIEmbedder(context.Background(), OpenAIConfig{BaseURL: srv.URL, Dimensions: 4, Logger: quietLogger()})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	_, err = e.Embed(context.Background(), "q")
	assert.Error(t, err)
}
