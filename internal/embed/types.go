// Package embed turns passages and queries into vectors.
//
// Two providers exist: a hash-based StaticEmbedder that needs no network or
// model, and an OpenAIEmbedder for any OpenAI-compatible endpoint. Either can
// be wrapped by CachedEmbedder (in-memory LRU) and PersistentCache (badger
// on disk).
package embed

import (
	"context"
	"math"
	"time"
)

const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps a single embedding request.
	MaxBatchSize = 256

	// DefaultBatchSize is the batch size used by the ingestion pipeline.
	DefaultBatchSize = 32

	// DefaultTimeout bounds a single remote embedding request.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retries for remote requests.
	DefaultMaxRetries = 3
)

const (
	// DefaultDimensions is the width of the corpus vectors the engine was
	// built around.
	DefaultDimensions = 768

	// StaticDimensions is the width of the small static embedder.
	StaticDimensions = 256
)

// Embedder generates vector embeddings for text.
//
// Implementations are safe for concurrent use. Returned vectors are always
// Dimensions() wide.
//
// Embedders stack: NewEmbedder returns the provider (static or OpenAI)
// wrapped by a PersistentCache and then a CachedEmbedder, and callers see
// a single Embedder.
type Embedder interface {
	// Embed generates the embedding for a single text. Cache layers may
	// answer a repeated text without consulting ctx.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for texts.
	//
	// Behavior:
	//   - The result has one vector per text, in input order
	//   - An empty slice returns an empty result and no error
	//   - A failure fails the whole batch; no partial result is returned
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding width.
	Dimensions() int

	// ModelName identifies the model. Vectors from different models must not
	// share an index.
	ModelName() string

	// Available reports whether the embedder can serve requests.
	Available(ctx context.Context) bool

	Close() error
}

// normalizeVector returns v scaled to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
