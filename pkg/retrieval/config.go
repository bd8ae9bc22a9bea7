package retrieval

import (
	"math"
	"time"
)

// Granularity selects the id space results are fused in.
type Granularity string

const (
	// GranularityChunk fuses on the ids returned by the indexes.
	GranularityChunk Granularity = "chunk"
	// GranularityDocument collapses chunk ids onto their parent document.
	GranularityDocument Granularity = "document"
)

// Default configuration values.
const (
	DefaultLexicalWeight   = 0.5
	DefaultSemanticWeight  = 0.5
	DefaultOverfetchFactor = 4.0
	DefaultLexicalTimeout  = 2 * time.Second
	DefaultSemanticTimeout = 5 * time.Second

	// maxOverfetchLimit bounds the per-source candidate count.
	maxOverfetchLimit = 10_000
)

// Weights are the per-source fusion weights.
type Weights struct {
	Lexical  float64 `json:"lexical" yaml:"lexical"`
	Semantic float64 `json:"semantic" yaml:"semantic"`
}

// Config controls a single Retrieve call.
type Config struct {
	// LexicalWeight and SemanticWeight must be finite and >= 0, and at least
	// one must be positive. They need not sum to 1.
	LexicalWeight  float64
	SemanticWeight float64

	// Normalization applies to both sources. LexicalNormalization and
	// SemanticNormalization override it per source, but the effective
	// strategies must match.
	Normalization         Strategy
	LexicalNormalization  Strategy
	SemanticNormalization Strategy

	// OverfetchFactor scales k into the per-source limit; must be >= 1.
	OverfetchFactor float64

	// LexicalTimeout and SemanticTimeout bound each source call. Zero means
	// the source is only bounded by the caller's context. The semantic
	// timeout covers query embedding as well as the index search.
	LexicalTimeout  time.Duration
	SemanticTimeout time.Duration

	// Granularity defaults to GranularityChunk when empty.
	Granularity Granularity
}

// DefaultConfig returns equal weights, min-max normalization and a 4x
// over-fetch.
func DefaultConfig() Config {
	return Config{
		LexicalWeight:   DefaultLexicalWeight,
		SemanticWeight:  DefaultSemanticWeight,
		Normalization:   MinMax,
		OverfetchFactor: DefaultOverfetchFactor,
		LexicalTimeout:  DefaultLexicalTimeout,
		SemanticTimeout: DefaultSemanticTimeout,
		Granularity:     GranularityChunk,
	}
}

// Weights returns the configured weights.
func (c Config) Weights() Weights {
	return Weights{Lexical: c.LexicalWeight, Semantic: c.SemanticWeight}
}

// Validate checks c without touching any backend. It returns an error
// matching ErrConfiguration.
func (c Config) Validate() error {
	_, err := c.strategy()
	return err
}

// strategy validates c and returns the effective normalization strategy.
func (c Config) strategy() (Strategy, error) {
	weights := []struct {
		name string
		w    float64
	}{{"lexical", c.LexicalWeight}, {"semantic", c.SemanticWeight}}
	for _, sw := range weights {
		if math.IsNaN(sw.w) || math.IsInf(sw.w, 0) {
			return "", configError("%s weight must be a finite number", sw.name)
		}
		if sw.w < 0 {
			return "", configError("%s weight must be >= 0, got %g", sw.name, sw.w)
		}
	}
	if c.LexicalWeight == 0 && c.SemanticWeight == 0 {
		return "", configError("at least one of lexical or semantic weight must be positive")
	}
	if math.IsNaN(c.OverfetchFactor) || c.OverfetchFactor < 1 {
		return "", configError("overfetch factor must be >= 1, got %g", c.OverfetchFactor)
	}
	if c.LexicalTimeout < 0 || c.SemanticTimeout < 0 {
		return "", configError("source timeouts must not be negative")
	}
	switch c.Granularity {
	case "", GranularityChunk, GranularityDocument:
	default:
		return "", configError("unknown granularity %q (use chunk or document)", string(c.Granularity))
	}
	return resolveStrategy(c.Normalization, c.LexicalNormalization, c.SemanticNormalization)
}

// OverfetchLimit returns max(k, ceil(k * OverfetchFactor)), capped at a
// fixed maximum.
func (c Config) OverfetchLimit(k int) int {
	factor := c.OverfetchFactor
	if factor < 1 || math.IsNaN(factor) {
		factor = 1
	}
	l := math.Ceil(float64(k) * factor)
	if l > maxOverfetchLimit {
		l = maxOverfetchLimit
	}
	if int(l) < k {
		return k
	}
	return int(l)
}
