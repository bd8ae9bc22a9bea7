package retrieval

import (
	"context"
	"errors"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// SemanticAdapter turns a store.VectorStore into a SemanticSearcher.
//
// Scores are the store's similarities, so higher is better on both
// sides of the fusion. With a circuit breaker attached, repeated
// backend failures make later searches fail fast with IndexUnavailable
// until the breaker half-opens.
type SemanticAdapter struct {
	vectors store.VectorStore
	breaker *amerrors.CircuitBreaker
}

var _ SemanticSearcher = (*SemanticAdapter)(nil)

// SemanticOption configures a SemanticAdapter.
type SemanticOption func(*SemanticAdapter)

// WithCircuitBreaker fails searches fast while cb is open. Dimension
// mismatches and cancellations do not count as failures.
func WithCircuitBreaker(cb *amerrors.CircuitBreaker) SemanticOption {
	return func(a *SemanticAdapter) {
		a.breaker = cb
	}
}

// NewSemanticAdapter wraps vectors.
func NewSemanticAdapter(vectors store.VectorStore, opts ...SemanticOption) *SemanticAdapter {
	a := &SemanticAdapter{vectors: vectors}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dimensions returns the width the index expects.
func (a *SemanticAdapter) Dimensions() int {
	return a.vectors.Dimensions()
}

// Search returns the nearest passages to embedding. A wrong-width
// embedding is DimensionMismatch and never reaches the store.
func (a *SemanticAdapter) Search(ctx context.Context, embedding []float32, limit int) (RankedList, error) {
	if limit < 1 {
		return nil, invalidQuery("limit must be >= 1, got %d", limit)
	}
	if want := a.vectors.Dimensions(); len(embedding) != want {
		return nil, dimensionMismatch(want, len(embedding))
	}

	search := func() ([]*store.VectorResult, error) {
		return a.vectors.Search(ctx, embedding, limit)
	}
	var results []*store.VectorResult
	var err error
	if a.breaker != nil {
		results, err = amerrors.CircuitExecute(a.breaker, search, notBackendFailure)
	} else {
		results, err = search()
	}
	if err != nil {
		var dm store.ErrDimensionMismatch
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.As(err, &dm):
			return nil, dimensionMismatch(dm.Expected, dm.Got)
		default:
			return nil, unavailable(SourceSemantic, err)
		}
	}

	list := make(RankedList, 0, len(results))
	for _, r := range results {
		list = append(list, Hit{ID: r.ID, Score: float64(r.Score)})
	}
	return list.canonical(), nil
}

func notBackendFailure(err error) bool {
	var dm store.ErrDimensionMismatch
	return errors.As(err, &dm) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
