package retrieval

import (
	"errors"
	"fmt"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Sentinels for errors.Is. Errors returned by this package are fresh
// AmanErrors that match these by code; never mutate the sentinels.
var (
	// ErrIndexUnavailable means a backing index could not be reached. Retryable.
	ErrIndexUnavailable = amerrors.New(amerrors.ErrCodeIndexUnavailable, "index unavailable", nil)
	// ErrInvalidQuery means the query or limit was rejected.
	ErrInvalidQuery = amerrors.New(amerrors.ErrCodeInvalidQuery, "invalid query", nil)
	// ErrDimensionMismatch means the query embedding does not fit the index.
	ErrDimensionMismatch = amerrors.New(amerrors.ErrCodeDimensionMismatch, "dimension mismatch", nil)
	// ErrConfiguration means the retrieval configuration is invalid.
	ErrConfiguration = amerrors.New(amerrors.ErrCodeConfigInvalid, "invalid retrieval configuration", nil)
	// ErrTimeout means one source exceeded its per-call timeout.
	ErrTimeout = amerrors.New(amerrors.ErrCodeNetworkTimeout, "source timed out", nil)
	// ErrBothSourcesFailed means neither source produced a ranking.
	ErrBothSourcesFailed = amerrors.New(amerrors.ErrCodeBothSourcesFailed, "both retrieval sources failed", nil)
	// ErrEmbedding means the query could not be embedded.
	ErrEmbedding = amerrors.New(amerrors.ErrCodeEmbeddingFailed, "query embedding failed", nil)
)

// ErrNoSources is returned by New when neither source is configured.
var ErrNoSources = errors.New("at least one of lexical or semantic search is required")

func configError(format string, args ...any) error {
	return amerrors.Newf(amerrors.ErrCodeConfigInvalid, format, args...).
		WithSuggestion("check the retrieval section of the configuration")
}

func invalidQuery(format string, args ...any) error {
	return amerrors.Newf(amerrors.ErrCodeInvalidQuery, format, args...)
}

func unavailable(source Source, cause error) error {
	return amerrors.New(amerrors.ErrCodeIndexUnavailable,
		fmt.Sprintf("%s index unavailable: %v", source, cause), cause).
		WithDetail("source", source.String())
}

func dimensionMismatch(expected, got int) error {
	return amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
		"embedding has %d dimensions, index expects %d", got, expected).
		WithDetail("expected", fmt.Sprint(expected)).
		WithDetail("got", fmt.Sprint(got)).
		WithSuggestion("re-index with the configured embedder or switch back to the model the index was built with")
}

func timeout(source Source, cause error) error {
	return amerrors.New(amerrors.ErrCodeNetworkTimeout,
		fmt.Sprintf("%s search timed out", source), cause).
		WithDetail("source", source.String())
}

func embeddingFailed(cause error) error {
	return amerrors.New(amerrors.ErrCodeEmbeddingFailed,
		fmt.Sprintf("query embedding failed: %v", cause), cause)
}

func bothFailed(lexical, semantic error) error {
	return amerrors.New(amerrors.ErrCodeBothSourcesFailed,
		fmt.Sprintf("both retrieval sources failed: lexical: %v; semantic: %v", lexical, semantic),
		errors.Join(lexical, semantic)).
		WithSuggestion("check that both indexes exist and are reachable, then retry")
}

// isFatal reports errors that must never be absorbed into degraded fusion.
func isFatal(err error) bool {
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrConfiguration) ||
		errors.Is(err, ErrInvalidQuery)
}
