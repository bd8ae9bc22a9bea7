package retrieval

import (
	"context"
	"errors"
	"fmt"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// LexicalAdapter turns a store.BM25Index into a LexicalSearcher.
//
// Scores are raw BM25 and ids are chunk ids. Matched terms are carried so
// results can explain why they ranked. The adapter holds no state of its
// own and is as safe for concurrent use as the index it wraps.
type LexicalAdapter struct {
	index store.BM25Index
}

var _ LexicalSearcher = (*LexicalAdapter)(nil)

// NewLexicalAdapter wraps index.
func NewLexicalAdapter(index store.BM25Index) *LexicalAdapter {
	return &LexicalAdapter{index: index}
}

// Search runs query against the index. Rejected syntax becomes
// InvalidQuery; any other backend failure becomes IndexUnavailable.
func (a *LexicalAdapter) Search(ctx context.Context, query string, limit int) (RankedList, error) {
	if strings.TrimSpace(query) == "" {
		return nil, invalidQuery("query is empty")
	}
	if limit < 1 {
		return nil, invalidQuery("limit must be >= 1, got %d", limit)
	}

	results, err := a.index.Search(ctx, query, limit)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case errors.Is(err, store.ErrInvalidQuery):
			return nil, amerrors.New(amerrors.ErrCodeInvalidQuery,
				fmt.Sprintf("lexical index rejected query: %v", err), err).
				WithSuggestion("use plain words, or switch lexical.query_syntax to plain")
		default:
			return nil, unavailable(SourceLexical, err)
		}
	}

	list := make(RankedList, 0, len(results))
	for _, r := range results {
		list = append(list, Hit{ID: r.DocID, Score: r.Score, Terms: r.MatchedTerms})
	}
	return list.canonical(), nil
}
