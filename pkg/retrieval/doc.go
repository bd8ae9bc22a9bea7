// Package retrieval implements hybrid passage retrieval: a lexical ranking
// and a semantic ranking are normalized onto [0,1], fused by weighted sum,
// and returned as one deterministic top-K list with per-source provenance.
//
// # Components
//
//   - [LexicalSearcher] / [LexicalAdapter]: ranked full-text search over a
//     store.BM25Index.
//   - [SemanticSearcher] / [SemanticAdapter]: nearest-neighbour search over a
//     store.VectorStore. Scores are similarities (higher is better).
//   - [Normalize]: min-max or reciprocal-rank normalization.
//   - [Fuse]: weighted fusion with deterministic tie-breaking.
//   - [Retriever]: runs both sources concurrently with per-source timeouts
//     and degrades to single-source fusion when one source fails.
//
// # Usage
//
//	r, err := retrieval.New(
//	    retrieval.WithLexical(retrieval.NewLexicalAdapter(bm25)),
//	    retrieval.WithSemantic(retrieval.NewSemanticAdapter(vectors), embedder),
//	    retrieval.WithPassages(docs),
//	)
//	res, err := r.Retrieve(ctx, "rate cuts and inflation", 5, retrieval.DefaultConfig())
//	if res.Degraded {
//	    // one source failed; res.Failures says which and why
//	}
//
// # Ids
//
// Both indexes are expected to share an id space. Ingestion writes the same
// chunk ids ("<documentID>#<n>", see [ChunkID]) to both indexes. With
// [GranularityDocument] the retriever collapses both rankings onto parent
// document ids before normalization instead.
//
// # Errors
//
// Failures are reported as *errors.AmanError values that match the
// sentinels in this package with errors.Is: [ErrIndexUnavailable],
// [ErrInvalidQuery], [ErrDimensionMismatch], [ErrConfiguration],
// [ErrTimeout] and [ErrBothSourcesFailed].
//
// # Thread Safety
//
// A Retriever holds no per-call state and is safe for concurrent use as long
// as the wrapped searchers are.
package retrieval
