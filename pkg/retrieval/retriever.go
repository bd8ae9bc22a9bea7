package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// Retriever is the hybrid retrieval entry point.
//
// It queries a lexical and a semantic source concurrently, normalizes
// each ranked list and fuses them by weighted sum. Either source may be
// missing or fail at query time; the result then comes from the other
// source and is marked Degraded.
//
// A Retriever holds no per-call state and is safe for concurrent use by
// the CLI and every MCP session.
type Retriever struct {
	lexical  LexicalSearcher
	semantic SemanticSearcher
	embedder QueryEmbedder
	passages PassageResolver
	logger   *slog.Logger
	observe  func(*Result)
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLexical sets the full-text source.
func WithLexical(s LexicalSearcher) Option {
	return func(r *Retriever) {
		r.lexical = s
	}
}

// WithSemantic sets the vector source and the embedder used for queries.
func WithSemantic(s SemanticSearcher, e QueryEmbedder) Option {
	return func(r *Retriever) {
		r.semantic = s
		r.embedder = e
	}
}

// WithPassages attaches passage text to results that lack it.
func WithPassages(p PassageResolver) Option {
	return func(r *Retriever) {
		r.passages = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		r.logger = l
	}
}

// WithObserver registers a callback invoked with every successful result.
func WithObserver(fn func(*Result)) Option {
	return func(r *Retriever) {
		r.observe = fn
	}
}

// New creates a Retriever.
//
//	r, err := retrieval.New(
//		retrieval.WithLexical(retrieval.NewLexicalAdapter(bm25)),
//		retrieval.WithSemantic(retrieval.NewSemanticAdapter(vectors), embedder),
//		retrieval.WithPassages(docs),
//	)
//
// At least one source is required (ErrNoSources), and a semantic source
// needs an embedder.
func New(opts ...Option) (*Retriever, error) {
	r := &Retriever{}
	for _, opt := range opts {
		opt(r)
	}

	if r.lexical == nil && r.semantic == nil {
		return nil, ErrNoSources
	}
	if r.semantic != nil && r.embedder == nil {
		return nil, errors.New("semantic search requires a query embedder")
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r, nil
}

var errNotConfigured = errors.New("not configured")

// sourceOutcome is one source's answer within a call.
type sourceOutcome struct {
	list    RankedList
	err     error
	latency time.Duration
}

// Retrieve returns the fused top-k passages for query.
//
// cfg and k are validated before any source is queried. Both sources run
// concurrently under their own timeouts. A source that times out or fails
// transiently is left out and the result is marked Degraded; dimension,
// configuration and query errors cancel the other source and are returned
// as-is. If both sources fail
// the error matches ErrBothSourcesFailed and wraps both causes. A cancelled
// ctx returns ctx.Err() and no result.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int, cfg Config) (*Result, error) {
	start := time.Now()

	strategy, err := cfg.strategy()
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, invalidQuery("query is empty")
	}
	if k < 1 {
		return nil, invalidQuery("k must be >= 1, got %d", k)
	}
	limit := cfg.OverfetchLimit(k)

	// A fatal error in one source cancels the other; transient failures
	// stay local so the sibling can still answer.
	var lex, sem sourceOutcome
	g, gctx := errgroup.WithContext(ctx)

	if r.lexical != nil {
		g.Go(func() error {
			lex = r.searchLexical(gctx, query, limit, cfg.LexicalTimeout)
			return fatalOnly(lex.err)
		})
	} else {
		lex.err = unavailable(SourceLexical, errNotConfigured)
	}

	if r.semantic != nil {
		g.Go(func() error {
			sem = r.searchSemantic(gctx, query, limit, cfg.SemanticTimeout)
			return fatalOnly(sem.err)
		})
	} else {
		sem.err = unavailable(SourceSemantic, errNotConfigured)
	}

	fatal := g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fatal != nil {
		return nil, fatal
	}
	if lex.err != nil && sem.err != nil {
		return nil, bothFailed(lex.err, sem.err)
	}

	res := &Result{
		Query: query,
		K:     k,
		Stats: Stats{
			Limit:           limit,
			Strategy:        strategy,
			Weights:         cfg.Weights(),
			LexicalLatency:  lex.latency,
			SemanticLatency: sem.latency,
		},
	}

	var lexRanking, semRanking *Ranking
	if lex.err == nil {
		if lexRanking, err = r.rank(lex.list, strategy, cfg.Granularity); err != nil {
			return nil, err
		}
		res.Stats.LexicalCandidates = len(lexRanking.List)
	} else {
		r.degrade(res, SourceLexical, lex.err)
	}
	if sem.err == nil {
		if semRanking, err = r.rank(sem.list, strategy, cfg.Granularity); err != nil {
			return nil, err
		}
		res.Stats.SemanticCandidates = len(semRanking.List)
	} else {
		r.degrade(res, SourceSemantic, sem.err)
	}

	res.Items = Fuse(lexRanking, semRanking, cfg.Weights(), k)

	if err := r.attachText(ctx, res.Items); err != nil {
		return nil, err
	}

	res.Stats.Elapsed = time.Since(start)
	r.logger.Debug("retrieval complete",
		slog.String("query", query),
		slog.Int("k", k),
		slog.Int("limit", limit),
		slog.Int("items", len(res.Items)),
		slog.Int("lexical_candidates", res.Stats.LexicalCandidates),
		slog.Int("semantic_candidates", res.Stats.SemanticCandidates),
		slog.Bool("degraded", res.Degraded),
		slog.Duration("elapsed", res.Stats.Elapsed))

	if r.observe != nil {
		r.observe(res)
	}
	return res, nil
}

func fatalOnly(err error) error {
	if err != nil && isFatal(err) {
		return err
	}
	return nil
}

func (r *Retriever) rank(list RankedList, s Strategy, g Granularity) (*Ranking, error) {
	if g == GranularityDocument {
		list = collapseToDocuments(list.canonical())
	}
	return NewRanking(list, s)
}

func (r *Retriever) degrade(res *Result, src Source, err error) {
	res.Degraded = true
	res.Failures = append(res.Failures, SourceFailure{Source: src, Err: err})

	if errors.Is(err, errNotConfigured) {
		r.logger.Debug("retrieval source not configured", slog.String("source", src.String()))
		return
	}

	attrs := []any{slog.String("source", src.String())}
	for _, a := range amerrors.LogAttrs(err) {
		attrs = append(attrs, a)
	}
	r.logger.Warn("retrieval source failed, continuing with one source", attrs...)
}

func (r *Retriever) searchLexical(ctx context.Context, query string, limit int, d time.Duration) sourceOutcome {
	sctx, cancel := withTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	list, err := await(sctx, func(c context.Context) (RankedList, error) {
		return r.lexical.Search(c, query, limit)
	})
	return finish(ctx, sctx, SourceLexical, list, err, limit, time.Since(start))
}

func (r *Retriever) searchSemantic(ctx context.Context, query string, limit int, d time.Duration) sourceOutcome {
	sctx, cancel := withTimeout(ctx, d)
	defer cancel()

	start := time.Now()
	list, err := await(sctx, func(c context.Context) (RankedList, error) {
		vec, err := r.embedder.Embed(c, query)
		if err != nil {
			if isFatal(err) || c.Err() != nil {
				return nil, err
			}
			return nil, embeddingFailed(err)
		}
		return r.semantic.Search(c, vec, limit)
	})
	return finish(ctx, sctx, SourceSemantic, list, err, limit, time.Since(start))
}

// finish classifies a source error. Deadline expiry of the source context,
// while the caller's context is still live, is a Timeout. Plain errors from
// foreign searchers are treated as unavailability.
func finish(parent, sctx context.Context, src Source, list RankedList, err error, limit int, latency time.Duration) sourceOutcome {
	if err == nil {
		if len(list) > limit {
			list = list[:limit]
		}
		return sourceOutcome{list: list, latency: latency}
	}

	switch {
	case parent.Err() != nil:
		err = parent.Err()
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		err = timeout(src, err)
	case amerrors.GetCode(err) == "":
		err = unavailable(src, err)
	}
	return sourceOutcome{err: err, latency: latency}
}

func (r *Retriever) attachText(ctx context.Context, items []RetrievedItem) error {
	if r.passages == nil {
		return nil
	}

	var missing []string
	for _, it := range items {
		if it.Text == "" {
			missing = append(missing, it.ID)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	texts, err := r.passages.Passages(ctx, missing)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return amerrors.New(amerrors.ErrCodeIndexUnavailable,
			fmt.Sprintf("resolve passage text: %v", err), err)
	}
	for i := range items {
		if items[i].Text == "" {
			items[i].Text = texts[items[i].ID]
		}
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// await runs fn and returns early when ctx is done, abandoning a searcher
// that does not honour cancellation.
func await(ctx context.Context, fn func(context.Context) (RankedList, error)) (RankedList, error) {
	type answer struct {
		list RankedList
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		list, err := fn(ctx)
		ch <- answer{list, err}
	}()

	select {
	case a := <-ch:
		return a.list, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
