package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/indexer"
)

const (
	// DefaultPoolSize is the number of batches indexed concurrently.
	DefaultPoolSize = 4

	// DefaultBatchSize is the number of chunks per index batch.
	DefaultBatchSize = 32
)

// Pipeline writes documents into the document store and the indexes.
type Pipeline struct {
	docs     *store.DocumentStore
	index    indexer.Indexer
	chunker  chunk.Chunker
	embedder embed.Embedder
	renderer ui.Renderer
	logger   *slog.Logger

	poolSize  int
	batchSize int

	// runs are serialized; the pool is shared between them.
	mu   sync.Mutex
	pool *ants.Pool
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many batches are indexed at once.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size <= 0 {
			return fmt.Errorf("pool size must be positive, got %d", size)
		}
		p.poolSize = size
		return nil
	}
}

// WithBatchSize sets the number of chunks per batch.
func WithBatchSize(size int) Option {
	return func(p *Pipeline) error {
		if size < embed.MinBatchSize || size > embed.MaxBatchSize {
			return fmt.Errorf("batch size must be between %d and %d, got %d",
				embed.MinBatchSize, embed.MaxBatchSize, size)
		}
		p.batchSize = size
		return nil
	}
}

// WithEmbedder records which embedder fills the vector index. Runs then
// check its width against the one stored by earlier runs and record it
// afterwards. Without it the corpus is treated as lexical only.
func WithEmbedder(e embed.Embedder) Option {
	return func(p *Pipeline) error {
		p.embedder = e
		return nil
	}
}

// WithRenderer reports progress to r.
func WithRenderer(r ui.Renderer) Option {
	return func(p *Pipeline) error {
		p.renderer = r
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		p.logger = logger
		return nil
	}
}

// NewPipeline creates a pipeline. Close releases its worker pool.
func NewPipeline(docs *store.DocumentStore, index indexer.Indexer, chunker chunk.Chunker, opts ...Option) (*Pipeline, error) {
	if docs == nil || index == nil || chunker == nil {
		return nil, errors.New("document store, indexer and chunker are required")
	}
	p := &Pipeline{
		docs:      docs,
		index:     index,
		chunker:   chunker,
		logger:    slog.Default(),
		poolSize:  DefaultPoolSize,
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	p.pool = pool
	p.logger = p.logger.With(slog.String("component", "ingest"))
	return p, nil
}

// Result summarizes a run.
type Result struct {
	Documents int
	Chunks    int
	// Removed counts chunks that disappeared from re-ingested documents.
	Removed  int
	Duration time.Duration
	Stages   ui.StageTimings
}

// Run ingests docs. Documents already in the store are replaced together
// with their chunks. The indexes are flushed before Run returns.
func (p *Pipeline) Run(ctx context.Context, docs []*store.Document) (*Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := &Result{Documents: len(docs)}

	if err := p.checkEmbedding(ctx); err != nil {
		return nil, err
	}

	chunkStart := time.Now()
	var pending []*store.Chunk
	var stale []string
	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks, removed, err := p.prepare(ctx, doc)
		if err != nil {
			return nil, err
		}
		pending = append(pending, chunks...)
		stale = append(stale, removed...)
		p.progress(ui.ProgressEvent{Stage: ui.StageChunking, Current: i + 1, Total: len(docs), Document: doc.Title})
	}
	res.Stages.Chunk = time.Since(chunkStart)
	res.Chunks = len(pending)
	res.Removed = len(stale)

	indexStart := time.Now()
	if err := p.index.Delete(ctx, stale); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexFailed, "failed to remove stale chunks", err)
	}
	if err := p.indexBatches(ctx, pending); err != nil {
		return nil, err
	}
	res.Stages.Embed = time.Since(indexStart)

	flushStart := time.Now()
	if p.embedder != nil && len(pending) > 0 {
		if err := p.docs.SetEmbeddingInfo(ctx, p.embedder.ModelName(), p.embedder.Dimensions()); err != nil {
			return nil, fmt.Errorf("failed to record embedding model: %w", err)
		}
	}
	if err := p.index.Flush(); err != nil {
		return nil, amerrors.New(amerrors.ErrCodeIndexFailed, "failed to save indexes", err)
	}
	res.Stages.Index = time.Since(flushStart)
	res.Duration = time.Since(start)

	p.logger.Info("ingestion complete",
		slog.Int("documents", res.Documents),
		slog.Int("chunks", res.Chunks),
		slog.Int("removed", res.Removed),
		slog.Duration("elapsed", res.Duration))
	return res, nil
}

// Remove deletes documents and their chunks from every store.
func (p *Pipeline) Remove(ctx context.Context, documentIDs []string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var removed []string
	for _, id := range documentIDs {
		ids, err := p.docs.DeleteDocument(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return 0, fmt.Errorf("failed to delete document %s: %w", id, err)
		}
		removed = append(removed, ids...)
	}
	if err := p.index.Delete(ctx, removed); err != nil {
		return 0, amerrors.New(amerrors.ErrCodeIndexFailed, "failed to remove chunks", err)
	}
	if err := p.index.Flush(); err != nil {
		return 0, amerrors.New(amerrors.ErrCodeIndexFailed, "failed to save indexes", err)
	}
	return len(removed), nil
}

// Close releases the worker pool. The stores belong to the caller.
func (p *Pipeline) Close() {
	p.pool.Release()
}

// checkEmbedding refuses to mix vectors of different widths in one index.
func (p *Pipeline) checkEmbedding(ctx context.Context) error {
	if p.embedder == nil {
		return nil
	}
	model, dims, err := p.docs.EmbeddingInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to read embedding info: %w", err)
	}
	if dims != 0 && dims != p.embedder.Dimensions() {
		return amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
			"index was built with %s (%d dimensions) but the embedder %s produces %d",
			model, dims, p.embedder.ModelName(), p.embedder.Dimensions()).
			WithSuggestion("rebuild the index with 'amanrag index --rebuild'")
	}
	if model != "" && model != p.embedder.ModelName() {
		p.logger.Warn("embedding model changed since last run",
			slog.String("stored", model),
			slog.String("current", p.embedder.ModelName()))
	}
	return nil
}

// prepare chunks doc, saves it and returns the new chunks together with
// the ids of chunks it no longer has.
func (p *Pipeline) prepare(ctx context.Context, doc *store.Document) ([]*store.Chunk, []string, error) {
	if doc == nil || doc.ID == "" {
		return nil, nil, amerrors.ValidationError("document has no id", nil)
	}

	parts, err := p.chunker.Chunk(ctx, &chunk.Input{DocumentID: doc.ID, Title: doc.Title, Content: doc.Content})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to chunk %s: %w", doc.ID, err)
	}
	chunks := make([]*store.Chunk, len(parts))
	for i, c := range parts {
		chunks[i] = &store.Chunk{ID: c.ID, DocumentID: doc.ID, Ordinal: c.Ordinal, Content: c.Content}
	}
	// Title and synopsis are searchable through the first chunk.
	if len(chunks) > 0 {
		chunks[0].Heading = heading(doc)
	}

	if err := p.docs.SaveDocument(ctx, doc); err != nil {
		return nil, nil, err
	}
	removed, err := p.docs.ReplaceChunks(ctx, doc.ID, chunks)
	if err != nil {
		return nil, nil, err
	}
	if len(parts) == 0 {
		p.warn(doc.Title, fmt.Errorf("document %s has no text", doc.ID))
	}
	return chunks, removed, nil
}

func heading(doc *store.Document) string {
	var parts []string
	for _, s := range []string{doc.Title, doc.Synopsis} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// indexBatches submits batches to the pool and waits for all of them. The
// first failure cancels the remaining batches.
func (p *Pipeline) indexBatches(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(chunks)
	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for start := 0; start < total; start += p.batchSize {
		batch := chunks[start:min(start+p.batchSize, total)]
		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := p.index.Index(ctx, batch); err != nil {
				fail(err)
				return
			}
			n := done.Add(int64(len(batch)))
			p.progress(ui.ProgressEvent{Stage: ui.StageEmbedding, Current: int(n), Total: total})
		})
		if err != nil {
			wg.Done()
			fail(fmt.Errorf("failed to submit batch: %w", err))
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		if errors.Is(firstErr, context.Canceled) || errors.Is(firstErr, context.DeadlineExceeded) {
			return firstErr
		}
		if amerrors.GetCode(firstErr) != "" {
			return firstErr
		}
		return amerrors.New(amerrors.ErrCodeIndexFailed, "failed to index chunks", firstErr)
	}
	return ctx.Err()
}

func (p *Pipeline) progress(ev ui.ProgressEvent) {
	if p.renderer != nil {
		p.renderer.UpdateProgress(ev)
	}
}

func (p *Pipeline) warn(document string, err error) {
	p.logger.Warn("ingestion warning", slog.String("document", document), slog.String("error", err.Error()))
	if p.renderer != nil {
		p.renderer.AddError(ui.ErrorEvent{Document: document, Err: err, IsWarn: true})
	}
}
