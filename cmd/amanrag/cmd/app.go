package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Aman-CERP/amanrag/internal/answer"
	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/config"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ingest"
	"github.com/Aman-CERP/amanrag/internal/store"
	"github.com/Aman-CERP/amanrag/internal/telemetry"
	"github.com/Aman-CERP/amanrag/internal/ui"
	"github.com/Aman-CERP/amanrag/pkg/indexer"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// Semantic backends. With backendNone the corpus is lexical only and
// every retrieval is degraded.
const (
	backendHNSW     = "hnsw"
	backendPgVector = "pgvector"
	backendNone     = "none"
)

// telemetryFile holds query metrics next to the indexes.
const telemetryFile = "telemetry.db"

// appOptions selects what openApp wires.
type appOptions struct {
	// metrics records every retrieval in the telemetry store.
	metrics bool
	// requireIndex fails when the data directory has never been indexed.
	requireIndex bool
	// readOnly never writes the vector index back and skips the disk
	// embedding cache, whose directory lock belongs to the writer.
	readOnly bool
}

// app owns every component built from one configuration. Close releases
// them in reverse order of creation.
type app struct {
	cfg       *config.Config
	retrieval retrieval.Config
	logger    *slog.Logger

	docs      *store.DocumentStore
	lexical   store.BM25Index
	vectors   store.VectorStore
	embedder  embed.Embedder
	breaker   *amerrors.CircuitBreaker
	retriever *retrieval.Retriever
	metrics   *telemetry.QueryMetrics

	closers []func() error
}

// openApp wires the stores, the embedder chain and the retriever. On
// failure everything opened so far is closed again.
func openApp(ctx context.Context, cfg *config.Config, opts appOptions) (*app, error) {
	rc, err := cfg.RetrievalOptions()
	if err != nil {
		return nil, err
	}
	if opts.requireIndex && !indexExists(cfg) {
		return nil, amerrors.New(amerrors.ErrCodeIndexUnavailable,
			fmt.Sprintf("no index found in %s", cfg.DataDir), nil).
			WithSuggestion("run 'amanrag index <path>' first")
	}

	a := &app{cfg: cfg, retrieval: rc, logger: slog.Default()}
	if err := a.open(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) open(ctx context.Context, opts appOptions) error {
	cfg := a.cfg
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	docs, err := store.OpenDocumentStore(cfg.DocumentsPath(), store.WithDriver(cfg.Documents.Driver))
	if err != nil {
		return err
	}
	a.docs = docs
	a.closers = append(a.closers, docs.Close)

	bm25 := store.DefaultBM25Config()
	bm25.Syntax = store.QuerySyntax(cfg.Lexical.Syntax)
	lexical, err := store.NewBM25Index(cfg.DataDir, store.BM25Backend(strings.ToLower(cfg.Lexical.Backend)), bm25)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to open lexical index", err)
	}
	a.lexical = lexical
	a.closers = append(a.closers, lexical.Close)

	retrieverOpts := []retrieval.Option{
		retrieval.WithLexical(retrieval.NewLexicalAdapter(a.lexical)),
		retrieval.WithPassages(a.docs),
		retrieval.WithLogger(a.logger),
	}

	if semanticBackend(cfg) != backendNone {
		if err := a.openSemantic(ctx, opts.readOnly); err != nil {
			return err
		}
		a.breaker = amerrors.NewCircuitBreaker("semantic")
		retrieverOpts = append(retrieverOpts, retrieval.WithSemantic(
			retrieval.NewSemanticAdapter(a.vectors, retrieval.WithCircuitBreaker(a.breaker)),
			a.embedder))
	}

	if opts.metrics {
		ts, err := telemetry.OpenSQLiteStore(filepath.Join(cfg.DataDir, telemetryFile), cfg.Documents.Driver)
		if err != nil {
			return err
		}
		a.metrics = telemetry.New(ts, telemetry.DefaultConfig(), a.logger)
		a.closers = append(a.closers, a.metrics.Close)
		retrieverOpts = append(retrieverOpts, retrieval.WithObserver(a.metrics.Observe))
	}

	r, err := retrieval.New(retrieverOpts...)
	if err != nil {
		return err
	}
	a.retriever = r
	return nil
}

// openSemantic builds the embedder chain and opens the vector store at the
// embedder's width.
func (a *app) openSemantic(ctx context.Context, readOnly bool) error {
	cfg := a.cfg
	provider, err := embed.ParseProvider(cfg.Embeddings.Provider)
	if err != nil {
		return err
	}
	embedOpts := embed.Options{
		Provider:   provider,
		Model:      cfg.Embeddings.Model,
		BaseURL:    cfg.Embeddings.BaseURL,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
		Logger:     a.logger,
	}
	if cfg.Embeddings.PersistentCache && !readOnly {
		embedOpts.PersistentDir = cfg.EmbeddingCacheDir()
	}
	embedder, err := embed.NewEmbedder(ctx, embedOpts)
	if err != nil {
		return err
	}
	a.embedder = embedder
	a.closers = append(a.closers, embedder.Close)

	if err := a.checkDimensions(ctx); err != nil {
		return err
	}

	vectors, err := openVectorStore(ctx, cfg, embedder.Dimensions(), readOnly)
	if err != nil {
		return err
	}
	a.vectors = vectors
	a.closers = append(a.closers, vectors.Close)
	return nil
}

func semanticBackend(cfg *config.Config) string {
	b := strings.ToLower(cfg.Semantic.Backend)
	if b == "" {
		return backendHNSW
	}
	return b
}

// checkDimensions refuses an embedder whose width differs from the one the
// index was built with.
func (a *app) checkDimensions(ctx context.Context) error {
	model, dims, err := a.docs.EmbeddingInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to read embedding info: %w", err)
	}
	if dims != 0 && dims != a.embedder.Dimensions() {
		return amerrors.Newf(amerrors.ErrCodeDimensionMismatch,
			"index was built with %s (%d dimensions) but the embedder %s produces %d",
			model, dims, a.embedder.ModelName(), a.embedder.Dimensions()).
			WithSuggestion("rebuild the index with 'amanrag index --rebuild <path>'")
	}
	return nil
}

func openVectorStore(ctx context.Context, cfg *config.Config, dims int, readOnly bool) (store.VectorStore, error) {
	switch semanticBackend(cfg) {
	case backendHNSW:
		vc := store.DefaultVectorStoreConfig(dims)
		vc.Path = cfg.VectorPath()
		vc.ReadOnly = readOnly
		if cfg.Semantic.M > 0 {
			vc.M = cfg.Semantic.M
		}
		if cfg.Semantic.EfSearch > 0 {
			vc.EfSearch = cfg.Semantic.EfSearch
		}
		s, err := store.NewHNSWStore(vc)
		if err != nil {
			return nil, amerrors.New(amerrors.ErrCodeCorruptIndex, "failed to open vector index", err)
		}
		return s, nil
	case backendPgVector:
		s, err := store.NewPgVectorStore(ctx, store.PgVectorConfig{
			DSN:        cfg.Semantic.DSN,
			Table:      cfg.Semantic.Table,
			Dimensions: dims,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown semantic backend %q", cfg.Semantic.Backend), nil)
	}
}

// newPipeline builds the ingestion pipeline over the app's stores. The
// caller closes it.
func (a *app) newPipeline(renderer ui.Renderer) (*ingest.Pipeline, error) {
	lex, err := indexer.NewLexicalIndexer(indexer.WithStore(a.lexical))
	if err != nil {
		return nil, err
	}
	hybridOpts := []indexer.HybridOption{indexer.WithLexical(lex)}
	if a.embedder != nil {
		vec, err := indexer.NewVectorIndexer(indexer.WithEmbedder(a.embedder), indexer.WithVectorStore(a.vectors))
		if err != nil {
			return nil, err
		}
		hybridOpts = append(hybridOpts, indexer.WithVector(vec))
	}
	hybrid, err := indexer.NewHybridIndexer(hybridOpts...)
	if err != nil {
		return nil, err
	}
	chunker, err := chunk.NewTextChunker(chunk.Options{
		ChunkWords:   a.cfg.Ingest.ChunkWords,
		OverlapWords: a.cfg.Ingest.OverlapWords,
	})
	if err != nil {
		return nil, amerrors.ConfigError("invalid chunking settings", err)
	}

	opts := []ingest.Option{
		ingest.WithLogger(a.logger),
		ingest.WithPoolSize(a.cfg.Ingest.Workers),
		ingest.WithBatchSize(a.cfg.Ingest.BatchSize),
	}
	if a.embedder != nil {
		opts = append(opts, ingest.WithEmbedder(a.embedder))
	}
	if renderer != nil {
		opts = append(opts, ingest.WithRenderer(renderer))
	}
	return ingest.NewPipeline(a.docs, hybrid, chunker, opts...)
}

// newAnswerer builds the answer generator on the app's retriever.
func (a *app) newAnswerer() (*answer.Answerer, error) {
	gen, err := answer.NewLLMGenerator(answer.LLMConfig{
		BaseURL: a.cfg.Answer.BaseURL,
		APIKey:  a.cfg.Embeddings.APIKey,
		Model:   a.cfg.Answer.Model,
		Logger:  a.logger,
	})
	if err != nil {
		return nil, err
	}
	opts := answer.Options{
		K:               a.cfg.Answer.K,
		MaxContextWords: a.cfg.Answer.MaxContextWords,
		Domain:          a.cfg.Answer.Domain,
		Retrieval:       a.retrieval,
		Logger:          a.logger,
	}
	if a.docs != nil {
		opts.Documents = a.docs
	}
	return answer.NewAnswerer(a.retriever, gen, opts)
}

// Close releases every component. It is safe to call more than once.
func (a *app) Close() error {
	if a == nil {
		return nil
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// indexExists reports whether the document store has been created.
func indexExists(cfg *config.Config) bool {
	_, err := os.Stat(cfg.DocumentsPath())
	return err == nil
}

// resetIndex removes the local index files so the next open starts empty.
// Vectors in an external pgvector table are deleted by chunk id first,
// since they outlive the local files.
func resetIndex(ctx context.Context, cfg *config.Config) error {
	if !indexExists(cfg) {
		return nil
	}
	if semanticBackend(cfg) == backendPgVector {
		if err := clearPgVectors(ctx, cfg); err != nil {
			return err
		}
	}

	paths := []string{
		cfg.DocumentsPath(),
		store.LexicalIndexPath(cfg.DataDir, store.BM25BackendSQLite),
		store.LexicalIndexPath(cfg.DataDir, store.BM25BackendBleve),
		cfg.VectorPath(),
		cfg.VectorPath() + ".meta",
	}
	for _, p := range paths {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.RemoveAll(p + suffix); err != nil {
				return fmt.Errorf("failed to remove %s: %w", p+suffix, err)
			}
		}
	}
	return nil
}

func clearPgVectors(ctx context.Context, cfg *config.Config) error {
	docs, err := store.OpenDocumentStore(cfg.DocumentsPath(), store.WithDriver(cfg.Documents.Driver))
	if err != nil {
		return err
	}
	defer func() { _ = docs.Close() }()

	_, dims, err := docs.EmbeddingInfo(ctx)
	if err != nil || dims == 0 {
		return err
	}
	ids, err := docs.DocumentIDs(ctx)
	if err != nil {
		return err
	}
	var chunkIDs []string
	for _, id := range ids {
		chunks, err := docs.Chunks(ctx, id)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			chunkIDs = append(chunkIDs, c.ID)
		}
	}

	vectors, err := openVectorStore(ctx, cfg, dims, false)
	if err != nil {
		return err
	}
	defer func() { _ = vectors.Close() }()
	return vectors.Delete(ctx, chunkIDs)
}

// collectStatus reports on the data directory without creating it.
func collectStatus(ctx context.Context, cfg *config.Config, a *app) (ui.StatusInfo, error) {
	info := ui.StatusInfo{
		DataDir:          cfg.DataDir,
		LexicalBackend:   cfg.Lexical.Backend,
		SemanticBackend:  cfg.Semantic.Backend,
		EmbedderProvider: cfg.Embeddings.Provider,
		EmbedderModel:    cfg.Embeddings.Model,
		EmbedderStatus:   "offline",
	}
	info.DocumentsSize = pathSize(cfg.DocumentsPath())
	info.LexicalSize = pathSize(store.LexicalIndexPath(cfg.DataDir, store.BM25Backend(cfg.Lexical.Backend)))
	info.VectorSize = pathSize(cfg.VectorPath()) + pathSize(cfg.VectorPath()+".meta")
	info.TotalSize = info.DocumentsSize + info.LexicalSize + info.VectorSize

	if a == nil {
		info.EmbedderDimensions = cfg.Embeddings.Dimensions
		if p, err := embed.ParseProvider(cfg.Embeddings.Provider); err == nil {
			info.EmbedderProvider = string(p)
			if p == embed.ProviderStatic && info.EmbedderDimensions == 0 {
				info.EmbedderDimensions = embed.DefaultDimensions
			}
		}
		if !indexExists(cfg) {
			return info, nil
		}
		docs, err := store.OpenDocumentStore(cfg.DocumentsPath(), store.WithDriver(cfg.Documents.Driver))
		if err != nil {
			return info, err
		}
		defer func() { _ = docs.Close() }()
		if err := fillDocumentStatus(ctx, docs, &info); err != nil {
			return info, err
		}
		if semanticBackend(cfg) == backendHNSW && info.IndexDimensions > 0 {
			if n, err := countHNSW(ctx, cfg, info.IndexDimensions); err == nil {
				info.Vectors = n
			}
		}
		return info, nil
	}

	if err := fillDocumentStatus(ctx, a.docs, &info); err != nil {
		return info, err
	}
	if a.embedder == nil {
		info.EmbedderStatus = "disabled"
		return info, nil
	}
	n, err := a.vectors.Count(ctx)
	if err != nil {
		return info, fmt.Errorf("failed to count vectors: %w", err)
	}
	info.Vectors = n

	ei := embed.GetInfo(ctx, a.embedder)
	info.EmbedderProvider = string(ei.Provider)
	info.EmbedderModel = ei.Model
	info.EmbedderDimensions = ei.Dimensions
	switch {
	case info.IndexDimensions != 0 && info.IndexDimensions != ei.Dimensions:
		info.EmbedderStatus = "mismatch"
	case ei.Available:
		info.EmbedderStatus = "ready"
	}
	return info, nil
}

func fillDocumentStatus(ctx context.Context, docs *store.DocumentStore, info *ui.StatusInfo) error {
	var err error
	info.Documents, info.Chunks, err = docs.Counts(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}
	info.IndexModel, info.IndexDimensions, err = docs.EmbeddingInfo(ctx)
	if err != nil {
		return fmt.Errorf("failed to read embedding info: %w", err)
	}
	at, err := docs.GetMeta(ctx, store.MetaIndexedAt)
	if err != nil {
		return fmt.Errorf("failed to read index time: %w", err)
	}
	if at != "" {
		if t, err := time.Parse(time.RFC3339, at); err == nil {
			info.LastIndexed = t
		}
	}
	return nil
}

func countHNSW(ctx context.Context, cfg *config.Config, dims int) (int, error) {
	vc := store.DefaultVectorStoreConfig(dims)
	vc.Path = cfg.VectorPath()
	vc.ReadOnly = true
	s, err := store.NewHNSWStore(vc)
	if err != nil {
		return 0, err
	}
	defer func() { _ = s.Close() }()
	return s.Count(ctx)
}

// pathSize is the size of a file, or the total size of a directory tree.
func pathSize(path string) int64 {
	var total int64
	_ = filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			if fi, err := d.Info(); err == nil {
				total += fi.Size()
			}
		}
		return nil
	})
	return total
}
