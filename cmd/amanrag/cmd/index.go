package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/ingest"
	"github.com/Aman-CERP/amanrag/internal/output"
	"github.com/Aman-CERP/amanrag/internal/ui"
)

// indexOptions holds CLI flags for index.
type indexOptions struct {
	rebuild bool
	watch   bool
	noTUI   bool
}

func newIndexCmd() *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Ingest a corpus into the indexes",
		Long: `Load documents, split them into passages and write them to the document
store, the lexical index and the vector index.

The path is a directory of .md/.txt files, a single text file, or a JSONL
file with one {id,title,content,source_url,scraped_at} object per line.
Directories skip dot entries and paths listed in .gitignore or
.amanragignore at their root. Re-indexing a document replaces its passages
everywhere.

Examples:
  amanrag index ./corpus
  amanrag index scraped.jsonl
  amanrag index ./corpus --watch
  amanrag index ./corpus --rebuild`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.rebuild, "rebuild", false, "Discard the existing indexes first")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "Keep running and re-ingest files as they change")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress lines instead of the interactive display")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, opts indexOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		return amerrors.New(amerrors.ErrCodeFileNotFound, fmt.Sprintf("corpus not found: %s", path), err)
	}
	if opts.watch && !info.IsDir() {
		return amerrors.ValidationError("--watch needs a directory", nil)
	}

	lock := ingest.NewDataDirLock(cfg.DataDir)
	if err := lock.TryLock(); err != nil {
		return err
	}
	defer func() { _ = lock.Unlock() }()

	if opts.rebuild {
		if err := resetIndex(ctx, cfg); err != nil {
			return err
		}
		slog.Info("index reset", slog.String("data_dir", cfg.DataDir))
	}

	a, err := openApp(ctx, cfg, appOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	uiCfg := ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(opts.noTUI || opts.watch),
		ui.WithNoColor(noColor),
		ui.WithSource(path))
	renderer := ui.NewRenderer(uiCfg)

	pipeline, err := a.newPipeline(renderer)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	if err := ingestOnce(ctx, renderer, a, pipeline, path); err != nil {
		return err
	}
	if !opts.watch {
		return nil
	}
	return watchCorpus(ctx, cmd, pipeline, path)
}

// ingestOnce loads path and runs it through the pipeline with progress.
func ingestOnce(ctx context.Context, renderer ui.Renderer, a *app, pipeline *ingest.Pipeline, path string) error {
	if err := renderer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start progress display: %w", err)
	}
	defer func() { _ = renderer.Stop() }()

	loadStart := time.Now()
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Message: path})
	docs, err := ingest.Load(ctx, path)
	if err != nil {
		return err
	}
	loaded := time.Since(loadStart)
	renderer.UpdateProgress(ui.ProgressEvent{Stage: ui.StageLoading, Current: len(docs), Total: len(docs)})

	res, err := pipeline.Run(ctx, docs)
	if err != nil {
		return err
	}

	stages := res.Stages
	stages.Load = loaded
	stats := ui.CompletionStats{
		Documents: res.Documents,
		Chunks:    res.Chunks,
		Removed:   res.Removed,
		Duration:  res.Duration + loaded,
		Stages:    stages,
	}
	// Lexical-only indexes have no embedder to report.
	if a.embedder != nil {
		info := embed.GetInfo(ctx, a.embedder)
		stats.Embedder = ui.EmbedderInfo{
			Backend:    string(info.Provider),
			Model:      info.Model,
			Dimensions: info.Dimensions,
		}
	}
	renderer.Complete(stats)
	return nil
}

// watchCorpus re-ingests changed files until interrupted.
func watchCorpus(ctx context.Context, cmd *cobra.Command, pipeline *ingest.Pipeline, path string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := output.New(cmd.OutOrStdout())
	w, err := ingest.NewWatcher(path, pipeline,
		ingest.WithWatchLogger(slog.Default()),
		ingest.WithOnSync(func(r ingest.SyncResult) {
			if r.Err != nil {
				out.Errorf("re-ingestion failed: %v", r.Err)
				return
			}
			out.Successf("updated %d documents (%d chunks), removed %d", r.Updated, r.Chunks, r.Removed)
		}))
	if err != nil {
		return err
	}

	out.Statusf("👀", "Watching %s for changes (Ctrl+C to stop)", path)
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
