package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/store"
)

// DefaultDebounce is how long the watcher waits for a burst of file events
// to settle before re-ingesting.
const DefaultDebounce = 500 * time.Millisecond

// SyncResult reports one debounced re-ingestion.
type SyncResult struct {
	Updated int
	Removed int
	Chunks  int
	Err     error
}

// Watcher re-ingests corpus files as they change.
type Watcher struct {
	root     string
	pipeline *Pipeline
	fsw      *fsnotify.Watcher
	debounce time.Duration
	onSync   func(SyncResult)
	logger   *slog.Logger
	ignore   *Ignorer
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period before a batch is processed.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnSync registers a callback run after every batch.
func WithOnSync(fn func(SyncResult)) WatchOption {
	return func(w *Watcher) {
		w.onSync = fn
	}
}

// WithWatchLogger sets the logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher watches every directory under root. Hidden and ignored paths
// are skipped as they are by LoadDir. The ignore files are read once.
func NewWatcher(root string, p *Pipeline, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve corpus path: %w", err)
	}
	ig, err := LoadIgnorer(abs)
	if err != nil {
		return nil, amerrors.New(amerrors.ErrCodeInvalidInput, "failed to read ignore file", err)
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w := &Watcher{
		root:     abs,
		ignore:   ig,
		pipeline: p,
		fsw:      fsw,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(slog.String("component", "watch"))

	if _, err := w.addRecursive(abs); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes file events until ctx is done. Events are collected until
// none arrive for the debounce period, then every touched file is either
// re-ingested or, when it no longer exists, removed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]struct{})
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			for _, path := range w.handle(ev) {
				pending[path] = struct{}{}
			}
			if len(pending) > 0 {
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("file watcher error", slog.String("error", err.Error()))

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			res := w.sync(ctx, paths)
			if res.Err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
			if w.onSync != nil {
				w.onSync(res)
			}
		}
	}
}

// handle returns the corpus files an event touches.
func (w *Watcher) handle(ev fsnotify.Event) []string {
	if ev.Op&fsnotify.Chmod == ev.Op {
		return nil
	}
	if w.skip(ev.Name, false) {
		return nil
	}
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			files, err := w.addRecursive(ev.Name)
			if err != nil {
				w.logger.Warn("failed to watch directory", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			return files
		}
	}
	if !IsCorpusFile(ev.Name) {
		return nil
	}
	return []string{ev.Name}
}

// skip reports whether path is inside a dot directory, is a dot file or
// is matched by the ignore files.
func (w *Watcher) skip(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") && part != ".." {
			return true
		}
	}
	return w.ignore.Ignored(rel, isDir)
}

// addRecursive watches dir and its subdirectories and returns the corpus
// files already inside them.
func (w *Watcher) addRecursive(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if path != w.root && w.skip(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		if IsCorpusFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return files, nil
}

// sync applies the current state of paths to the stores.
func (w *Watcher) sync(ctx context.Context, paths []string) SyncResult {
	var docs []*store.Document
	var gone []string
	var errs []error
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			gone = append(gone, DocumentID(FileSource(w.root, path), ""))
			continue
		}
		doc, err := LoadFile(w.root, path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}

	var res SyncResult
	if len(gone) > 0 {
		n, err := w.pipeline.Remove(ctx, gone)
		if err != nil {
			errs = append(errs, err)
		}
		res.Removed = len(gone)
		w.logger.Info("removed documents", slog.Int("documents", len(gone)), slog.Int("chunks", n))
	}
	if len(docs) > 0 {
		r, err := w.pipeline.Run(ctx, docs)
		if err != nil {
			errs = append(errs, err)
		} else {
			res.Updated = r.Documents
			res.Chunks = r.Chunks
		}
	}
	res.Err = errors.Join(errs...)
	if res.Err != nil {
		w.logger.Warn("re-ingestion failed", slog.String("error", res.Err.Error()))
	}
	return res
}
