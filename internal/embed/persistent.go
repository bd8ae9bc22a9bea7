package embed

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// PersistentCache stores embeddings in badger so re-ingesting unchanged
// passages does not call the provider again.
type PersistentCache struct {
	inner  Embedder
	db     *badger.DB
	logger *slog.Logger
}

var _ Embedder = (*PersistentCache)(nil)

// badgerLogger routes badger's logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.logger.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.logger.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.logger.Debug(fmt.Sprintf(msg, args...))
}

// NewPersistentCache wraps inner with a badger database at dir. An empty
// dir keeps the cache in memory.
func NewPersistentCache(inner Embedder, dir string, logger *slog.Logger) (*PersistentCache, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create embedding cache dir: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}
	return &PersistentCache{inner: inner, db: db, logger: logger}, nil
}

// Embed returns the stored vector for text or computes and stores it.
func (p *PersistentCache) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch reads stored vectors in one transaction and embeds the rest
// in one inner batch.
func (p *PersistentCache) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	model := p.inner.ModelName()
	dims := p.inner.Dimensions()

	var missIdx []int
	var missTexts []string
	err := p.db.View(func(txn *badger.Txn) error {
		for i, text := range texts {
			item, err := txn.Get([]byte(embeddingKey(model, text)))
			if errors.Is(err, badger.ErrKeyNotFound) {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, text)
				continue
			}
			if err != nil {
				return err
			}
			var vec []float32
			if err := item.Value(func(val []byte) error {
				vec = decodeVector(val)
				return nil
			}); err != nil {
				return err
			}
			if len(vec) != dims {
				missIdx = append(missIdx, i)
				missTexts = append(missTexts, text)
				continue
			}
			results[i] = vec
		}
		return nil
	})
	if err != nil {
		// A broken cache must not block ingestion.
		p.logger.Warn("embedding cache read failed", slog.String("error", err.Error()))
		missIdx, missTexts = missIdx[:0], missTexts[:0]
		for i, text := range texts {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, text)
		}
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vecs, err := p.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missTexts))
	}

	wb := p.db.NewWriteBatch()
	defer wb.Cancel()
	for j, idx := range missIdx {
		results[idx] = vecs[j]
		if err := wb.Set([]byte(embeddingKey(model, missTexts[j])), encodeVector(vecs[j])); err != nil {
			p.logger.Warn("embedding cache write failed", slog.String("error", err.Error()))
			return results, nil
		}
	}
	if err := wb.Flush(); err != nil {
		p.logger.Warn("embedding cache flush failed", slog.String("error", err.Error()))
	}
	return results, nil
}

// Len returns the number of stored vectors.
func (p *PersistentCache) Len() (int, error) {
	n := 0
	err := p.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Dimensions returns the inner embedder's width.
func (p *PersistentCache) Dimensions() int {
	return p.inner.Dimensions()
}

// ModelName returns the inner embedder's model.
func (p *PersistentCache) ModelName() string {
	return p.inner.ModelName()
}

// Available reports the inner embedder's availability.
func (p *PersistentCache) Available(ctx context.Context) bool {
	return p.inner.Available(ctx)
}

// Close closes the database and the inner embedder.
func (p *PersistentCache) Close() error {
	return errors.Join(p.db.Close(), p.inner.Close())
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
