package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWStore is an in-process VectorStore backed by coder/hnsw.
//
// Replaced and deleted vectors are removed from the id maps only; their
// graph nodes stay behind as orphans until the next rebuild, because
// coder/hnsw mishandles deleting the last node of a layer.
type HNSWStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorStoreConfig

	ids     map[string]uint64
	keys    map[uint64]string
	nextKey uint64

	closed bool
}

var _ VectorStore = (*HNSWStore)(nil)

// hnswMeta is the gob sidecar written next to the exported graph.
type hnswMeta struct {
	IDs     map[string]uint64
	NextKey uint64
	Config  VectorStoreConfig
}

// NewHNSWStore creates a vector store. When cfg.Path names an existing
// export it is loaded; its recorded width must equal cfg.Dimensions.
func NewHNSWStore(cfg VectorStoreConfig) (*HNSWStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 64
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "cos":
		graph.Distance = hnsw.CosineDistance
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		return nil, fmt.Errorf("unknown vector metric %q (valid options: cos, l2)", cfg.Metric)
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	s := &HNSWStore{
		graph:  graph,
		config: cfg,
		ids:    make(map[string]uint64),
		keys:   make(map[uint64]string),
	}

	if cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			if err := s.load(cfg.Path); err != nil {
				return nil, err
			}
		}
	}
	return s, nil
}

// Add inserts or replaces vectors.
func (s *HNSWStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	for _, v := range vectors {
		if len(v) != s.config.Dimensions {
			return ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(v)}
		}
	}

	nodes := make([]hnsw.Node[uint64], 0, len(ids))
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		if old, ok := s.ids[id]; ok {
			delete(s.keys, old)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.config.Metric == "cos" {
			normalizeInPlace(vec)
		}
		nodes = append(nodes, hnsw.MakeNode(key, vec))

		s.ids[id] = key
		s.keys[key] = id
	}
	s.graph.Add(nodes...)
	return nil
}

// Search returns up to k live neighbours ordered by descending Score,
// ties broken by ascending id.
func (s *HNSWStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	if len(query) != s.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || len(s.ids) == 0 {
		return []*VectorResult{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	// Orphaned nodes can occupy result slots; ask for enough to cover them.
	orphans := s.graph.Len() - len(s.ids)
	nodes := s.graph.Search(q, k+orphans)

	results := make([]*VectorResult, 0, k)
	for _, node := range nodes {
		id, ok := s.keys[node.Key]
		if !ok {
			continue
		}
		d := s.graph.Distance(q, node.Value)
		results = append(results, &VectorResult{
			ID:       id,
			Distance: d,
			Score:    similarity(d, s.config.Metric),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes vectors by id. Unknown ids are ignored.
func (s *HNSWStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, id := range ids {
		if key, ok := s.ids[id]; ok {
			delete(s.keys, key)
			delete(s.ids, id)
		}
	}
	return nil
}

// Contains reports whether id has a live vector.
func (s *HNSWStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok && !s.closed
}

// Count returns the number of live vectors.
func (s *HNSWStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	return len(s.ids), nil
}

// Orphans returns how many graph nodes no longer map to an id.
func (s *HNSWStore) Orphans() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0
	}
	return s.graph.Len() - len(s.ids)
}

// Dimensions returns the configured embedding width.
func (s *HNSWStore) Dimensions() int {
	return s.config.Dimensions
}

// Flush writes the graph and id maps to cfg.Path. In-memory and read-only
// stores have nothing to flush.
func (s *HNSWStore) Flush() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	if !s.persistent() {
		return nil
	}
	return s.save(s.config.Path)
}

// Close flushes a writable file-backed store and releases the graph.
func (s *HNSWStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}

	var err error
	if s.persistent() {
		err = s.save(s.config.Path)
	}
	s.closed = true
	s.graph = nil
	return err
}

func (s *HNSWStore) persistent() bool {
	return s.config.Path != "" && !s.config.ReadOnly
}

// save writes the graph export and its sidecar via temp files and rename.
func (s *HNSWStore) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := writeAtomic(path, func(f *os.File) error {
		return s.graph.Export(f)
	}); err != nil {
		return fmt.Errorf("failed to export graph: %w", err)
	}

	meta := hnswMeta{IDs: s.ids, NextKey: s.nextKey, Config: s.config}
	if err := writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	}); err != nil {
		return fmt.Errorf("failed to save id map: %w", err)
	}
	return nil
}

func (s *HNSWStore) load(path string) error {
	meta, err := readHNSWMeta(path)
	if err != nil {
		return err
	}
	if meta.Config.Dimensions != s.config.Dimensions {
		return ErrDimensionMismatch{Expected: meta.Config.Dimensions, Got: s.config.Dimensions}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open vector index: %w", err)
	}
	defer f.Close()

	// Import needs an io.ByteReader.
	if err := s.graph.Import(bufio.NewReader(f)); err != nil {
		return fmt.Errorf("failed to import graph: %w", err)
	}

	s.ids = meta.IDs
	if s.ids == nil {
		s.ids = make(map[string]uint64)
	}
	s.nextKey = meta.NextKey
	s.keys = make(map[uint64]string, len(s.ids))
	for id, key := range s.ids {
		s.keys[key] = id
	}
	return nil
}

func writeAtomic(path string, write func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("failed to close temp file", slog.String("path", tmp), slog.String("error", cerr.Error()))
		}
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func readHNSWMeta(vectorPath string) (*hnswMeta, error) {
	f, err := os.Open(vectorPath + ".meta")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var meta hnswMeta
	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode vector index metadata: %w", err)
	}
	return &meta, nil
}

// ReadHNSWDimensions returns the width recorded for a saved store, or 0 if
// none has been saved at vectorPath.
func ReadHNSWDimensions(vectorPath string) (int, error) {
	meta, err := readHNSWMeta(vectorPath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.Config.Dimensions, nil
}

func normalizeInPlace(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// similarity maps a distance to a higher-is-better score. Cosine distance
// is 1 - cos, so the score is the cosine similarity itself.
func similarity(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1 / (1 + distance)
	}
	return 1 - distance
}
