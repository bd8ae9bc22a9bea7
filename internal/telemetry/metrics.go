// Package telemetry records retrieval patterns locally. Nothing is
// reported to external services.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// Outcome classifies how a retrieval was answered.
type Outcome string

const (
	// OutcomeHybrid means both sources contributed candidates.
	OutcomeHybrid Outcome = "hybrid"
	// OutcomeLexicalOnly means the semantic source was left out.
	OutcomeLexicalOnly Outcome = "lexical_only"
	// OutcomeSemanticOnly means the lexical source was left out.
	OutcomeSemanticOnly Outcome = "semantic_only"
)

// OutcomeOf derives the outcome from a result's failures.
func OutcomeOf(res *retrieval.Result) Outcome {
	for _, f := range res.Failures {
		switch f.Source {
		case retrieval.SourceLexical:
			return OutcomeSemanticOnly
		case retrieval.SourceSemantic:
			return OutcomeLexicalOnly
		}
	}
	return OutcomeHybrid
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// Ring is a fixed-capacity FIFO buffer.
type Ring[T any] struct {
	mu    sync.RWMutex
	items []T
	head  int
	size  int
}

// NewRing creates a ring holding at most capacity items.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Add appends an item, evicting the oldest when full.
func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if r.size < len(r.items) {
		r.size++
	}
}

// Items returns the buffered items oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, r.size)
	if r.size < len(r.items) {
		return append(out, r.items[:r.size]...)
	}
	out = append(out, r.items[r.head:]...)
	return append(out, r.items[:r.head]...)
}

// Len returns the number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// ExtractTerms lowercases query and keeps words of three or more bytes.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len(w) >= 3 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a term and how often it was queried.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot is a point-in-time copy of the collected metrics.
type Snapshot struct {
	TotalQueries        int64                   `json:"total_queries"`
	Outcomes            map[Outcome]int64       `json:"outcomes"`
	SourceFailures      map[string]int64        `json:"source_failures"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	RepeatCount         int64                   `json:"repeat_count"`
	UniqueQueries       int64                   `json:"unique_queries"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// DegradedPercentage returns the share of queries answered by one source.
func (s *Snapshot) DegradedPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.TotalQueries-s.Outcomes[OutcomeHybrid]) / float64(s.TotalQueries) * 100
}

// Store persists aggregated metrics.
type Store interface {
	SaveOutcomeCounts(date string, counts map[Outcome]int64) error
	OutcomeCounts(from, to string) (map[Outcome]int64, error)
	UpsertTermCounts(terms map[string]int64) error
	TopTerms(limit int) ([]TermCount, error)
	AddZeroResultQuery(query string, at time.Time) error
	ZeroResultQueries(limit int) ([]string, error)
	SaveLatencyCounts(date string, counts map[LatencyBucket]int64) error
	LatencyCounts(from, to string) (map[LatencyBucket]int64, error)
	Close() error
}

// Config configures a QueryMetrics collector.
type Config struct {
	TopTermsCapacity      int           // default 100
	ZeroResultsCapacity   int           // default 100
	RecentQueriesCapacity int           // default 500
	FlushInterval         time.Duration // 0 disables periodic flushing
}

// DefaultConfig returns the collector defaults.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
		FlushInterval:         time.Minute,
	}
}

// delta holds counts accumulated since the last flush.
type delta struct {
	outcomes    map[Outcome]int64
	terms       map[string]int64
	latencies   map[LatencyBucket]int64
	zeroResults []zeroResult
}

type zeroResult struct {
	query string
	at    time.Time
}

func newDelta() delta {
	return delta{
		outcomes:  make(map[Outcome]int64),
		terms:     make(map[string]int64),
		latencies: make(map[LatencyBucket]int64),
	}
}

// QueryMetrics aggregates retrieval results. Observe matches the
// retrieval.WithObserver callback. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	outcomes        map[Outcome]int64
	sourceFailures  map[string]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *Ring[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	total           int64
	zeroResultCount int64
	repeats         int64
	since           time.Time

	pending delta

	store  Store
	logger *slog.Logger
	ticker *time.Ticker
	stop   chan struct{}
	closed bool
}

// New creates a collector. A nil store keeps metrics in memory only.
func New(store Store, cfg Config, logger *slog.Logger) *QueryMetrics {
	def := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	m := &QueryMetrics{
		outcomes:       make(map[Outcome]int64),
		sourceFailures: make(map[string]int64),
		topTerms:       topTerms,
		zeroResults:    NewRing[string](cfg.ZeroResultsCapacity),
		latencies:      make(map[LatencyBucket]int64),
		recentQueries:  recent,
		since:          time.Now(),
		pending:        newDelta(),
		store:          store,
		logger:         logger,
		stop:           make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		m.ticker = time.NewTicker(cfg.FlushInterval)
		go m.flushLoop()
	}
	return m
}

func (m *QueryMetrics) flushLoop() {
	for {
		select {
		case <-m.ticker.C:
			if err := m.Flush(); err != nil {
				m.logger.Warn("telemetry flush failed", slog.String("error", err.Error()))
			}
		case <-m.stop:
			return
		}
	}
}

// Observe records one retrieval result.
func (m *QueryMetrics) Observe(res *retrieval.Result) {
	if res == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	outcome := OutcomeOf(res)
	m.outcomes[outcome]++
	m.pending.outcomes[outcome]++
	for _, f := range res.Failures {
		m.sourceFailures[f.Source.String()]++
	}

	for _, term := range ExtractTerms(res.Query) {
		count, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, count+1)
		m.pending.terms[term]++
	}

	if len(res.Items) == 0 {
		m.zeroResultCount++
		m.zeroResults.Add(res.Query)
		m.pending.zeroResults = append(m.pending.zeroResults, zeroResult{query: res.Query, at: time.Now()})
	}

	bucket := LatencyToBucket(res.Stats.Elapsed)
	m.latencies[bucket]++
	m.pending.latencies[bucket]++

	key := hashQuery(res.Query)
	if _, seen := m.recentQueries.Get(key); seen {
		m.repeats++
	}
	m.recentQueries.Add(key, struct{}{})
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(query))))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the metrics collected since New.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var terms []TermCount
	for _, key := range m.topTerms.Keys() {
		if count, ok := m.topTerms.Peek(key); ok {
			terms = append(terms, TermCount{Term: key, Count: count})
		}
	}
	slices.SortStableFunc(terms, func(a, b TermCount) int {
		if a.Count != b.Count {
			if a.Count > b.Count {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Term, b.Term)
	})

	return &Snapshot{
		TotalQueries:        m.total,
		Outcomes:            clone(m.outcomes),
		SourceFailures:      clone(m.sourceFailures),
		TopTerms:            terms,
		ZeroResultQueries:   m.zeroResults.Items(),
		ZeroResultCount:     m.zeroResultCount,
		LatencyDistribution: clone(m.latencies),
		RepeatCount:         m.repeats,
		UniqueQueries:       int64(m.recentQueries.Len()),
		Since:               m.since,
	}
}

func clone[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Flush writes counts accumulated since the last flush to the store.
// Without a store it is a no-op.
func (m *QueryMetrics) Flush() error {
	if m.store == nil {
		return nil
	}

	m.mu.Lock()
	d := m.pending
	m.pending = newDelta()
	m.mu.Unlock()

	today := time.Now().Format("2006-01-02")
	if err := m.store.SaveOutcomeCounts(today, d.outcomes); err != nil {
		return err
	}
	if err := m.store.UpsertTermCounts(d.terms); err != nil {
		return err
	}
	if err := m.store.SaveLatencyCounts(today, d.latencies); err != nil {
		return err
	}
	for _, z := range d.zeroResults {
		if err := m.store.AddZeroResultQuery(z.query, z.at); err != nil {
			return err
		}
	}
	return nil
}

// Close stops periodic flushing, flushes once more and closes the store.
// Calling Close again is a no-op.
func (m *QueryMetrics) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
	}
	if err := m.Flush(); err != nil {
		return err
	}
	if m.store != nil {
		return m.store.Close()
	}
	return nil
}
