package telemetry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

func result(query string, items int, elapsed time.Duration, failed ...retrieval.Source) *retrieval.Result {
	res := &retrieval.Result{Query: query, K: 10, Stats: retrieval.Stats{Elapsed: elapsed}}
	for i := range items {
		res.Items = append(res.Items, retrieval.RetrievedItem{ID: retrieval.ChunkID("doc", i)})
	}
	for _, src := range failed {
		res.Degraded = true
		res.Failures = append(res.Failures, retrieval.SourceFailure{Source: src, Err: errors.New("down")})
	}
	return res
}

func memoryOnly() Config {
	cfg := DefaultConfig()
	cfg.FlushInterval = 0
	return cfg
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[string](3)
	assert.Empty(t, r.Items())

	for _, q := range []string{"a", "b", "c", "d", "e"} {
		r.Add(q)
	}

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"c", "d", "e"}, r.Items())
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{499 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"supply", "chain", "risk"}, ExtractTerms("  Supply chain of risk "))
	assert.Nil(t, ExtractTerms("a an"))
}

func TestOutcomeOf(t *testing.T) {
	assert.Equal(t, OutcomeHybrid, OutcomeOf(result("q", 1, 0)))
	assert.Equal(t, OutcomeLexicalOnly, OutcomeOf(result("q", 1, 0, retrieval.SourceSemantic)))
	assert.Equal(t, OutcomeSemanticOnly, OutcomeOf(result("q", 1, 0, retrieval.SourceLexical)))
}

func TestQueryMetrics_Observe(t *testing.T) {
	// Given: a memory-only collector
	m := New(nil, memoryOnly(), nil)
	defer m.Close()

	// When: observing a mix of results
	m.Observe(result("supplier lead times", 3, 5*time.Millisecond))
	m.Observe(result("Supplier lead times", 2, 20*time.Millisecond, retrieval.SourceSemantic))
	m.Observe(result("quantum widgets", 0, 200*time.Millisecond))
	m.Observe(nil)

	// Then: every aggregate reflects them
	s := m.Snapshot()
	assert.Equal(t, int64(3), s.TotalQueries)
	assert.Equal(t, int64(2), s.Outcomes[OutcomeHybrid])
	assert.Equal(t, int64(1), s.Outcomes[OutcomeLexicalOnly])
	assert.Equal(t, int64(1), s.SourceFailures["SEMANTIC"])
	assert.Equal(t, []string{"quantum widgets"}, s.ZeroResultQueries)
	assert.InDelta(t, 33.33, s.ZeroResultPercentage(), 0.01)
	assert.InDelta(t, 33.33, s.DegradedPercentage(), 0.01)
	assert.Equal(t, int64(1), s.RepeatCount)
	assert.Equal(t, int64(2), s.UniqueQueries)
	assert.Equal(t, int64(1), s.LatencyDistribution[BucketP500])
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "lead", Count: 2}, s.TopTerms[0])
}

func TestQueryMetrics_EmptySnapshot(t *testing.T) {
	m := New(nil, memoryOnly(), nil)

	s := m.Snapshot()

	assert.Zero(t, s.TotalQueries)
	assert.Zero(t, s.ZeroResultPercentage())
	assert.Zero(t, s.DegradedPercentage())
	assert.NoError(t, m.Flush())
}

func TestQueryMetrics_FlushWritesDeltas(t *testing.T) {
	// Given: a collector backed by SQLite
	store := setupTestStore(t)
	m := New(store, memoryOnly(), nil)
	today := time.Now().Format("2006-01-02")

	// When: flushing twice with one observation in between each
	m.Observe(result("inventory turns", 1, time.Millisecond))
	require.NoError(t, m.Flush())
	m.Observe(result("inventory", 0, time.Millisecond))
	require.NoError(t, m.Close())

	// Then: each observation is stored once
	outcomes, err := store.OutcomeCounts(today, today)
	require.NoError(t, err)
	assert.Equal(t, int64(2), outcomes[OutcomeHybrid])

	terms, err := store.TopTerms(1)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "inventory", Count: 2}}, terms)

	zero, err := store.ZeroResultQueries(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"inventory"}, zero)
}

func TestQueryMetrics_ClosedIgnoresObservations(t *testing.T) {
	m := New(nil, memoryOnly(), nil)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	m.Observe(result("late", 1, 0))

	assert.Zero(t, m.Snapshot().TotalQueries)
}

func TestQueryMetrics_ConcurrentObserve(t *testing.T) {
	m := New(nil, memoryOnly(), nil)
	defer m.Close()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				m.Observe(result("demand forecast", 1, time.Millisecond))
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(400), m.Snapshot().TotalQueries)
}
