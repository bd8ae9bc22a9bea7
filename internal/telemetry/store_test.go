package telemetry

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db")+"?_journal_mode=WAL")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	return store
}

func TestSQLiteStore_OutcomeCounts_Accumulate(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveOutcomeCounts("2026-10-05", map[Outcome]int64{OutcomeHybrid: 10}))
	require.NoError(t, store.SaveOutcomeCounts("2026-10-06", map[Outcome]int64{OutcomeHybrid: 5, OutcomeLexicalOnly: 2}))
	require.NoError(t, store.SaveOutcomeCounts("2026-10-06", map[Outcome]int64{OutcomeHybrid: 1}))
	require.NoError(t, store.SaveOutcomeCounts("2026-10-07", map[Outcome]int64{OutcomeHybrid: 30}))

	got, err := store.OutcomeCounts("2026-10-05", "2026-10-06")
	require.NoError(t, err)

	assert.Equal(t, int64(16), got[OutcomeHybrid])
	assert.Equal(t, int64(2), got[OutcomeLexicalOnly])
	assert.Zero(t, got[OutcomeSemanticOnly])
}

func TestSQLiteStore_LatencyCounts(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.SaveLatencyCounts("2026-10-06", map[LatencyBucket]int64{BucketP10: 10, BucketP500: 1}))
	require.NoError(t, store.SaveLatencyCounts("2026-10-06", map[LatencyBucket]int64{BucketP10: 5}))

	got, err := store.LatencyCounts("2026-10-06", "2026-10-06")
	require.NoError(t, err)

	assert.Equal(t, map[LatencyBucket]int64{BucketP10: 15, BucketP500: 1}, got)
}

func TestSQLiteStore_TopTerms(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.UpsertTermCounts(map[string]int64{"supplier": 2, "lead": 4, "tariff": 3}))
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"supplier": 3}))
	require.NoError(t, store.UpsertTermCounts(nil))

	got, err := store.TopTerms(2)
	require.NoError(t, err)

	assert.Equal(t, []TermCount{{Term: "supplier", Count: 5}, {Term: "lead", Count: 4}}, got)
}

func TestSQLiteStore_ZeroResultQueries_Bounded(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	for i := range MaxZeroResultQueries + 5 {
		require.NoError(t, store.AddZeroResultQuery(fmt.Sprintf("query %d", i), now.Add(time.Duration(i)*time.Second)))
	}

	got, err := store.ZeroResultQueries(500)
	require.NoError(t, err)

	require.Len(t, got, MaxZeroResultQueries)
	assert.Equal(t, fmt.Sprintf("query %d", MaxZeroResultQueries+4), got[0])
}

func TestNewSQLiteStore_NilDB(t *testing.T) {
	_, err := NewSQLiteStore(nil)
	assert.Error(t, err)
}

func TestOpenSQLiteStore_OwnsConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.db")

	store, err := OpenSQLiteStore(path, "sqlite3")
	require.NoError(t, err)
	require.NoError(t, store.UpsertTermCounts(map[string]int64{"inventory": 1}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLiteStore(path, "sqlite3")
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.TopTerms(1)
	require.NoError(t, err)
	assert.Equal(t, []TermCount{{Term: "inventory", Count: 1}}, got)
}
