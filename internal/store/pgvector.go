package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// DefaultPgVectorTable is the table used when PgVectorConfig.Table is empty.
const DefaultPgVectorTable = "amanrag_vectors"

var tableNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// PgVectorConfig configures a Postgres-backed vector store.
type PgVectorConfig struct {
	// DSN is a lib/pq connection string.
	DSN string

	// Table holds the vectors (default: amanrag_vectors).
	Table string

	// Dimensions is the embedding width of the vector column.
	Dimensions int

	// MaxFailures opens the circuit after this many consecutive failed
	// searches (default: 5).
	MaxFailures int

	// ResetTimeout is how long the circuit stays open (default: 30s).
	ResetTimeout time.Duration
}

// PgVectorStore is a VectorStore on Postgres with the pgvector extension.
// Similarity is cosine: the <=> operator returns 1 - cos.
type PgVectorStore struct {
	db      *sql.DB
	table   string
	dims    int
	breaker *amerrors.CircuitBreaker
	retry   amerrors.RetryConfig
}

var _ VectorStore = (*PgVectorStore)(nil)

// NewPgVectorStore connects, creates the extension and table if needed,
// and checks that an existing table has the configured width.
func NewPgVectorStore(ctx context.Context, cfg PgVectorConfig) (*PgVectorStore, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d", cfg.Dimensions)
	}
	if cfg.Table == "" {
		cfg.Table = DefaultPgVectorTable
	}
	if !tableNamePattern.MatchString(cfg.Table) {
		return nil, fmt.Errorf("invalid pgvector table name %q", cfg.Table)
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout == 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	retry := amerrors.DefaultRetryConfig()
	retry.ShouldRetry = isTransientPgError

	s := &PgVectorStore{
		db:    db,
		table: cfg.Table,
		dims:  cfg.Dimensions,
		breaker: amerrors.NewCircuitBreaker("pgvector",
			amerrors.WithMaxFailures(cfg.MaxFailures),
			amerrors.WithResetTimeout(cfg.ResetTimeout)),
		retry: retry,
	}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL
		)`, s.table, s.dims),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s
			USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize pgvector schema: %w", err)
		}
	}

	// For the vector type atttypmod is the declared width.
	var width int
	err := s.db.QueryRowContext(ctx, `
		SELECT atttypmod FROM pg_attribute
		WHERE attrelid = $1::regclass AND attname = 'embedding'`, s.table).Scan(&width)
	if err != nil {
		return fmt.Errorf("failed to read vector width: %w", err)
	}
	if width > 0 && width != s.dims {
		return ErrDimensionMismatch{Expected: width, Got: s.dims}
	}
	return nil
}

// Add upserts vectors in one transaction, retrying transient failures.
func (s *PgVectorStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}
	for _, v := range vectors {
		if len(v) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(v)}
		}
	}

	return amerrors.Retry(ctx, s.retry, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback() }()

		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (id, embedding) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET embedding = EXCLUDED.embedding`, s.table))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, pgvector.NewVector(vectors[i])); err != nil {
				return fmt.Errorf("failed to upsert vector %s: %w", id, err)
			}
		}
		return tx.Commit()
	})
}

// Search returns the k nearest vectors by cosine distance. Repeated
// failures open the circuit, after which calls fail fast with
// ErrCircuitOpen until the reset timeout passes.
func (s *PgVectorStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if k <= 0 {
		return []*VectorResult{}, nil
	}

	return amerrors.CircuitExecute(s.breaker, func() ([]*VectorResult, error) {
		rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
			SELECT id, embedding <=> $1 AS distance
			FROM %s
			ORDER BY distance, id
			LIMIT $2`, s.table), pgvector.NewVector(query), k)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		defer rows.Close()

		results := make([]*VectorResult, 0, k)
		for rows.Next() {
			var id string
			var d float64
			if err := rows.Scan(&id, &d); err != nil {
				return nil, fmt.Errorf("failed to scan vector result: %w", err)
			}
			results = append(results, &VectorResult{
				ID:       id,
				Distance: float32(d),
				Score:    float32(1 - d),
			})
		}
		return results, rows.Err()
	}, isContextError)
}

// Delete removes vectors by id.
func (s *PgVectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.table), pq.Array(ids))
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}

// Count returns the number of stored vectors.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	return n, nil
}

// Dimensions returns the vector column width.
func (s *PgVectorStore) Dimensions() int { return s.dims }

// Flush is a no-op: every write is committed.
func (s *PgVectorStore) Flush() error { return nil }

// Close closes the connection pool.
func (s *PgVectorStore) Close() error { return s.db.Close() }

// isTransientPgError reports connection-level failures worth retrying.
func isTransientPgError(err error) bool {
	if isContextError(err) {
		return false
	}
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08: connection exception. Class 57: operator intervention.
		class := pqErr.Code.Class()
		return class == "08" || class == "57" || pqErr.Code == "40001"
	}
	return false
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
