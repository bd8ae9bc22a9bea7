package store

import (
	"fmt"
	"path/filepath"
)

// BM25Backend names a lexical index implementation.
type BM25Backend string

const (
	// BM25BackendSQLite uses SQLite FTS5 (default).
	BM25BackendSQLite BM25Backend = "sqlite"

	// BM25BackendBleve uses bleve v2.
	BM25BackendBleve BM25Backend = "bleve"
)

// LexicalIndexPath returns where a backend keeps its files under dataDir.
func LexicalIndexPath(dataDir string, backend BM25Backend) string {
	base := filepath.Join(dataDir, "lexical")
	if backend == BM25BackendBleve {
		return base + ".bleve"
	}
	return base + ".db"
}

// NewBM25Index opens the lexical index for backend under dataDir. An empty
// dataDir creates an in-memory index.
func NewBM25Index(dataDir string, backend BM25Backend, config BM25Config) (BM25Index, error) {
	path := ""
	switch backend {
	case BM25BackendSQLite, "":
		if dataDir != "" {
			path = LexicalIndexPath(dataDir, BM25BackendSQLite)
		}
		return NewSQLiteBM25Index(path, config)

	case BM25BackendBleve:
		if dataDir != "" {
			path = LexicalIndexPath(dataDir, BM25BackendBleve)
		}
		return NewBleveBM25Index(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}
