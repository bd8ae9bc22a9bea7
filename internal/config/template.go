package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// keyComments annotate the top-level keys of a generated config file.
var keyComments = map[string]string{
	"version":    "amanrag configuration.\nPrecedence: defaults < user file < .amanrag.yaml < .env < AMANRAG_* variables.",
	"data_dir":   "Document store and indexes. Relative paths resolve against the project directory.",
	"retrieval":  "Fusion of the lexical and semantic rankings.\nnormalization: minmax or reciprocal_rank (both sources must agree).\ngranularity: chunk or document.",
	"lexical":    "backend: sqlite (FTS5) or bleve. syntax: plain or raw.",
	"semantic":   "backend: hnsw (embedded), pgvector (needs dsn) or none.",
	"embeddings": "provider: static (offline hashing) or openai (any OpenAI-compatible endpoint).\nThe API key is read from AMANRAG_API_KEY or OPENAI_API_KEY.",
	"ingest":     "Chunk windows are counted in words.",
	"documents":  "driver: sqlite (pure Go) or sqlite3 (cgo).",
	"answer":     "prompt_type: trends, summary or explanation.",
	"logging":    "level: debug, info, warn or error.",
}

// DefaultYAML renders the default configuration with a comment above
// each section.
func DefaultYAML() ([]byte, error) {
	var node yaml.Node
	if err := node.Encode(NewConfig()); err != nil {
		return nil, fmt.Errorf("failed to encode defaults: %w", err)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if c, ok := keyComments[key.Value]; ok {
			key.HeadComment = c
		}
	}
	return yaml.Marshal(&node)
}
