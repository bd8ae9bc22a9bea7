// Package config loads amanrag settings from defaults, YAML files, a .env
// file and AMANRAG_* environment variables.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanrag/internal/chunk"
	"github.com/Aman-CERP/amanrag/internal/embed"
	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/pkg/retrieval"
)

// CurrentVersion is the config file schema version.
const CurrentVersion = 1

// ProjectFileNames are the project config files, in lookup order.
var ProjectFileNames = []string{".amanrag.yaml", ".amanrag.yml"}

// Config is the complete amanrag configuration.
type Config struct {
	Version    int              `yaml:"version"`
	DataDir    string           `yaml:"data_dir"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Lexical    LexicalConfig    `yaml:"lexical"`
	Semantic   SemanticConfig   `yaml:"semantic"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Ingest     IngestConfig     `yaml:"ingest"`
	Documents  DocumentsConfig  `yaml:"documents"`
	Answer     AnswerConfig     `yaml:"answer"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// RetrievalConfig holds fusion settings. Empty per-source normalizations
// inherit Normalization.
type RetrievalConfig struct {
	DefaultK              int           `yaml:"default_k"`
	LexicalWeight         float64       `yaml:"lexical_weight"`
	SemanticWeight        float64       `yaml:"semantic_weight"`
	Normalization         string        `yaml:"normalization"`
	LexicalNormalization  string        `yaml:"lexical_normalization,omitempty"`
	SemanticNormalization string        `yaml:"semantic_normalization,omitempty"`
	OverfetchFactor       float64       `yaml:"overfetch_factor"`
	LexicalTimeout        time.Duration `yaml:"lexical_timeout"`
	SemanticTimeout       time.Duration `yaml:"semantic_timeout"`
	Granularity           string        `yaml:"granularity"`
}

// LexicalConfig selects the BM25 backend.
type LexicalConfig struct {
	// Backend is "sqlite" or "bleve".
	Backend string `yaml:"backend"`
	// Syntax is "plain" or "raw".
	Syntax string `yaml:"syntax"`
}

// SemanticConfig selects the vector backend.
type SemanticConfig struct {
	// Backend is "hnsw", "pgvector" or "none".
	Backend string `yaml:"backend"`
	DSN     string `yaml:"dsn,omitempty"`
	Table   string `yaml:"table,omitempty"`
	// M and EfSearch tune the HNSW graph.
	M        int `yaml:"m"`
	EfSearch int `yaml:"ef_search"`
}

// EmbeddingsConfig selects the embedding provider.
type EmbeddingsConfig struct {
	// Provider is "static" or "openai".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	// PersistentCache stores embeddings under the data dir.
	PersistentCache bool `yaml:"persistent_cache"`
	// APIKey only comes from the environment.
	APIKey string `yaml:"-" json:"-"`
}

// IngestConfig controls chunking and indexing.
type IngestConfig struct {
	ChunkWords   int `yaml:"chunk_words"`
	OverlapWords int `yaml:"overlap_words"`
	Workers      int `yaml:"workers"`
	BatchSize    int `yaml:"batch_size"`
}

// DocumentsConfig controls the document store.
type DocumentsConfig struct {
	// Driver is "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver"`
}

// AnswerConfig controls answer generation.
type AnswerConfig struct {
	Model           string `yaml:"model"`
	BaseURL         string `yaml:"base_url,omitempty"`
	MaxContextWords int    `yaml:"max_context_words"`
	PromptType      string `yaml:"prompt_type"`
	Domain          string `yaml:"domain"`
	K               int    `yaml:"k"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	Level string `yaml:"level"`
	// File is the log path. Empty uses ~/.amanrag/logs/amanrag.log.
	File string `yaml:"file,omitempty"`
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: CurrentVersion,
		DataDir: ".amanrag",
		Retrieval: RetrievalConfig{
			DefaultK:        10,
			LexicalWeight:   retrieval.DefaultLexicalWeight,
			SemanticWeight:  retrieval.DefaultSemanticWeight,
			Normalization:   string(retrieval.MinMax),
			OverfetchFactor: retrieval.DefaultOverfetchFactor,
			LexicalTimeout:  retrieval.DefaultLexicalTimeout,
			SemanticTimeout: retrieval.DefaultSemanticTimeout,
			Granularity:     string(retrieval.GranularityChunk),
		},
		Lexical: LexicalConfig{Backend: "sqlite", Syntax: "plain"},
		Semantic: SemanticConfig{
			Backend:  "hnsw",
			M:        16,
			EfSearch: 64,
		},
		Embeddings: EmbeddingsConfig{
			Provider:        string(embed.ProviderStatic),
			Dimensions:      embed.DefaultDimensions,
			CacheSize:       embed.DefaultEmbeddingCacheSize,
			PersistentCache: true,
		},
		Ingest: IngestConfig{
			ChunkWords:   chunk.DefaultChunkWords,
			OverlapWords: chunk.DefaultOverlapWords,
			Workers:      4,
			BatchSize:    embed.DefaultBatchSize,
		},
		Documents: DocumentsConfig{Driver: "sqlite"},
		Answer: AnswerConfig{
			Model:           "gpt-4o-mini",
			MaxContextWords: 7000,
			PromptType:      "trends",
			Domain:          "manufacturing and supply chain",
			K:               10,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// UserConfigPath returns $XDG_CONFIG_HOME/amanrag/config.yaml, falling back
// to ~/.config/amanrag/config.yaml.
func UserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanrag", "config.yaml")
}

// Load builds the configuration for dir. Later layers win:
//  1. defaults
//  2. the user config file
//  3. .amanrag.yaml in dir
//  4. dir/.env, which never overrides variables already set
//  5. AMANRAG_* variables
//
// A relative data_dir is resolved against dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.mergeFile(UserConfigPath()); err != nil {
		return nil, err
	}
	for _, name := range ProjectFileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			if err := cfg.mergeFile(path); err != nil {
				return nil, err
			}
			break
		}
	}

	envPath := filepath.Join(dir, ".env")
	if _, err := os.Stat(envPath); err == nil {
		if err := godotenv.Load(envPath); err != nil {
			return nil, amerrors.ConfigError(fmt.Sprintf("failed to read %s", envPath), err)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(dir, cfg.DataDir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeFile decodes path over c. A missing file is not an error; unknown
// keys are.
func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return amerrors.ConfigError(fmt.Sprintf("failed to read %s", path), err)
	}
	return c.merge(bytes.NewReader(data), path)
}

func (c *Config) merge(r io.Reader, name string) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return amerrors.ConfigError(fmt.Sprintf("failed to parse %s", name), err).
			WithDetail("file", name)
	}
	return nil
}

// envVar is one AMANRAG_* override.
type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

var envVars = []envVar{
	{"AMANRAG_DATA_DIR", func(c *Config, v string) error { c.DataDir = v; return nil }},
	{"AMANRAG_LEXICAL_WEIGHT", func(c *Config, v string) error { return parseFloat(v, &c.Retrieval.LexicalWeight) }},
	{"AMANRAG_SEMANTIC_WEIGHT", func(c *Config, v string) error { return parseFloat(v, &c.Retrieval.SemanticWeight) }},
	{"AMANRAG_NORMALIZATION", func(c *Config, v string) error { c.Retrieval.Normalization = v; return nil }},
	{"AMANRAG_OVERFETCH_FACTOR", func(c *Config, v string) error { return parseFloat(v, &c.Retrieval.OverfetchFactor) }},
	{"AMANRAG_LEXICAL_TIMEOUT", func(c *Config, v string) error { return parseDuration(v, &c.Retrieval.LexicalTimeout) }},
	{"AMANRAG_SEMANTIC_TIMEOUT", func(c *Config, v string) error { return parseDuration(v, &c.Retrieval.SemanticTimeout) }},
	{"AMANRAG_LEXICAL_BACKEND", func(c *Config, v string) error { c.Lexical.Backend = v; return nil }},
	{"AMANRAG_SEMANTIC_BACKEND", func(c *Config, v string) error { c.Semantic.Backend = v; return nil }},
	{"AMANRAG_PGVECTOR_DSN", func(c *Config, v string) error { c.Semantic.DSN = v; return nil }},
	{"AMANRAG_EMBEDDINGS_PROVIDER", func(c *Config, v string) error { c.Embeddings.Provider = v; return nil }},
	{"AMANRAG_EMBEDDINGS_MODEL", func(c *Config, v string) error { c.Embeddings.Model = v; return nil }},
	{"AMANRAG_EMBEDDINGS_BASE_URL", func(c *Config, v string) error { c.Embeddings.BaseURL = v; return nil }},
	{"AMANRAG_EMBEDDINGS_DIMENSIONS", func(c *Config, v string) error { return parseInt(v, &c.Embeddings.Dimensions) }},
	{"OPENAI_API_KEY", func(c *Config, v string) error { c.Embeddings.APIKey = v; return nil }},
	{"AMANRAG_API_KEY", func(c *Config, v string) error { c.Embeddings.APIKey = v; return nil }},
	{"AMANRAG_ANSWER_MODEL", func(c *Config, v string) error { c.Answer.Model = v; return nil }},
	{"AMANRAG_ANSWER_BASE_URL", func(c *Config, v string) error { c.Answer.BaseURL = v; return nil }},
	{"AMANRAG_LOG_LEVEL", func(c *Config, v string) error { c.Logging.Level = v; return nil }},
}

// applyEnv applies the environment overrides in table order, so
// AMANRAG_API_KEY wins over OPENAI_API_KEY.
func (c *Config) applyEnv() error {
	for _, ev := range envVars {
		v, ok := os.LookupEnv(ev.name)
		if !ok || v == "" {
			continue
		}
		if err := ev.apply(c, strings.TrimSpace(v)); err != nil {
			return amerrors.ConfigError(fmt.Sprintf("invalid %s=%q", ev.name, v), err)
		}
	}
	return nil
}

func parseFloat(s string, dst *float64) error {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseInt(s string, dst *int) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseDuration(s string, dst *time.Duration) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// RetrievalOptions converts the retrieval section. Normalization names
// must parse.
func (c *Config) RetrievalOptions() (retrieval.Config, error) {
	r := c.Retrieval
	out := retrieval.Config{
		LexicalWeight:   r.LexicalWeight,
		SemanticWeight:  r.SemanticWeight,
		OverfetchFactor: r.OverfetchFactor,
		LexicalTimeout:  r.LexicalTimeout,
		SemanticTimeout: r.SemanticTimeout,
		Granularity:     retrieval.Granularity(r.Granularity),
	}
	for _, s := range []struct {
		raw string
		dst *retrieval.Strategy
	}{
		{r.Normalization, &out.Normalization},
		{r.LexicalNormalization, &out.LexicalNormalization},
		{r.SemanticNormalization, &out.SemanticNormalization},
	} {
		if s.raw == "" {
			continue
		}
		st, err := retrieval.ParseStrategy(s.raw)
		if err != nil {
			return retrieval.Config{}, err
		}
		*s.dst = st
	}
	return out, nil
}

// Validate checks every section. Errors are ConfigInvalid.
func (c *Config) Validate() error {
	rc, err := c.RetrievalOptions()
	if err != nil {
		return err
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	if c.Retrieval.DefaultK <= 0 {
		return invalid("retrieval.default_k must be positive, got %d", c.Retrieval.DefaultK)
	}

	switch strings.ToLower(c.Lexical.Backend) {
	case "sqlite", "bleve":
	default:
		return invalid("lexical.backend must be 'sqlite' or 'bleve', got %q", c.Lexical.Backend)
	}
	switch strings.ToLower(c.Lexical.Syntax) {
	case "plain", "raw":
	default:
		return invalid("lexical.syntax must be 'plain' or 'raw', got %q", c.Lexical.Syntax)
	}

	switch strings.ToLower(c.Semantic.Backend) {
	case "hnsw", "none":
	case "pgvector":
		if c.Semantic.DSN == "" {
			return invalid("semantic.dsn is required for the pgvector backend")
		}
	default:
		return invalid("semantic.backend must be 'hnsw', 'pgvector' or 'none', got %q", c.Semantic.Backend)
	}

	if _, err := embed.ParseProvider(c.Embeddings.Provider); err != nil {
		return err
	}
	if c.Embeddings.Dimensions < 0 {
		return invalid("embeddings.dimensions must not be negative, got %d", c.Embeddings.Dimensions)
	}

	if c.Ingest.ChunkWords < chunk.MinChunkWords {
		return invalid("ingest.chunk_words must be at least %d, got %d", chunk.MinChunkWords, c.Ingest.ChunkWords)
	}
	if c.Ingest.OverlapWords < 0 || c.Ingest.OverlapWords >= c.Ingest.ChunkWords {
		return invalid("ingest.overlap_words must be in [0, chunk_words), got %d", c.Ingest.OverlapWords)
	}
	if c.Ingest.Workers <= 0 {
		return invalid("ingest.workers must be positive, got %d", c.Ingest.Workers)
	}
	if c.Ingest.BatchSize < embed.MinBatchSize || c.Ingest.BatchSize > embed.MaxBatchSize {
		return invalid("ingest.batch_size must be between %d and %d, got %d",
			embed.MinBatchSize, embed.MaxBatchSize, c.Ingest.BatchSize)
	}

	switch c.Documents.Driver {
	case "sqlite", "sqlite3":
	default:
		return invalid("documents.driver must be 'sqlite' or 'sqlite3', got %q", c.Documents.Driver)
	}

	switch c.Answer.PromptType {
	case "trends", "summary", "explanation":
	default:
		return invalid("answer.prompt_type must be 'trends', 'summary' or 'explanation', got %q", c.Answer.PromptType)
	}
	if c.Answer.MaxContextWords <= 0 || c.Answer.K <= 0 {
		return invalid("answer.max_context_words and answer.k must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn' or 'error', got %q", c.Logging.Level)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return amerrors.Newf(amerrors.ErrCodeConfigInvalid, format, args...)
}

// DocumentsPath is the document store database.
func (c *Config) DocumentsPath() string {
	return filepath.Join(c.DataDir, "documents.db")
}

// VectorPath is the HNSW export file.
func (c *Config) VectorPath() string {
	return filepath.Join(c.DataDir, "vectors.hnsw")
}

// EmbeddingCacheDir is the badger embedding cache.
func (c *Config) EmbeddingCacheDir() string {
	return filepath.Join(c.DataDir, "embeddings")
}

// Map renders c as a generic tree keyed like the YAML file, with durations
// in their string form. It backs JSON views of the configuration.
func (c *Config) Map() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return m, nil
}

// WriteYAML writes c to path.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
