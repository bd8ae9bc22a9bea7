package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	amerrors "github.com/Aman-CERP/amanrag/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic hashes text locally. Needs nothing external.
	ProviderStatic ProviderType = "static"

	// ProviderOpenAI calls an OpenAI-compatible embeddings endpoint.
	ProviderOpenAI ProviderType = "openai"
)

// String returns the provider name.
func (p ProviderType) String() string {
	return string(p)
}

// ValidProviders returns all provider names.
func ValidProviders() []string {
	return []string{string(ProviderStatic), string(ProviderOpenAI)}
}

// ParseProvider converts a name to a ProviderType.
func ParseProvider(s string) (ProviderType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "static", "":
		return ProviderStatic, nil
	case "openai", "openai-compatible":
		return ProviderOpenAI, nil
	default:
		return "", amerrors.ConfigError(
			fmt.Sprintf("unknown embedding provider %q (valid: %s)", s, strings.Join(ValidProviders(), ", ")), nil)
	}
}

// Options selects and wraps an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int

	// CacheSize is the in-memory LRU size. Zero uses the default and a
	// negative value disables the cache.
	CacheSize int

	// PersistentDir enables the badger cache at that directory.
	PersistentDir string

	Logger *slog.Logger
}

// NewEmbedder builds the configured provider and wraps it with the
// persistent cache (when PersistentDir is set) and the LRU cache.
//
//	e, err := embed.NewEmbedder(ctx, embed.Options{
//		Provider:      embed.ProviderOpenAI,
//		Model:         "text-embedding-3-small",
//		PersistentDir: cfg.EmbeddingCacheDir(),
//	})
//
// Closing the returned Embedder closes every layer. A negative CacheSize
// leaves out the LRU.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	var embedder Embedder
	switch opts.Provider {
	case ProviderStatic, "":
		embedder = NewStaticEmbedderWithDimensions(staticWidth(opts.Dimensions))
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(ctx, OpenAIConfig{
			BaseURL:    opts.BaseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Logger:     opts.Logger,
		})
		if err != nil {
			return nil, err
		}
		embedder = e
	default:
		return nil, amerrors.ConfigError(fmt.Sprintf("unknown embedding provider %q", opts.Provider), nil)
	}

	if opts.PersistentDir != "" {
		p, err := NewPersistentCache(embedder, opts.PersistentDir, opts.Logger)
		if err != nil {
			_ = embedder.Close()
			return nil, err
		}
		embedder = p
	}
	if opts.CacheSize >= 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}

	opts.Logger.Debug("embedder ready",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))
	return embedder, nil
}

// staticWidth uses the corpus width unless another one is configured.
func staticWidth(dims int) int {
	if dims > 0 {
		return dims
	}
	return DefaultDimensions
}

// EmbedderInfo describes an embedder for status output.
type EmbedderInfo struct {
	Provider   ProviderType `json:"provider"`
	Model      string       `json:"model"`
	Dimensions int          `json:"dimensions"`
	Available  bool         `json:"available"`
}

// GetInfo reports the provider behind any cache wrappers. A nil embedder,
// as in lexical-only mode, yields the zero EmbedderInfo.
func GetInfo(ctx context.Context, embedder Embedder) EmbedderInfo {
	if embedder == nil {
		return EmbedderInfo{}
	}
	info := EmbedderInfo{
		Model:      embedder.ModelName(),
		Dimensions: embedder.Dimensions(),
		Available:  embedder.Available(ctx),
	}

	inner := embedder
	for {
		switch e := inner.(type) {
		case *CachedEmbedder:
			inner = e.inner
			continue
		case *PersistentCache:
			inner = e.inner
			continue
		case *OpenAIEmbedder:
			info.Provider = ProviderOpenAI
		default:
			info.Provider = ProviderStatic
		}
		return info
	}
}
