// Package embedding turns utterances into vectors for semantic intent matching.
package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Embedder returns a fixed-length vector for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Config struct {
	Provider      string // openai | ollama | gemini
	BaseURL       string
	APIKey        string
	Model         string
	GeminiAPIKey  string
	GeminiBaseURL string
	CacheDBPath   string
	Timeout       time.Duration
}

// New builds the configured embedder, wrapped in a SQLite cache when
// CacheDBPath is set. The returned close func releases the cache.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (Embedder, func() error, error) {
	var base Embedder
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		base = NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Model, FlavorOpenAI, cfg.Timeout)
	case "ollama":
		base = NewHTTPClient(cfg.BaseURL, "", cfg.Model, FlavorOllama, cfg.Timeout)
	case "gemini":
		g, err := NewGeminiClient(ctx, cfg.GeminiBaseURL, cfg.GeminiAPIKey, cfg.Model)
		if err != nil {
			return nil, nil, err
		}
		base = g
	default:
		return nil, nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Provider)
	}

	noop := func() error { return nil }
	if strings.TrimSpace(cfg.CacheDBPath) == "" {
		return base, noop, nil
	}
	store, err := OpenCacheStore(cfg.CacheDBPath)
	if err != nil {
		return nil, nil, err
	}
	return NewCachedEmbedder(base, store, cfg.Model, logger), store.Close, nil
}
