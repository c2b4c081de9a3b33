package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"clinicvoice/internal/catalog"
	"clinicvoice/internal/config"
	"clinicvoice/internal/embedding"
)

func main() {
	_ = godotenv.Load()

	in := flag.String("in", "", "intent catalog YAML to read")
	out := flag.String("out", "", "where to write the embedded catalog (default: overwrite -in)")
	force := flag.Bool("force", false, "re-embed intents that already carry embeddings")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: catalog-embed -in catalog.yaml [-out embedded.yaml] [-force]")
		os.Exit(2)
	}
	if *out == "" {
		*out = *in
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadCatalogEmbedConfig()
	embedder, closeEmb, err := embedding.New(ctx, embedding.Config{
		Provider:      cfg.EmbeddingProvider,
		BaseURL:       cfg.EmbeddingBaseURL,
		APIKey:        cfg.EmbeddingAPIKey,
		Model:         cfg.EmbeddingModel,
		GeminiAPIKey:  cfg.GeminiAPIKey,
		GeminiBaseURL: cfg.GeminiBaseURL,
		CacheDBPath:   cfg.EmbeddingCacheDB,
	}, logger)
	if err != nil {
		logger.Error("init embedder failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = closeEmb() }()

	cat, err := catalog.Load(*in)
	if err != nil {
		logger.Error("load catalog failed", "error", err)
		os.Exit(1)
	}

	embedded, stats, err := embedCatalog(ctx, cat, embedder, *force)
	if err != nil {
		logger.Error("embed catalog failed", "error", err)
		os.Exit(1)
	}
	data, err := embedded.Marshal()
	if err != nil {
		logger.Error("encode catalog failed", "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		logger.Error("write catalog failed", "path", *out, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog embedded",
		"path", *out,
		"model", cfg.EmbeddingModel,
		"dimension", embedded.Dimension(),
		"intents", stats.intents,
		"embedded_examples", stats.embedded,
		"kept_examples", stats.kept,
	)
}

type embedStats struct {
	intents  int
	embedded int
	kept     int
}

// embedCatalog returns a copy of cat with one embedding per example. Intents
// whose embeddings already line up with their examples are kept unless force
// is set.
func embedCatalog(ctx context.Context, cat *catalog.Catalog, embedder embedding.Embedder, force bool) (*catalog.Catalog, embedStats, error) {
	var stats embedStats
	dimension := 0
	if !force {
		dimension = cat.Dimension()
	}

	records := make([]catalog.IntentRecord, 0, len(cat.Records()))
	for _, rec := range cat.Records() {
		stats.intents++
		if !force && cat.Dimension() > 0 && len(rec.Embeddings) == len(rec.Examples) {
			records = append(records, rec)
			stats.kept += len(rec.Examples)
			continue
		}

		vectors := make([][]float32, 0, len(rec.Examples))
		for _, example := range rec.Examples {
			vec, err := embedder.Embed(ctx, example)
			if err != nil {
				return nil, stats, fmt.Errorf("intent %s example %q: %w", rec.Name, example, err)
			}
			if dimension == 0 {
				dimension = len(vec)
			}
			if len(vec) != dimension {
				return nil, stats, fmt.Errorf("intent %s example %q: %w: got %d, want %d",
					rec.Name, example, catalog.ErrDimensionMismatch, len(vec), dimension)
			}
			vectors = append(vectors, vec)
			stats.embedded++
		}
		rec.Embeddings = vectors
		records = append(records, rec)
	}

	out, err := catalog.New(dimension, records)
	if err != nil {
		return nil, stats, err
	}
	return out, stats, nil
}
