package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"clinicvoice/internal/asr"
	"clinicvoice/internal/catalog"
	"clinicvoice/internal/config"
	"clinicvoice/internal/db"
	"clinicvoice/internal/dialogue"
	"clinicvoice/internal/domain"
	"clinicvoice/internal/embedding"
	"clinicvoice/internal/intent"
	"clinicvoice/internal/language"
	"clinicvoice/internal/lexicon"
	"clinicvoice/internal/llm"
	"clinicvoice/internal/metrics"
	"clinicvoice/internal/mqtt"
	"clinicvoice/internal/retry"
	"clinicvoice/internal/telephony"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadVoiceServerConfig()
	if err != nil {
		slog.Error("load config failed", "error", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := metrics.New("clinicvoice")

	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		logger.Error("load lexicon failed", "error", err)
		os.Exit(1)
	}
	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load intent catalog failed", "error", err)
		os.Exit(1)
	}

	llmProvider, err := llm.NewProvider(ctx, llm.Config{
		Provider:         strings.ToLower(cfg.LLMProvider),
		Model:            cfg.LLMModel,
		Timeout:          cfg.LLMTimeout,
		OpenAIBaseURL:    cfg.OpenAIBaseURL,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		AnthropicBaseURL: cfg.AnthropicBaseURL,
		AnthropicAPIKey:  cfg.AnthropicAPIKey,
		GeminiAPIKey:     cfg.GeminiAPIKey,
		GeminiBaseURL:    cfg.GeminiBaseURL,
	})
	if err != nil {
		logger.Error("init llm provider failed", "error", err)
		os.Exit(1)
	}

	var embedder embedding.Embedder
	if cat.Embedded() {
		emb, closeEmb, err := embedding.New(ctx, embedding.Config{
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
		defer func() {
			if err := closeEmb(); err != nil {
				logger.Warn("close embedding cache failed", "error", err)
			}
		}()
		if err := checkEmbedder(ctx, emb, cat); err != nil {
			logger.Error("embedder does not match intent catalog", "error", err, "model", cfg.EmbeddingModel)
			os.Exit(1)
		}
		embedder = emb
	} else {
		logger.Warn("intent catalog has no embeddings, semantic matching disabled", "path", cfg.CatalogPath)
	}

	intents := intent.NewResolver(cat, embedder, llmProvider, intent.ResolverConfig{
		Thresholds: intent.Thresholds{
			Semantic:   cfg.SemanticThreshold,
			Lexical:    cfg.LexicalThreshold,
			Classifier: cfg.ClassifierThreshold,
		},
		ClassifierModel: cfg.LLMModel,
	}, m, logger)

	languages := language.NewResolver(lex, language.Mode(cfg.LanguageMode), logger)

	acquirer := telephony.NewAcquirer(telephony.AcquirerConfig{
		AccountSID:  cfg.TwilioAccountSID,
		AuthToken:   cfg.TwilioAuthToken,
		SettleDelay: cfg.FetchSettleDelay,
		Policy: retry.Policy{
			MaxAttempts: cfg.FetchAttempts,
			Delay:       cfg.FetchDelay,
			Jitter:      cfg.FetchJitter,
		},
	}, logger)

	var primary asr.Transcriber
	if cfg.PrimarySTTURL != "" {
		primary = &asr.WSBridgeEngine{BaseURL: cfg.PrimarySTTURL, Timeout: cfg.PrimarySTTTimeout}
	} else {
		logger.Warn("PRIMARY_STT_URL not set, every clip goes to the secondary engine")
	}
	secondary := asr.NewWhisperEngine(cfg.SecondarySTTURL, cfg.SecondarySTTKey, cfg.SecondarySTTModel, 20*time.Second)
	cascade := asr.NewCascade(asr.CascadeConfig{
		MinAudioBytes: cfg.MinAudioBytes,
		SampleRate:    cfg.SampleRate,
		Phrases:       lex.PhraseHints,
		Suspicion: asr.Suspicion{
			MinChars:  cfg.MinTranscriptLen,
			Denylist:  lex.Denylist,
			Allowlist: lex.Allowlist,
		},
	}, primary, secondary, languages.Detect, logger)

	var (
		profiles dialogue.ProfileStore
		turns    turnLog
		health   func(context.Context) error
	)
	if cfg.DBDSN != "" {
		store, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			logger.Error("connect db failed", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		if err := store.Migrate(ctx); err != nil {
			logger.Error("migrate db failed", "error", err)
			os.Exit(1)
		}
		profiles, turns, health = store, store, store.Ping
	} else {
		logger.Warn("DB_DSN not set, caller profiles and turn log disabled")
	}

	var events dialogue.CallEvents
	if cfg.MQTTBrokerURL != "" {
		hub := mqtt.NewHub(mqtt.HubConfig{
			BrokerURL:   cfg.MQTTBrokerURL,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
		}, mqtt.NewOperatorRegistry(cfg.OperatorTTL), logger)
		if err := hub.Start(ctx); err != nil {
			logger.Error("start mqtt hub failed", "error", err)
			os.Exit(1)
		}
		events = hub
	}

	sessions := dialogue.NewSessionManager(cfg.SessionTTL, m, logger)
	go sessions.RunJanitor(ctx, cfg.JanitorInterval)

	svc := dialogue.NewService(dialogue.Config{
		EscalationThreshold: cfg.EscalationThreshold,
		HistoryLimit:        cfg.HistoryLimit,
		MinTranscriptLen:    cfg.MinTranscriptLen,
		FallbackLanguage:    domain.ParseLanguage(cfg.FallbackLang),
		OperatorNumber:      cfg.OperatorNumber,
		LLMModel:            cfg.LLMModel,
	}, dialogue.Deps{
		Sessions:  sessions,
		Lexicon:   lex,
		Acquirer:  acquirer,
		Cascade:   cascade,
		Languages: languages,
		Intents:   intents,
		LLM:       llmProvider,
		Profiles:  profiles,
		Events:    events,
		Metrics:   m,
		Logger:    logger,
	})

	srv := &server{
		svc:   svc,
		turns: turns,
		reply: telephony.ReplyOptions{
			TurnURL: cfg.PublicURL + "/voice/turn",
			Capture: telephony.CaptureMode(cfg.CaptureMode),
			Voice:   cfg.TTSVoice,
			Hints:   lex.PhraseHints,
		},
		metrics: m.Handler(),
		health:  health,
		apiKey:  cfg.APIKey,
		logger:  logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("voice server started",
			"addr", cfg.HTTPAddr,
			"intents", len(cat.Names()),
			"semantic", embedder != nil,
			"language_mode", cfg.LanguageMode,
			"capture", cfg.CaptureMode,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
}

func newLogger(format, level string) *slog.Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.ToLower(format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// checkEmbedder embeds one sample and compares its size with the catalog.
func checkEmbedder(ctx context.Context, emb embedding.Embedder, cat *catalog.Catalog) error {
	vec, err := emb.Embed(ctx, "hello")
	if err != nil {
		return fmt.Errorf("embed sample: %w", err)
	}
	if len(vec) != cat.Dimension() {
		return fmt.Errorf("%w: embedder returns %d, catalog has %d",
			catalog.ErrDimensionMismatch, len(vec), cat.Dimension())
	}
	return nil
}
