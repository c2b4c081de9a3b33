package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type VoiceServerConfig struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string
	PublicURL string
	APIKey    string

	CaptureMode string
	TTSVoice    string

	TwilioAccountSID string
	TwilioAuthToken  string

	FetchSettleDelay time.Duration
	FetchAttempts    int
	FetchDelay       time.Duration
	FetchJitter      time.Duration

	PrimarySTTURL     string
	PrimarySTTTimeout time.Duration
	SampleRate        int
	SecondarySTTURL   string
	SecondarySTTKey   string
	SecondarySTTModel string
	MinAudioBytes     int
	MinTranscriptLen  int

	CatalogPath  string
	LexiconPath  string
	FallbackLang string
	LanguageMode string

	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	EmbeddingCacheDB  string

	SemanticThreshold   float64
	LexicalThreshold    float64
	ClassifierThreshold float64
	EscalationThreshold int
	HistoryLimit        int

	LLMProvider      string
	LLMModel         string
	LLMTimeout       time.Duration
	OpenAIBaseURL    string
	OpenAIAPIKey     string
	AnthropicBaseURL string
	AnthropicAPIKey  string
	GeminiAPIKey     string
	GeminiBaseURL    string

	OperatorNumber  string
	SessionTTL      time.Duration
	JanitorInterval time.Duration

	DBDSN           string
	MQTTBrokerURL   string
	MQTTClientID    string
	MQTTUsername    string
	MQTTPassword    string
	MQTTTopicPrefix string
	OperatorTTL     time.Duration
}

type CatalogEmbedConfig struct {
	EmbeddingProvider string
	EmbeddingBaseURL  string
	EmbeddingAPIKey   string
	EmbeddingModel    string
	GeminiAPIKey      string
	GeminiBaseURL     string
	EmbeddingCacheDB  string
}

func LoadVoiceServerConfig() (VoiceServerConfig, error) {
	cfg := VoiceServerConfig{
		HTTPAddr:  getenvDefault("VOICE_HTTP_ADDR", ":9020"),
		LogLevel:  getenvDefault("LOG_LEVEL", "info"),
		LogFormat: getenvDefault("LOG_FORMAT", "text"),
		PublicURL: strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		APIKey:    os.Getenv("VOICE_API_KEY"),

		CaptureMode: strings.ToLower(getenvDefault("VOICE_CAPTURE_MODE", "record")),
		TTSVoice:    os.Getenv("TTS_VOICE"),

		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),

		FetchSettleDelay: getenvDurationMSDefault("FETCH_SETTLE_MS", 1500),
		FetchAttempts:    getenvIntDefault("FETCH_ATTEMPTS", 2),
		FetchDelay:       getenvDurationMSDefault("FETCH_RETRY_DELAY_MS", 750),
		FetchJitter:      getenvDurationMSDefault("FETCH_RETRY_JITTER_MS", 0),

		PrimarySTTURL:     os.Getenv("PRIMARY_STT_URL"),
		PrimarySTTTimeout: getenvDurationMSDefault("PRIMARY_STT_TIMEOUT_MS", 8000),
		SampleRate:        getenvIntDefault("TELEPHONY_SAMPLE_RATE", 8000),
		SecondarySTTURL:   strings.TrimRight(getenvDefault("SECONDARY_STT_BASE_URL", "https://api.openai.com/v1"), "/"),
		SecondarySTTKey:   os.Getenv("SECONDARY_STT_API_KEY"),
		SecondarySTTModel: getenvDefault("SECONDARY_STT_MODEL", "whisper-1"),
		MinAudioBytes:     getenvIntDefault("MIN_AUDIO_BYTES", 3200),
		MinTranscriptLen:  getenvIntDefault("MIN_TRANSCRIPT_CHARS", 3),

		CatalogPath:  os.Getenv("INTENT_CATALOG_PATH"),
		LexiconPath:  os.Getenv("LEXICON_PATH"),
		FallbackLang: getenvDefault("FALLBACK_LANGUAGE", "en"),
		LanguageMode: strings.ToLower(getenvDefault("LANGUAGE_DETECT_MODE", "ordered")),

		EmbeddingProvider: getenvDefault("EMBEDDING_PROVIDER", "openai"),
		EmbeddingBaseURL:  strings.TrimRight(getenvDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1"), "/"),
		EmbeddingAPIKey:   os.Getenv("EMBEDDING_API_KEY"),
		EmbeddingModel:    getenvDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		EmbeddingCacheDB:  os.Getenv("EMBEDDING_CACHE_DB"),

		SemanticThreshold:   getenvFloatDefault("SEMANTIC_THRESHOLD", 0.8),
		LexicalThreshold:    getenvFloatDefault("LEXICAL_THRESHOLD", 0.5),
		ClassifierThreshold: getenvFloatDefault("CLASSIFIER_THRESHOLD", 0.6),
		EscalationThreshold: getenvIntDefault("ESCALATION_THRESHOLD", 2),
		HistoryLimit:        getenvIntDefault("HISTORY_LIMIT", 2),

		LLMProvider:      getenvDefault("LLM_PROVIDER", "openai"),
		LLMModel:         getenvDefault("LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout:       time.Duration(getenvIntDefault("LLM_TIMEOUT_SECONDS", 10)) * time.Second,
		OpenAIBaseURL:    getenvDefault("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		AnthropicBaseURL: getenvDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
		AnthropicAPIKey:  os.Getenv("ANTHROPIC_API_KEY"),
		GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:    os.Getenv("GEMINI_BASE_URL"),

		OperatorNumber:  os.Getenv("OPERATOR_NUMBER"),
		SessionTTL:      time.Duration(getenvIntDefault("SESSION_TTL_MINUTES", 30)) * time.Minute,
		JanitorInterval: time.Duration(getenvIntDefault("SESSION_JANITOR_SECONDS", 60)) * time.Second,

		DBDSN:           os.Getenv("DB_DSN"),
		MQTTBrokerURL:   os.Getenv("MQTT_BROKER_URL"),
		MQTTClientID:    getenvDefault("MQTT_CLIENT_ID", "clinic-voice"),
		MQTTUsername:    os.Getenv("MQTT_USERNAME"),
		MQTTPassword:    os.Getenv("MQTT_PASSWORD"),
		MQTTTopicPrefix: getenvDefault("MQTT_TOPIC_PREFIX", "clinic"),
		OperatorTTL:     time.Duration(getenvIntDefault("OPERATOR_TTL_SECONDS", 90)) * time.Second,
	}

	if cfg.SecondarySTTKey == "" {
		cfg.SecondarySTTKey = cfg.OpenAIAPIKey
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = cfg.OpenAIAPIKey
	}

	if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" {
		return VoiceServerConfig{}, fmt.Errorf("TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required")
	}
	if cfg.CatalogPath == "" {
		return VoiceServerConfig{}, fmt.Errorf("INTENT_CATALOG_PATH is required")
	}
	if cfg.OperatorNumber == "" {
		return VoiceServerConfig{}, fmt.Errorf("OPERATOR_NUMBER is required")
	}
	if cfg.LLMProvider == "openai" && cfg.OpenAIAPIKey == "" {
		return VoiceServerConfig{}, fmt.Errorf("OPENAI_API_KEY is required when LLM_PROVIDER=openai")
	}
	if cfg.LLMProvider == "claude" && cfg.AnthropicAPIKey == "" {
		return VoiceServerConfig{}, fmt.Errorf("ANTHROPIC_API_KEY is required when LLM_PROVIDER=claude")
	}
	if cfg.LLMProvider == "gemini" && cfg.GeminiAPIKey == "" {
		return VoiceServerConfig{}, fmt.Errorf("GEMINI_API_KEY is required when LLM_PROVIDER=gemini")
	}
	if cfg.EmbeddingProvider == "gemini" && cfg.GeminiAPIKey == "" {
		return VoiceServerConfig{}, fmt.Errorf("GEMINI_API_KEY is required when EMBEDDING_PROVIDER=gemini")
	}
	if cfg.CaptureMode != "record" && cfg.CaptureMode != "gather" {
		return VoiceServerConfig{}, fmt.Errorf("VOICE_CAPTURE_MODE must be record or gather, got %q", cfg.CaptureMode)
	}
	if cfg.LanguageMode != "ordered" && cfg.LanguageMode != "vote" {
		return VoiceServerConfig{}, fmt.Errorf("LANGUAGE_DETECT_MODE must be ordered or vote, got %q", cfg.LanguageMode)
	}
	if cfg.EscalationThreshold < 1 {
		return VoiceServerConfig{}, fmt.Errorf("ESCALATION_THRESHOLD must be positive, got %d", cfg.EscalationThreshold)
	}
	for name, v := range map[string]float64{
		"SEMANTIC_THRESHOLD":   cfg.SemanticThreshold,
		"LEXICAL_THRESHOLD":    cfg.LexicalThreshold,
		"CLASSIFIER_THRESHOLD": cfg.ClassifierThreshold,
	} {
		if v < 0 || v > 1 {
			return VoiceServerConfig{}, fmt.Errorf("%s must be within [0,1], got %f", name, v)
		}
	}

	return cfg, nil
}

func LoadCatalogEmbedConfig() CatalogEmbedConfig {
	key := os.Getenv("EMBEDDING_API_KEY")
	if key == "" {
		key = os.Getenv("OPENAI_API_KEY")
	}
	return CatalogEmbedConfig{
		EmbeddingProvider: getenvDefault("EMBEDDING_PROVIDER", "openai"),
		EmbeddingBaseURL:  strings.TrimRight(getenvDefault("EMBEDDING_BASE_URL", "https://api.openai.com/v1"), "/"),
		EmbeddingAPIKey:   key,
		EmbeddingModel:    getenvDefault("EMBEDDING_MODEL", "text-embedding-3-small"),
		GeminiAPIKey:      os.Getenv("GEMINI_API_KEY"),
		GeminiBaseURL:     os.Getenv("GEMINI_BASE_URL"),
		EmbeddingCacheDB:  os.Getenv("EMBEDDING_CACHE_DB"),
	}
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}

func getenvFloatDefault(key string, val float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return val
	}
	return f
}

func getenvDurationMSDefault(key string, ms int) time.Duration {
	return time.Duration(getenvIntDefault(key, ms)) * time.Millisecond
}
