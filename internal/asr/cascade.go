package asr

import (
	"context"
	"log/slog"
	"time"

	"clinicvoice/internal/domain"
)

type CascadeConfig struct {
	MinAudioBytes int
	SampleRate    int
	Phrases       []string
	Suspicion     Suspicion
}

// Result is the cascade's best-effort transcript for one clip.
type Result struct {
	Text      string
	Engine    string
	Language  domain.Language
	Escalated bool
	Reason    string
}

// Cascade runs the primary engine and hands suspicious or too-short clips to
// the secondary one. Engine failures never leave the cascade.
type Cascade struct {
	cfg       CascadeConfig
	primary   Transcriber
	secondary Transcriber
	redetect  func(text string) domain.Language
	logger    *slog.Logger
}

// NewCascade wires the two engines. redetect may be nil; when set it picks the
// secondary engine's language from the primary's partial text.
func NewCascade(cfg CascadeConfig, primary, secondary Transcriber, redetect func(string) domain.Language, logger *slog.Logger) *Cascade {
	return &Cascade{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		redetect:  redetect,
		logger:    logger,
	}
}

func (c *Cascade) Transcribe(ctx context.Context, audio []byte, lang domain.Language) Result {
	opts := Options{
		Language:   lang,
		SampleRate: c.cfg.SampleRate,
		Phrases:    c.cfg.Phrases,
	}

	if len(audio) < c.cfg.MinAudioBytes || c.primary == nil {
		return c.escalate(ctx, audio, opts, ReasonShortAudio, "")
	}

	text, err := c.run(ctx, c.primary, audio, opts)
	if err != nil {
		return c.escalate(ctx, audio, opts, ReasonPrimaryError, "")
	}
	if reason := c.cfg.Suspicion.Check(text); reason != "" {
		return c.escalate(ctx, audio, opts, reason, text)
	}
	return Result{Text: text, Engine: c.primary.Name(), Language: lang}
}

func (c *Cascade) escalate(ctx context.Context, audio []byte, opts Options, reason, partial string) Result {
	if c.secondary == nil {
		return Result{Text: partial, Language: opts.Language, Reason: reason}
	}
	if c.redetect != nil && partial != "" {
		if detected := c.redetect(partial); detected.Known() {
			opts.Language = detected
		}
	}
	c.logger.Info("transcription escalated",
		"reason", reason,
		"audio_bytes", len(audio),
		"language", opts.Language,
	)
	text, _ := c.run(ctx, c.secondary, audio, opts)
	return Result{
		Text:      text,
		Engine:    c.secondary.Name(),
		Language:  opts.Language,
		Escalated: true,
		Reason:    reason,
	}
}

func (c *Cascade) run(ctx context.Context, engine Transcriber, audio []byte, opts Options) (string, error) {
	started := time.Now()
	text, err := engine.Transcribe(ctx, audio, opts)
	if err != nil {
		c.logger.Warn("transcription failed",
			"engine", engine.Name(),
			"duration_ms", time.Since(started).Milliseconds(),
			"error", err,
		)
		return "", err
	}
	c.logger.Debug("transcription done",
		"engine", engine.Name(),
		"duration_ms", time.Since(started).Milliseconds(),
		"chars", len(text),
	)
	return text, nil
}
