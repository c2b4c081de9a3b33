package telephony

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"clinicvoice/internal/retry"
)

// ErrNoAudio is returned when a recording could not be fetched after all attempts.
var ErrNoAudio = errors.New("no audio")

type AcquirerConfig struct {
	AccountSID  string
	AuthToken   string
	SettleDelay time.Duration
	Policy      retry.Policy
	Timeout     time.Duration
}

// Acquirer downloads call recordings from the telephony vendor.
type Acquirer struct {
	cfg    AcquirerConfig
	http   *http.Client
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewAcquirer(cfg AcquirerConfig, logger *slog.Logger) *Acquirer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = retry.DefaultFetchPolicy()
	}
	return &Acquirer{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Fetch returns the raw recording bytes or ErrNoAudio.
func (a *Acquirer) Fetch(ctx context.Context, recordingURL string) ([]byte, error) {
	recordingURL = strings.TrimSpace(recordingURL)
	if recordingURL == "" {
		return nil, ErrNoAudio
	}
	target := recordingURL
	if path.Ext(target) == "" {
		target += ".wav"
	}

	// Recordings are not always downloadable the moment the webhook fires.
	if a.cfg.SettleDelay > 0 {
		if err := a.sleep(ctx, a.cfg.SettleDelay); err != nil {
			return nil, ErrNoAudio
		}
	}

	var audio []byte
	attempt := 0
	err := retry.Do(ctx, a.cfg.Policy, func(ctx context.Context) error {
		attempt++
		body, err := a.get(ctx, target)
		if err != nil {
			a.logger.Warn("recording fetch failed", "attempt", attempt, "url", target, "error", err)
			return err
		}
		audio = body
		return nil
	})
	if err != nil {
		return nil, ErrNoAudio
	}
	return audio, nil
}

func (a *Acquirer) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	if a.cfg.AccountSID != "" {
		req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, retry.Permanent(fmt.Errorf("recording status %d", resp.StatusCode))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("recording status %d", resp.StatusCode)
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("empty recording body")
	}
	return body, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
