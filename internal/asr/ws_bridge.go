package asr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"clinicvoice/internal/retry"
	"clinicvoice/internal/telephony"
)

const (
	bridgeFrameBytes   = 3200
	bridgeDefaultRate  = 8000
	bridgeEncoding     = "linear16"
	bridgeDialAttempts = 3
	bridgeDialDelay    = 500 * time.Millisecond
)

// WSBridgeEngine streams PCM to a recognizer bridge over a websocket and
// collects the transcript it sends back.
type WSBridgeEngine struct {
	BaseURL    string
	Timeout    time.Duration
	DialPolicy retry.Policy
	Dialer     *websocket.Dialer
}

func (e *WSBridgeEngine) Name() string {
	return "ws-bridge"
}

func (e *WSBridgeEngine) Transcribe(ctx context.Context, audio []byte, opts Options) (string, error) {
	if e.BaseURL == "" {
		return "", fmt.Errorf("ASR bridge URL is empty")
	}
	pcm, info, ok := telephony.StripWAVHeader(audio)
	if ok && info.SampleRate > 0 {
		opts.SampleRate = info.SampleRate
	}
	if opts.SampleRate <= 0 {
		opts.SampleRate = bridgeDefaultRate
	}
	if opts.Encoding == "" {
		opts.Encoding = bridgeEncoding
	}

	timeout := e.Timeout
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := e.dial(ctx, opts)
	if err != nil {
		return "", err
	}
	s := &bridgeStream{conn: conn}
	defer s.Close()

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := s.sendConfig(opts); err != nil {
		return "", fmt.Errorf("send bridge config: %w", err)
	}
	for start := 0; start < len(pcm); start += bridgeFrameBytes {
		end := min(start+bridgeFrameBytes, len(pcm))
		if err := s.PushAudio(pcm[start:end]); err != nil {
			return "", fmt.Errorf("push audio: %w", err)
		}
	}
	if err := s.Flush(); err != nil {
		return "", fmt.Errorf("flush bridge: %w", err)
	}
	return s.collect(ctx)
}

func (e *WSBridgeEngine) dial(ctx context.Context, opts Options) (*websocket.Conn, error) {
	u, err := url.Parse(e.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ASR bridge URL: %w", err)
	}
	q := u.Query()
	q.Set("session_id", uuid.NewString())
	if opts.Language.Known() {
		q.Set("language", string(opts.Language))
	}
	q.Set("sample_rate", strconv.Itoa(opts.SampleRate))
	q.Set("encoding", opts.Encoding)
	u.RawQuery = q.Encode()

	dialer := e.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	policy := e.DialPolicy
	if policy.MaxAttempts <= 0 {
		policy = retry.Policy{MaxAttempts: bridgeDialAttempts, Delay: bridgeDialDelay}
	}

	var conn *websocket.Conn
	err = retry.Do(ctx, policy, func(ctx context.Context) error {
		c, _, err := dialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			return err
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect ASR bridge failed after %d attempts: %w", policy.MaxAttempts, err)
	}
	return conn, nil
}

type bridgeStream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	once    sync.Once
}

type bridgeConfig struct {
	Event      string   `json:"event"`
	Language   string   `json:"language,omitempty"`
	SampleRate int      `json:"sample_rate"`
	Encoding   string   `json:"encoding"`
	Phrases    []string `json:"phrases,omitempty"`
}

func (s *bridgeStream) sendConfig(opts Options) error {
	cfg := bridgeConfig{
		Event:      "config",
		SampleRate: opts.SampleRate,
		Encoding:   opts.Encoding,
		Phrases:    opts.Phrases,
	}
	if opts.Language.Known() {
		cfg.Language = string(opts.Language)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(cfg)
}

func (s *bridgeStream) PushAudio(pcm16le []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, pcm16le)
}

func (s *bridgeStream) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(map[string]string{"event": "flush"})
}

// collect reads results until the bridge marks one final. Finals are joined;
// on timeout the latest partial is returned if there is one.
func (s *bridgeStream) collect(ctx context.Context) (string, error) {
	var finals []string
	partial := ""
	for {
		messageType, payload, err := s.conn.ReadMessage()
		if err != nil {
			text := strings.TrimSpace(strings.Join(append(finals, partial), " "))
			if text != "" {
				return text, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", fmt.Errorf("bridge read: %w", ctxErr)
			}
			return "", fmt.Errorf("bridge read: %w", err)
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var result streamResult
		if err := json.Unmarshal(payload, &result); err != nil {
			continue
		}
		if result.Error != "" {
			return "", errors.New("bridge error: " + result.Error)
		}
		if !result.IsFinal {
			partial = result.Text
			continue
		}
		if t := strings.TrimSpace(result.Text); t != "" {
			finals = append(finals, t)
		}
		return strings.Join(finals, " "), nil
	}
}

func (s *bridgeStream) Close() error {
	var err error
	s.once.Do(func() {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(time.Second))
		err = s.conn.Close()
	})
	return err
}
