package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// WhisperEngine posts the whole clip to an OpenAI-compatible
// /audio/transcriptions endpoint.
type WhisperEngine struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
}

func NewWhisperEngine(baseURL, apiKey, model string, timeout time.Duration) *WhisperEngine {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if model == "" {
		model = "whisper-1"
	}
	return &WhisperEngine{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

func (e *WhisperEngine) Name() string {
	return "whisper"
}

func (e *WhisperEngine) Transcribe(ctx context.Context, audio []byte, opts Options) (string, error) {
	if len(audio) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.WriteField("model", e.Model); err != nil {
		return "", fmt.Errorf("write model field: %w", err)
	}
	if opts.Language.Known() {
		if err := mw.WriteField("language", string(opts.Language)); err != nil {
			return "", fmt.Errorf("write language field: %w", err)
		}
	}
	if len(opts.Phrases) > 0 {
		if err := mw.WriteField("prompt", strings.Join(opts.Phrases, ", ")); err != nil {
			return "", fmt.Errorf("write prompt field: %w", err)
		}
	}
	if err := mw.WriteField("response_format", "json"); err != nil {
		return "", fmt.Errorf("write response_format field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/audio/transcriptions", &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	resp, err := e.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("whisper request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("whisper error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode whisper response: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}
