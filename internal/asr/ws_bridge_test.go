package asr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"clinicvoice/internal/domain"
	"clinicvoice/internal/retry"
)

type bridgeCapture struct {
	mu         sync.Mutex
	query      map[string]string
	config     bridgeConfig
	audioBytes int
	frames     int
}

func newBridgeServer(t *testing.T, capture *bridgeCapture, reply []streamResult) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		capture.mu.Lock()
		capture.query = map[string]string{
			"language":    r.URL.Query().Get("language"),
			"sample_rate": r.URL.Query().Get("sample_rate"),
			"encoding":    r.URL.Query().Get("encoding"),
			"session_id":  r.URL.Query().Get("session_id"),
		}
		capture.mu.Unlock()
		for {
			mt, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				capture.mu.Lock()
				capture.audioBytes += len(payload)
				capture.frames++
				capture.mu.Unlock()
				continue
			}
			var event map[string]any
			_ = json.Unmarshal(payload, &event)
			switch event["event"] {
			case "config":
				capture.mu.Lock()
				_ = json.Unmarshal(payload, &capture.config)
				capture.mu.Unlock()
			case "flush":
				for _, res := range reply {
					_ = conn.WriteJSON(res)
				}
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSBridgeEngineTranscribe(t *testing.T) {
	capture := &bridgeCapture{}
	srv := newBridgeServer(t, capture, []streamResult{
		{Text: "my", IsFinal: false},
		{Text: "my tooth hurts", IsFinal: true},
	})
	defer srv.Close()

	e := &WSBridgeEngine{BaseURL: wsURL(srv.URL), Timeout: 2 * time.Second}
	text, err := e.Transcribe(context.Background(), make([]byte, 7000), Options{
		Language:   domain.LangEN,
		SampleRate: 8000,
		Phrases:    []string{"dental cleaning"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "my tooth hurts" {
		t.Fatalf("text=%q", text)
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if capture.audioBytes != 7000 || capture.frames != 3 {
		t.Fatalf("audio bytes=%d frames=%d, want 7000 in 3 frames", capture.audioBytes, capture.frames)
	}
	if capture.query["language"] != "en" || capture.query["sample_rate"] != "8000" || capture.query["encoding"] != "linear16" {
		t.Fatalf("query=%v", capture.query)
	}
	if capture.query["session_id"] == "" {
		t.Fatal("expected a session id")
	}
	if len(capture.config.Phrases) != 1 || capture.config.Phrases[0] != "dental cleaning" {
		t.Fatalf("config phrases=%v", capture.config.Phrases)
	}
}

func TestWSBridgeEngineTimeoutReturnsPartial(t *testing.T) {
	capture := &bridgeCapture{}
	srv := newBridgeServer(t, capture, []streamResult{{Text: "привет", IsFinal: false}})
	defer srv.Close()

	e := &WSBridgeEngine{BaseURL: wsURL(srv.URL), Timeout: 300 * time.Millisecond}
	text, err := e.Transcribe(context.Background(), make([]byte, 3200), Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "привет" {
		t.Fatalf("text=%q, want partial", text)
	}
}

func TestWSBridgeEngineDialFailure(t *testing.T) {
	e := &WSBridgeEngine{
		BaseURL:    "ws://127.0.0.1:1/stream",
		Timeout:    time.Second,
		DialPolicy: retry.Policy{MaxAttempts: 2, Delay: time.Millisecond},
	}
	if _, err := e.Transcribe(context.Background(), make([]byte, 3200), Options{}); err == nil {
		t.Fatal("expected dial error")
	}
}
