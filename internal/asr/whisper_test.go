package asr

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinicvoice/internal/domain"
)

func TestWhisperEngineTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("authorization=%q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "ru" {
			t.Errorf("model=%q language=%q", r.FormValue("model"), r.FormValue("language"))
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			body, _ := io.ReadAll(f)
			if string(body) != "RIFF" {
				t.Errorf("file body=%q", body)
			}
		}
		_, _ = w.Write([]byte(`{"text":"  болит зуб "}`))
	}))
	defer srv.Close()

	e := NewWhisperEngine(srv.URL+"/v1/", "key", "", time.Second)
	text, err := e.Transcribe(context.Background(), []byte("RIFF"), Options{Language: domain.LangRU})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "болит зуб" {
		t.Fatalf("text=%q", text)
	}
}

func TestWhisperEngineOmitsUnknownLanguage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseMultipartForm(1 << 20)
		if _, ok := r.MultipartForm.Value["language"]; ok {
			t.Errorf("language should be omitted for unknown")
		}
		_, _ = w.Write([]byte(`{"text":"hello"}`))
	}))
	defer srv.Close()

	e := NewWhisperEngine(srv.URL, "", "whisper-large", time.Second)
	if _, err := e.Transcribe(context.Background(), []byte("x"), Options{Language: domain.LangUnknown}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWhisperEngineErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewWhisperEngine(srv.URL, "", "", time.Second)
	if _, err := e.Transcribe(context.Background(), []byte("x"), Options{}); err == nil {
		t.Fatal("expected error for 503")
	}
}
