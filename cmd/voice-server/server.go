package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"clinicvoice/internal/dialogue"
	"clinicvoice/internal/domain"
	"clinicvoice/internal/telephony"
)

type turnService interface {
	StartCall(ctx context.Context, callID, callerNumber string) (domain.SpokenReplyPlan, error)
	ProcessTurn(ctx context.Context, callID string, in domain.TurnInput) (domain.SpokenReplyPlan, error)
	EndCall(callID string)
}

type turnLog interface {
	CallTurns(ctx context.Context, callID string, limit int) ([]domain.TurnRecord, error)
}

type server struct {
	svc     turnService
	turns   turnLog
	reply   telephony.ReplyOptions
	metrics http.Handler
	health  func(ctx context.Context) error
	apiKey  string
	logger  *slog.Logger
}

// turnRequest is the JSON body of POST /v1/turns.
type turnRequest struct {
	CallID       string `json:"call_id"`
	RecordingURL string `json:"recording_url,omitempty"`
	SpeechText   string `json:"speech_text,omitempty"`
	CallerNumber string `json:"caller_number,omitempty"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/voice", func(r chi.Router) {
		r.Post("/incoming", s.handleIncoming)
		r.Post("/turn", s.handleTurn)
		r.Post("/status", s.handleStatus)
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(s.apiKey))
		r.Post("/v1/turns", s.handleJSONTurn)
		r.Get("/v1/calls/{callID}/turns", s.handleCallTurns)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, req *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := s.health(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleIncoming(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	plan, err := s.svc.StartCall(req.Context(), req.PostForm.Get("CallSid"), req.PostForm.Get("From"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeTwiML(w, plan)
}

func (s *server) handleTurn(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	plan, err := s.svc.ProcessTurn(req.Context(), req.PostForm.Get("CallSid"), domain.TurnInput{
		RecordingURL: req.PostForm.Get("RecordingUrl"),
		SpeechText:   req.PostForm.Get("SpeechResult"),
		CallerNumber: req.PostForm.Get("From"),
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeTwiML(w, plan)
}

// handleStatus drops the session once the vendor reports the call finished.
func (s *server) handleStatus(w http.ResponseWriter, req *http.Request) {
	if err := req.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	callID := req.PostForm.Get("CallSid")
	switch strings.ToLower(req.PostForm.Get("CallStatus")) {
	case "completed", "busy", "failed", "no-answer", "canceled":
		if callID != "" {
			s.svc.EndCall(callID)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleJSONTurn(w http.ResponseWriter, req *http.Request) {
	var body turnRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	if body.CallID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "call_id is required"})
		return
	}
	if body.RecordingURL != "" && body.SpeechText != "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "send recording_url or speech_text, not both"})
		return
	}
	plan, err := s.svc.ProcessTurn(req.Context(), body.CallID, domain.TurnInput{
		RecordingURL: body.RecordingURL,
		SpeechText:   body.SpeechText,
		CallerNumber: body.CallerNumber,
	})
	if err != nil {
		s.logger.Error("turn failed", "call_id", body.CallID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

func (s *server) handleCallTurns(w http.ResponseWriter, req *http.Request) {
	if s.turns == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "turn log is not configured"})
		return
	}
	callID := chi.URLParam(req, "callID")
	turns, err := s.turns.CallTurns(req.Context(), callID, 100)
	if err != nil {
		s.logger.Error("load call turns failed", "call_id", callID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "load turns failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"call_id": callID, "turns": turns})
}

func (s *server) writeTwiML(w http.ResponseWriter, plan domain.SpokenReplyPlan) {
	body, err := telephony.RenderReply(plan, s.reply)
	if err != nil {
		s.logger.Error("render twiml failed", "error", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, dialogue.ErrMissingCallID) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Error("voice webhook failed", "error", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

func recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", "error", err, "path", r.URL.Path)
					http.Error(w, "internal error", http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// bearerAuth is a passthrough when apiKey is empty.
func bearerAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey != "" && r.Header.Get("Authorization") != "Bearer "+apiKey {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
