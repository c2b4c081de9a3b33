package asr

import (
	"context"

	"clinicvoice/internal/domain"
)

// Options describe the audio handed to a Transcriber.
type Options struct {
	Language   domain.Language
	SampleRate int
	Encoding   string
	Phrases    []string
}

// Transcriber turns one recorded clip into text. An empty string with a nil
// error means the engine heard nothing usable.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte, opts Options) (string, error)
}

// streamResult is the message shape the recognizer bridge sends back.
type streamResult struct {
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
	Error   string `json:"error,omitempty"`
}
