package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SpeechClient is the transcription surface of the Groq client.
type SpeechClient interface {
	Transcribe(ctx context.Context, audioPath, model, language string) (string, error)
}

// Transcriber converts an audio file into transcript text through the
// Whisper endpoint. It holds no state across calls.
type Transcriber struct {
	client   SpeechClient
	model    string
	language string
}

// NewTranscriber creates a Transcriber with the given model and language hint.
func NewTranscriber(client SpeechClient, model, language string) *Transcriber {
	return &Transcriber{client: client, model: model, language: language}
}

// Transcribe returns the transcript for the audio file at audioPath. A
// provider failure or an empty transcript is an error; degrading that into
// a usable response is the orchestrator's job, not this layer's.
func (t *Transcriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	text, err := t.client.Transcribe(ctx, audioPath, t.model, t.language)
	if err != nil {
		return "", fmt.Errorf("transcribing audio: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("transcription returned no text")
	}
	return text, nil
}
