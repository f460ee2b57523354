// Package provider adapts third-party speech-to-text and chat APIs for
// panelscribe-server.
package provider

import (
	"context"
	"errors"
)

// ErrNoKey is returned when a provider is built without an API key.
var ErrNoKey = errors.New("provider API key not set")

// Transcriber converts an audio segment to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	Name() string
}

// Analyzer produces an assessment of one transcript.
type Analyzer interface {
	Analyze(ctx context.Context, prompt, conversation string) (string, error)
	Model() string
}

// SystemPrompt frames every analysis request.
const SystemPrompt = "You are an expert educational assessment assistant. Analyze group discussions with focus on collaborative communication, argument quality, and learning outcomes. Always use only actual quotes from the provided transcript - never create or imagine content that wasn't actually said."

// UserMessage joins the analysis prompt and the transcript.
func UserMessage(prompt, conversation string) string {
	return prompt + "\n\n**TRANSCRIPT TO ANALYZE:**\n" + conversation
}
