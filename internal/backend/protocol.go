// Package backend provides the wire types and HTTP client for the
// panelscribe-server transcription and analysis endpoints.
package backend

import "time"

// Endpoint paths.
const (
	PathTranscribe = "/api/transcribe"
	PathAnalyze    = "/api/analyze"
	PathHealth     = "/api/health"
)

// AudioField is the multipart field carrying the segment.
const AudioField = "audio"

// TranscribeResponse is returned by POST /api/transcribe.
type TranscribeResponse struct {
	Success     bool   `json:"success"`
	Text        string `json:"text"`
	Demo        bool   `json:"demo,omitempty"`
	NeedsAPIKey bool   `json:"needsApiKey,omitempty"`
	Error       string `json:"error,omitempty"`
	Details     string `json:"details,omitempty"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	Prompt        string    `json:"prompt" validate:"required"`
	Conversation  string    `json:"conversation" validate:"required"`
	Question      string    `json:"question,omitempty"`
	StudentNames  []string  `json:"studentNames,omitempty"`
	QuestionIndex int       `json:"questionIndex,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// AnalyzeResponse is returned by POST /api/analyze.
type AnalyzeResponse struct {
	Success     bool      `json:"success"`
	Analysis    string    `json:"analysis,omitempty"`
	Model       string    `json:"model,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	Demo        bool      `json:"demo,omitempty"`
	NeedsAPIKey bool      `json:"needsApiKey,omitempty"`
	Error       string    `json:"error,omitempty"`
	Details     string    `json:"details,omitempty"`
}

// HealthResponse is returned by GET /api/health.
type HealthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	HasAPIKey          bool      `json:"hasApiKey"`
	DemoMode           bool      `json:"demoMode"`
	HasOpenAIKey       bool      `json:"hasOpenAIKey"`
	GPTAnalysisEnabled bool      `json:"gptAnalysisEnabled"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
