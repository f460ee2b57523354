package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/jwulff/panelscribe/internal/backend"
)

const elevenLabsURL = "https://api.elevenlabs.io"

// ElevenLabsOptions configures the speech-to-text client. Zero fields take
// defaults.
type ElevenLabsOptions struct {
	Model    string // default scribe_v1
	Language string // default eng
	BaseURL  string
	HTTP     *http.Client
}

// ElevenLabs transcribes with the ElevenLabs speech-to-text API.
type ElevenLabs struct {
	key  string
	opts ElevenLabsOptions
}

// NewElevenLabs returns a transcriber using key.
func NewElevenLabs(key string, opts ElevenLabsOptions) (*ElevenLabs, error) {
	if key == "" {
		return nil, ErrNoKey
	}
	if opts.Model == "" {
		opts.Model = "scribe_v1"
	}
	if opts.Language == "" {
		opts.Language = "eng"
	}
	if opts.BaseURL == "" {
		opts.BaseURL = elevenLabsURL
	}
	if opts.HTTP == nil {
		opts.HTTP = &http.Client{Timeout: 90 * time.Second}
	}
	return &ElevenLabs{key: key, opts: opts}, nil
}

func (e *ElevenLabs) Name() string { return "elevenlabs" }

type elevenLabsResponse struct {
	Text string `json:"text"`
}

func (e *ElevenLabs) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fields := map[string]string{
		"model_id":         e.opts.Model,
		"language_code":    e.opts.Language,
		"diarize":          "false",
		"tag_audio_events": "false",
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", fmt.Errorf("write field %s: %w", k, err)
		}
	}

	if mimeType == "" {
		mimeType = "audio/webm"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, "audio"+backend.Extension(mimeType)))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("create part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.opts.BaseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("xi-api-key", e.key)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.opts.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("elevenlabs: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("elevenlabs: status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var out elevenLabsResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("elevenlabs: decode response: %w", err)
	}
	return out.Text, nil
}
