package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestElevenLabsTranscribe(t *testing.T) {
	var got struct {
		key, model, lang, diarize, events, mime string
		audio                                   []byte
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/speech-to-text" {
			t.Errorf("path = %q", r.URL.Path)
		}
		got.key = r.Header.Get("xi-api-key")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		got.model = r.FormValue("model_id")
		got.lang = r.FormValue("language_code")
		got.diarize = r.FormValue("diarize")
		got.events = r.FormValue("tag_audio_events")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		got.mime = hdr.Header.Get("Content-Type")
		got.audio, _ = io.ReadAll(f)
		w.Write([]byte(`{"text":"Hello there"}`))
	}))
	defer srv.Close()

	e, err := NewElevenLabs("xi-key", ElevenLabsOptions{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewElevenLabs: %v", err)
	}
	text, err := e.Transcribe(context.Background(), []byte("RIFFdata"), "audio/wav")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Hello there" {
		t.Errorf("text = %q, want %q", text, "Hello there")
	}
	if got.key != "xi-key" {
		t.Errorf("api key header = %q", got.key)
	}
	if got.model != "scribe_v1" || got.lang != "eng" || got.diarize != "false" || got.events != "false" {
		t.Errorf("fields = %s/%s/%s/%s", got.model, got.lang, got.diarize, got.events)
	}
	if got.mime != "audio/wav" || string(got.audio) != "RIFFdata" {
		t.Errorf("file = %q (%s)", got.audio, got.mime)
	}
}

func TestElevenLabsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	e, _ := NewElevenLabs("bad", ElevenLabsOptions{BaseURL: srv.URL})
	_, err := e.Transcribe(context.Background(), []byte("x"), "audio/webm")
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("err = %v, want status 401", err)
	}
}

func TestNoKey(t *testing.T) {
	if _, err := NewElevenLabs("", ElevenLabsOptions{}); !errors.Is(err, ErrNoKey) {
		t.Errorf("elevenlabs err = %v, want ErrNoKey", err)
	}
	if _, err := NewOpenAI("", OpenAIOptions{}); !errors.Is(err, ErrNoKey) {
		t.Errorf("openai err = %v, want ErrNoKey", err)
	}
}

func TestOpenAIAnalyze(t *testing.T) {
	var req struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-test" {
			t.Errorf("authorization = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-4","choices":[{"index":0,"message":{"role":"assistant","content":"Strong teamwork."},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	o, err := NewOpenAI("sk-test", OpenAIOptions{BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	out, err := o.Analyze(context.Background(), "Assess teamwork", "[Alice]: Hello\n\n")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out != "Strong teamwork." {
		t.Errorf("analysis = %q", out)
	}
	if req.Model != "gpt-4" || req.MaxTokens != 2000 || req.Temperature != 0.3 {
		t.Errorf("request = %s/%d/%v, want gpt-4/2000/0.3", req.Model, req.MaxTokens, req.Temperature)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" || req.Messages[0].Content != SystemPrompt {
		t.Fatalf("messages = %+v", req.Messages)
	}
	if want := "Assess teamwork\n\n**TRANSCRIPT TO ANALYZE:**\n[Alice]: Hello\n\n"; req.Messages[1].Content != want {
		t.Errorf("user message = %q, want %q", req.Messages[1].Content, want)
	}
}

func TestOpenAIWhisper(t *testing.T) {
	var model, filename string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		model = r.FormValue("model")
		if _, hdr, err := r.FormFile("file"); err == nil {
			filename = hdr.Filename
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"I think so"}`))
	}))
	defer srv.Close()

	o, _ := NewOpenAI("sk-test", OpenAIOptions{BaseURL: srv.URL + "/v1"})
	text, err := o.Transcribe(context.Background(), []byte("audio"), "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "I think so" {
		t.Errorf("text = %q", text)
	}
	if model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", model)
	}
	if filename != "segment.webm" {
		t.Errorf("filename = %q, want segment.webm", filename)
	}
}
