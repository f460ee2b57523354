package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// startMockServer serves one canned handler per path.
func startMockServer(t *testing.T, routes map[string]http.HandlerFunc) *Client {
	t.Helper()
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.HandleFunc(path, h)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, srv.Client())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestClientTranscribe(t *testing.T) {
	var gotMime, gotName string
	var gotSize int
	client := startMockServer(t, map[string]http.HandlerFunc{
		PathTranscribe: func(w http.ResponseWriter, r *http.Request) {
			f, hdr, err := r.FormFile(AudioField)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "No audio file provided"})
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			gotSize = len(data)
			gotMime = hdr.Header.Get("Content-Type")
			gotName = hdr.Filename
			writeJSON(w, http.StatusOK, TranscribeResponse{Success: true, Text: "Hello"})
		},
	})

	resp, err := client.Transcribe(context.Background(), make([]byte, 6000), "audio/webm;codecs=opus")
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !resp.Success || resp.Text != "Hello" {
		t.Errorf("resp = %+v, want success Hello", resp)
	}
	if gotSize != 6000 {
		t.Errorf("uploaded %d bytes, want 6000", gotSize)
	}
	if gotMime != "audio/webm;codecs=opus" {
		t.Errorf("part content type = %q", gotMime)
	}
	if gotName != "segment.webm" {
		t.Errorf("filename = %q, want segment.webm", gotName)
	}
}

func TestClientTranscribeServerError(t *testing.T) {
	client := startMockServer(t, map[string]http.HandlerFunc{
		PathTranscribe: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "Transcription failed", Details: "quota"})
		},
	})

	_, err := client.Transcribe(context.Background(), []byte("x"), "audio/wav")
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("err = %v, want ErrRejected", err)
	}
}

func TestClientAnalyze(t *testing.T) {
	var got AnalyzeRequest
	client := startMockServer(t, map[string]http.HandlerFunc{
		PathAnalyze: func(w http.ResponseWriter, r *http.Request) {
			json.NewDecoder(r.Body).Decode(&got)
			writeJSON(w, http.StatusOK, AnalyzeResponse{Success: true, Analysis: "Solid.", Model: "gpt-4"})
		},
	})

	resp, err := client.Analyze(context.Background(), AnalyzeRequest{
		Prompt:        "Assess",
		Conversation:  "[Alice]: Hello\n\n",
		StudentNames:  []string{"Alice"},
		QuestionIndex: 1,
	})
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if resp.Analysis != "Solid." || resp.Model != "gpt-4" {
		t.Errorf("resp = %+v", resp)
	}
	if got.Prompt != "Assess" || got.QuestionIndex != 1 || len(got.StudentNames) != 1 {
		t.Errorf("server got %+v", got)
	}
}

func TestClientHealth(t *testing.T) {
	client := startMockServer(t, map[string]http.HandlerFunc{
		PathHealth: func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, HealthResponse{Status: "OK", DemoMode: true})
		},
	})

	h, err := client.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if h.Status != "OK" || !h.DemoMode {
		t.Errorf("health = %+v", h)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := New(url, nil)
	if _, err := client.Health(context.Background()); err == nil {
		t.Fatal("expected error from closed server")
	}
}

func TestClientNonJSONError(t *testing.T) {
	client := startMockServer(t, map[string]http.HandlerFunc{
		PathHealth: func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "bad gateway", http.StatusBadGateway)
		},
	})

	_, err := client.Health(context.Background())
	if err == nil || errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want plain status error", err)
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"audio/wav":              ".wav",
		"audio/webm;codecs=opus": ".webm",
		"audio/ogg;codecs=opus":  ".ogg",
		"audio/mp4":              ".m4a",
		"audio/mpeg":             ".mp3",
		"":                       ".webm",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}
