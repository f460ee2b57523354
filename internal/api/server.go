// Package api is the panelscribe-server HTTP surface: audio transcription,
// per-question analysis and provider health.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/provider"
	"github.com/rs/zerolog"
)

// DefaultMaxUpload caps a transcription upload.
const DefaultMaxUpload = 10 << 20

const maxJSONBody = 1 << 20

// Config tunes the HTTP surface.
type Config struct {
	MaxUploadBytes int64
	RateLimit      int // requests per minute per IP; 0 disables
	AllowedOrigins []string
}

// Server handles the backend endpoints. A nil transcriber or analyzer puts
// that endpoint in demo mode.
type Server struct {
	cfg      Config
	stt      provider.Transcriber
	chat     provider.Analyzer
	log      zerolog.Logger
	now      func() time.Time
	validate *validator.Validate
	demoIdx  atomic.Uint64
}

// New returns a server.
func New(cfg Config, stt provider.Transcriber, chat provider.Analyzer, log zerolog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUpload
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	return &Server{
		cfg:      cfg,
		stt:      stt,
		chat:     chat,
		log:      log.With().Str("component", "api").Logger(),
		now:      time.Now,
		validate: validator.New(),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get(backend.PathHealth, s.handleHealth)
	r.Group(func(r chi.Router) {
		if s.cfg.RateLimit > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimit, time.Minute))
		}
		r.Post(backend.PathTranscribe, s.handleTranscribe)
		r.Post(backend.PathAnalyze, s.handleAnalyze)
	})
	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, backend.HealthResponse{
		Status:             "OK",
		Timestamp:          s.now().UTC(),
		HasAPIKey:          s.stt != nil,
		DemoMode:           s.stt == nil,
		HasOpenAIKey:       s.chat != nil,
		GPTAnalysisEnabled: s.chat != nil,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+64<<10)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "No audio file provided", err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, hdr, err := r.FormFile(backend.AudioField)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided", "")
		return
	}
	defer file.Close()
	if hdr.Size > s.cfg.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large", "")
		return
	}
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "No audio file provided", err.Error())
		return
	}
	mimeType := hdr.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	log := s.log.With().Int("bytes", len(audio)).Str("mime", mimeType).Logger()
	log.Info().Msg("received audio")

	if s.stt == nil {
		writeJSON(w, http.StatusOK, backend.TranscribeResponse{
			Success:     true,
			Text:        s.nextDemo(),
			Demo:        true,
			NeedsAPIKey: true,
		})
		return
	}

	text, err := s.stt.Transcribe(r.Context(), audio, mimeType)
	if err != nil {
		log.Error().Err(err).Str("provider", s.stt.Name()).Msg("transcription failed")
		writeError(w, http.StatusInternalServerError, "Transcription failed", err.Error())
		return
	}
	if text == "" {
		text = NoSpeech
	}
	writeJSON(w, http.StatusOK, backend.TranscribeResponse{Success: true, Text: text})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req backend.AnalyzeRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "Prompt and conversation are required", "")
		return
	}

	s.log.Info().
		Int("students", len(req.StudentNames)).
		Int("question_index", req.QuestionIndex).
		Msg("received analysis request")

	if s.chat == nil {
		writeJSON(w, http.StatusOK, backend.AnalyzeResponse{
			Success:     true,
			Analysis:    DemoAnalysis,
			Timestamp:   s.now().UTC(),
			Demo:        true,
			NeedsAPIKey: true,
		})
		return
	}

	out, err := s.chat.Analyze(r.Context(), req.Prompt, req.Conversation)
	if err != nil {
		s.log.Error().Err(err).Msg("analysis failed")
		writeError(w, http.StatusInternalServerError, "GPT analysis failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, backend.AnalyzeResponse{
		Success:   true,
		Analysis:  out,
		Model:     s.chat.Model(),
		Timestamp: s.now().UTC(),
	})
}

func (s *Server) nextDemo() string {
	i := s.demoIdx.Add(1) - 1
	return DemoTranscripts[i%uint64(len(DemoTranscripts))]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, backend.ErrorResponse{Error: msg, Details: details})
}
