// Command panelscribe-server is the backend the panelscribe client talks to.
// It proxies transcription to ElevenLabs or OpenAI Whisper and analysis to
// OpenAI chat, falling back to canned demo replies when keys are missing.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwulff/panelscribe/internal/api"
	"github.com/jwulff/panelscribe/internal/config"
	"github.com/jwulff/panelscribe/internal/logging"
	"github.com/jwulff/panelscribe/internal/provider"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var (
		configFile string
		envFile    string
		addr       string
	)
	flag.StringVar(&configFile, "config", "", "Config file (default: search ./config.yml and the user config dir)")
	flag.StringVar(&envFile, "env", "", "Env file with provider keys (default: ./.env)")
	flag.StringVar(&addr, "addr", "", "Listen address, e.g. 127.0.0.1:3000")
	flag.Parse()

	var opts []config.Option
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	if envFile != "" {
		opts = append(opts, config.WithEnvFile(envFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "panelscribe-server: %v\n", err)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	log, closer, err := logging.New(cfg.Logging, "panelscribe-server")
	if err != nil {
		fmt.Fprintf(os.Stderr, "panelscribe-server: %v\n", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("server stopped")
		closer.Close()
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	stt, chat := providers(cfg, log)
	srv := api.New(api.Config{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimit:      cfg.Server.RateLimit,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, stt, chat, logging.Component(log, "api"))

	hs := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
		if err := hs.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return hs.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// providers builds the configured speech-to-text and chat providers. A nil
// provider leaves its endpoint in demo mode.
func providers(cfg *config.Config, log zerolog.Logger) (provider.Transcriber, provider.Analyzer) {
	p := cfg.Providers

	var openAI *provider.OpenAI
	if p.OpenAIKey != "" {
		o, err := provider.NewOpenAI(p.OpenAIKey, provider.OpenAIOptions{
			WhisperModel: p.WhisperModel,
			ChatModel:    p.ChatModel,
			Temperature:  p.Temperature,
			MaxTokens:    p.MaxTokens,
		})
		if err != nil {
			log.Warn().Err(err).Msg("openai disabled")
		} else {
			openAI = o
		}
	}

	var stt provider.Transcriber
	switch cfg.Server.STTProvider {
	case "openai":
		if openAI != nil {
			stt = openAI
		}
	default:
		el, err := provider.NewElevenLabs(p.ElevenLabsKey, provider.ElevenLabsOptions{
			Model:    p.STTModel,
			Language: p.STTLanguage,
		})
		if err == nil {
			stt = el
		}
	}

	var chat provider.Analyzer
	if openAI != nil {
		chat = openAI
	}

	if stt == nil {
		log.Warn().Str("provider", cfg.Server.STTProvider).Msg("no transcription key, serving demo transcripts")
	} else {
		log.Info().Str("provider", stt.Name()).Msg("transcription enabled")
	}
	if chat == nil {
		log.Warn().Msg("no OpenAI key, serving demo analysis")
	} else {
		log.Info().Str("model", chat.Model()).Msg("analysis enabled")
	}
	return stt, chat
}
