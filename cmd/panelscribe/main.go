// Command panelscribe records a multi-student interview panel in the
// terminal, transcribing each student's answers through the backend server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jwulff/panelscribe/internal/analysis"
	"github.com/jwulff/panelscribe/internal/app"
	"github.com/jwulff/panelscribe/internal/autosave"
	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/jwulff/panelscribe/internal/config"
	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/logging"
	"github.com/jwulff/panelscribe/internal/reconcile"
	"github.com/jwulff/panelscribe/internal/segment"
	"github.com/jwulff/panelscribe/internal/session"
	"github.com/rs/zerolog"
)

type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }

func (s *stringSlice) Set(v string) error {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			*s = append(*s, p)
		}
	}
	return nil
}

func main() {
	var (
		students   stringSlice
		questions  []string
		configFile string
		serverURL  string
		dbPath     string
		exportDir  string
	)
	flag.Var(&students, "student", "Student name (repeatable or comma-separated)")
	flag.Func("question", "Interview question (repeatable, up to 6)", func(v string) error {
		questions = append(questions, v)
		return nil
	})
	flag.StringVar(&configFile, "config", "", "Config file (default: search ./config.yml and the user config dir)")
	flag.StringVar(&serverURL, "server", "", "Backend server URL")
	flag.StringVar(&dbPath, "db", "", "Interview database path")
	flag.StringVar(&exportDir, "export-dir", ".", "Directory for CSV and JSON exports")
	flag.Parse()

	if err := run(students, questions, configFile, serverURL, dbPath, exportDir); err != nil {
		fmt.Fprintf(os.Stderr, "panelscribe: %v\n", err)
		os.Exit(1)
	}
}

func run(students, questions []string, configFile, serverURL, dbPath, exportDir string) error {
	opts := []config.Option{
		config.WithDefault("logging.output", filepath.Join(config.Dir(), "panelscribe.log")),
	}
	if configFile != "" {
		opts = append(opts, config.WithConfigFile(configFile))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return err
	}
	if serverURL != "" {
		cfg.Client.ServerURL = serverURL
	}
	if dbPath != "" {
		cfg.Client.DBPath = dbPath
	}

	log, closer, err := logging.New(cfg.Logging, "panelscribe")
	if err != nil {
		return err
	}
	defer closer.Close()

	store, err := db.Open(cfg.Client.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	saver := autosave.New(store, logging.Component(log, "autosave"), time.Now)
	client := backend.New(cfg.Client.ServerURL, &http.Client{Timeout: cfg.Client.TranscribeTimeout + 5*time.Second})
	events := session.NewChanObserver(256)

	mcfg := session.Config{
		Device:      capture.NewFFmpeg(cfg.Capture.FFmpeg(), log),
		Transcriber: transcriber(client),
		Analyzer: analysis.NewRunner(client, logging.Component(log, "analysis"),
			analysis.WithSpacing(cfg.Client.AnalysisSpacing)),
		Observer: events,
		Segment: segment.Config{
			MinBytes:  cfg.Client.MinSegmentBytes,
			Timeslice: cfg.Client.Timeslice,
		},
		Grace:             cfg.Client.Grace,
		TranscribeTimeout: cfg.Client.TranscribeTimeout,
		Log:               logging.Component(log, "session"),
	}
	if cfg.Client.AutoSave {
		mcfg.Saver = saver
	}
	machine := session.New(mcfg)

	model := app.New(app.Options{
		Machine:   machine,
		Events:    events.C,
		Recovery:  saver,
		Health:    client.Health,
		ServerURL: cfg.Client.ServerURL,
		Students:  students,
		Questions: questions,
		Prompt:    cfg.Client.AnalysisPrompt,
		ExportDir: exportDir,
	})

	log.Info().Str("server", cfg.Client.ServerURL).Str("db", cfg.Client.DBPath).Msg("starting")
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	machine.Shutdown()
	logFinal(log, machine.Snapshot())
	return err
}

// transcriber adapts the backend client to the reconciler.
func transcriber(client *backend.Client) reconcile.TranscriberFunc {
	return func(ctx context.Context, audio []byte, mimeType string) (reconcile.Result, error) {
		resp, err := client.Transcribe(ctx, audio, mimeType)
		if err != nil {
			return reconcile.Result{}, err
		}
		if !resp.Success {
			msg := resp.Error
			if msg == "" {
				msg = "transcription failed"
			}
			return reconcile.Result{NeedsAPIKey: resp.NeedsAPIKey}, errors.New(msg)
		}
		return reconcile.Result{Text: resp.Text, Demo: resp.Demo, NeedsAPIKey: resp.NeedsAPIKey}, nil
	}
}

func logFinal(log zerolog.Logger, s *interview.Session) {
	if s == nil {
		return
	}
	log.Info().
		Str(logging.FieldSessionID, s.ID).
		Str("state", string(s.State)).
		Int("questions", len(s.Questions)).
		Msg("exiting")
}
