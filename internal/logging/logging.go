// Package logging builds the zerolog logger each binary hands to its
// components.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jwulff/panelscribe/internal/config"
	"github.com/rs/zerolog"
)

const (
	FieldComponent  = "component"
	FieldService    = "service"
	FieldSessionID  = "session_id"
	FieldQuestionID = "question_id"
	FieldSpeaker    = "speaker"
	FieldBytes      = "bytes"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger for service. The closer releases a log file, if one
// was opened.
func New(cfg config.Logging, service string) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var (
		out    io.Writer
		closer io.Closer = nopCloser{}
		isFile bool
	)
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		out = os.Stderr
	case "stdout":
		out = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), 0o755); err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
		}
		out, closer, isFile = f, f, true
	}

	if strings.ToLower(cfg.Format) != "json" {
		out = zerolog.ConsoleWriter{Out: out, NoColor: isFile, TimeFormat: "15:04:05.000"}
	}

	log := zerolog.New(out).Level(level).With().Timestamp().Str(FieldService, service).Logger()
	return log, closer, nil
}

// Component returns a child logger tagged with name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str(FieldComponent, name).Logger()
}
