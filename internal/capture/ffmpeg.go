package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// FFmpegConfig selects the capture input.
type FFmpegConfig struct {
	Path        string // ffmpeg binary, looked up on PATH
	InputFormat string // avfoundation, pulse, alsa, dshow
	Input       string // device name for the input format
	SampleRate  int
	Channels    int
	// StartupTimeout bounds the wait for the first audio bytes.
	StartupTimeout time.Duration
}

// DefaultFFmpegConfig returns the platform default input.
func DefaultFFmpegConfig() FFmpegConfig {
	cfg := FFmpegConfig{
		Path:           "ffmpeg",
		SampleRate:     16000,
		Channels:       1,
		StartupTimeout: 3 * time.Second,
	}
	switch runtime.GOOS {
	case "darwin":
		cfg.InputFormat, cfg.Input = "avfoundation", ":0"
	case "windows":
		cfg.InputFormat, cfg.Input = "dshow", "audio=default"
	default:
		cfg.InputFormat, cfg.Input = "pulse", "default"
	}
	return cfg
}

// FFmpeg captures the microphone through an ffmpeg child process emitting
// signed 16-bit little-endian PCM on stdout.
type FFmpeg struct {
	cfg FFmpegConfig
	log zerolog.Logger
}

// NewFFmpeg returns a device using cfg. Zero fields take platform defaults.
func NewFFmpeg(cfg FFmpegConfig, log zerolog.Logger) *FFmpeg {
	def := DefaultFFmpegConfig()
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.InputFormat == "" {
		cfg.InputFormat, cfg.Input = def.InputFormat, def.Input
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = def.Channels
	}
	if cfg.StartupTimeout <= 0 {
		cfg.StartupTimeout = def.StartupTimeout
	}
	return &FFmpeg{cfg: cfg, log: log.With().Str("component", "capture").Logger()}
}

func (d *FFmpeg) args() []string {
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostdin",
		"-f", d.cfg.InputFormat, "-i", d.cfg.Input,
		"-ac", strconv.Itoa(d.cfg.Channels),
		"-ar", strconv.Itoa(d.cfg.SampleRate),
		"-f", "s16le", "-",
	}
}

// Acquire starts ffmpeg and waits for the first audio bytes. A missing
// binary is ErrDeviceUnavailable; ffmpeg exiting before producing audio is
// treated as the OS refusing access.
func (d *FFmpeg) Acquire(ctx context.Context) (Stream, error) {
	bin, err := exec.LookPath(d.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", d.cfg.Path, ErrDeviceUnavailable)
	}

	cmd := exec.Command(bin, d.args()...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", ErrDeviceUnavailable)
	}

	s := &ffmpegStream{
		cmd:        cmd,
		stdout:     stdout,
		log:        d.log,
		bytesPerMs: d.cfg.SampleRate * d.cfg.Channels * 2 / 1000,
		sampleRate: d.cfg.SampleRate,
		channels:   d.cfg.Channels,
		done:       make(chan struct{}),
	}

	first := make(chan error, 1)
	go s.pump(first)

	timer := time.NewTimer(d.cfg.StartupTimeout)
	defer timer.Stop()

	select {
	case err := <-first:
		if err != nil {
			s.Close()
			msg := strings.TrimSpace(stderr.String())
			d.log.Warn().Str("stderr", msg).Err(err).Msg("ffmpeg exited before audio")
			return nil, fmt.Errorf("ffmpeg %s %q: %s: %w", d.cfg.InputFormat, d.cfg.Input, msg, ErrPermissionDenied)
		}
	case <-timer.C:
		s.Close()
		return nil, fmt.Errorf("no audio after %s: %w", d.cfg.StartupTimeout, ErrDeviceUnavailable)
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}

	d.log.Info().
		Str("format", d.cfg.InputFormat).
		Str("input", d.cfg.Input).
		Int("sample_rate", d.cfg.SampleRate).
		Msg("microphone acquired")
	return s, nil
}

type ffmpegStream struct {
	cmd        *exec.Cmd
	stdout     io.ReadCloser
	log        zerolog.Logger
	bytesPerMs int
	sampleRate int
	channels   int

	windows   windows
	closeOnce sync.Once
	done      chan struct{}
}

// pump reads PCM until ffmpeg exits, reporting the outcome of the first read.
func (s *ffmpegStream) pump(first chan<- error) {
	defer close(s.done)
	buf := make([]byte, 4096)
	reported := false
	for {
		n, err := s.stdout.Read(buf)
		if n > 0 {
			if !reported {
				first <- nil
				reported = true
			}
			s.windows.broadcast(buf[:n])
		}
		if err != nil {
			if !reported {
				if errors.Is(err, io.EOF) {
					err = io.ErrUnexpectedEOF
				}
				first <- err
			}
			s.windows.shutdown()
			return
		}
	}
}

func (s *ffmpegStream) Supports(mime string) bool {
	return mime == MimeWAV
}

func (s *ffmpegStream) Start(mime string, timeslice time.Duration) (Capture, error) {
	if !s.Supports(mime) {
		return nil, fmt.Errorf("start %s: %w", mime, ErrUnsupportedFormat)
	}
	chunk := int(timeslice/time.Millisecond) * s.bytesPerMs
	chunk -= chunk % (2 * s.channels)
	w := newWindow(chunk, func(pcm []byte) []byte {
		return WAV(pcm, s.sampleRate, s.channels)
	}, s.windows.remove)
	if err := s.windows.add(w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		<-s.done
		_ = s.cmd.Wait()
		s.log.Info().Msg("microphone released")
	})
	return nil
}
