// Package segment records contiguous audio attributable to one
// (question, speaker) pair.
package segment

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/rs/zerolog"
)

var (
	// ErrTooShort means the segment was below MinBytes and was discarded.
	ErrTooShort = errors.New("segment too short")
	// ErrNotOpen means there was no open segment to seal.
	ErrNotOpen = errors.New("no open segment")
	// ErrAlreadyOpen means Open was called while a segment was recording.
	ErrAlreadyOpen = errors.New("segment already open")
)

const (
	// MinBytes is the smallest segment worth transcribing.
	MinBytes = 5000
	// Timeslice is the capture chunk interval.
	Timeslice = 100 * time.Millisecond
)

// Config tunes a Recorder. Zero values take the package defaults.
type Config struct {
	MinBytes    int
	Timeslice   time.Duration
	Preferences []string
}

// Sealed is a finished segment ready for transcription.
type Sealed struct {
	QuestionID string
	Speaker    string
	Audio      []byte
	MimeType   string
	StartedAt  time.Time
	SealedAt   time.Time
}

// Active is a segment currently buffering chunks.
type Active struct {
	QuestionID string
	Speaker    string
	StartedAt  time.Time

	mime     string
	minBytes int
	capture  capture.Capture
	log      zerolog.Logger

	mu     sync.Mutex
	chunks [][]byte
	size   int
	sealed bool
	done   chan struct{}
}

func (a *Active) drain() {
	defer close(a.done)
	for chunk := range a.capture.Chunks() {
		a.mu.Lock()
		a.chunks = append(a.chunks, chunk)
		a.size += len(chunk)
		a.mu.Unlock()
	}
}

// Size reports the bytes buffered so far.
func (a *Active) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

// Stop ends capture without waiting for the final flush. Seal completes the
// segment afterwards.
func (a *Active) Stop() {
	a.capture.Stop()
}

// Seal stops the capture and joins its chunks. A second Seal returns
// ErrNotOpen.
func (a *Active) Seal() (*Sealed, error) {
	a.mu.Lock()
	if a.sealed {
		a.mu.Unlock()
		return nil, ErrNotOpen
	}
	a.sealed = true
	a.mu.Unlock()

	a.capture.Stop()
	<-a.done

	a.mu.Lock()
	defer a.mu.Unlock()

	log := a.log.With().
		Str("question_id", a.QuestionID).
		Str("speaker", a.Speaker).
		Int("bytes", a.size).
		Logger()

	if a.size < a.minBytes {
		log.Debug().Msg("segment discarded")
		return nil, fmt.Errorf("%d bytes: %w", a.size, ErrTooShort)
	}

	payload := make([]byte, 0, a.size)
	for _, c := range a.chunks {
		payload = append(payload, c...)
	}
	a.chunks = nil

	out := &Sealed{
		QuestionID: a.QuestionID,
		Speaker:    a.Speaker,
		Audio:      a.capture.Finish(payload),
		MimeType:   a.mime,
		StartedAt:  a.StartedAt,
		SealedAt:   time.Now(),
	}
	log.Debug().
		Str("size", humanize.Bytes(uint64(len(out.Audio)))).
		Dur("length", out.SealedAt.Sub(out.StartedAt)).
		Msg("segment sealed")
	return out, nil
}

// Recorder owns at most one open segment.
type Recorder struct {
	cfg Config
	log zerolog.Logger

	mu   sync.Mutex
	cur  *Active
	mime string
}

// NewRecorder returns an idle recorder.
func NewRecorder(cfg Config, log zerolog.Logger) *Recorder {
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = MinBytes
	}
	if cfg.Timeslice <= 0 {
		cfg.Timeslice = Timeslice
	}
	if len(cfg.Preferences) == 0 {
		cfg.Preferences = capture.Preferred
	}
	return &Recorder{cfg: cfg, log: log.With().Str("component", "segment").Logger()}
}

// Open starts buffering audio for the pair. A nil stream is a no-op.
func (r *Recorder) Open(stream capture.Stream, speaker, questionID string) error {
	if stream == nil {
		r.log.Warn().Str("speaker", speaker).Msg("open without a stream")
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return ErrAlreadyOpen
	}
	if r.mime == "" {
		mime, err := capture.Negotiate(stream, r.cfg.Preferences)
		if err != nil {
			return err
		}
		r.mime = mime
		r.log.Info().Str("mime", mime).Msg("codec selected")
	}

	c, err := stream.Start(r.mime, r.cfg.Timeslice)
	if err != nil {
		return fmt.Errorf("start capture: %w", err)
	}

	a := &Active{
		QuestionID: questionID,
		Speaker:    speaker,
		StartedAt:  time.Now(),
		mime:       r.mime,
		minBytes:   r.cfg.MinBytes,
		capture:    c,
		log:        r.log,
		done:       make(chan struct{}),
	}
	go a.drain()
	r.cur = a

	r.log.Debug().Str("question_id", questionID).Str("speaker", speaker).Msg("segment opened")
	return nil
}

// Seal closes the open segment.
func (r *Recorder) Seal() (*Sealed, error) {
	a := r.Detach()
	if a == nil {
		return nil, ErrNotOpen
	}
	return a.Seal()
}

// Detach releases the open segment to the caller without sealing it, so a
// new segment can open immediately.
func (r *Recorder) Detach() *Active {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.cur
	r.cur = nil
	return a
}

// Current returns the open segment's pair.
func (r *Recorder) Current() (questionID, speaker string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur == nil {
		return "", "", false
	}
	return r.cur.QuestionID, r.cur.Speaker, true
}

// MimeType is the format negotiated on first Open, "" before that.
func (r *Recorder) MimeType() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mime
}

// Reset discards any open segment and forgets the negotiated format.
func (r *Recorder) Reset() {
	if a := r.Detach(); a != nil {
		a.capture.Stop()
		<-a.done
	}
	r.mu.Lock()
	r.mime = ""
	r.mu.Unlock()
}
