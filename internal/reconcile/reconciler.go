// Package reconcile submits sealed segments for transcription and merges
// the results back into the question they were recorded for, whatever the
// user has done in the meantime.
package reconcile

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/segment"
	"github.com/rs/zerolog"
)

// Target is where a result belongs, captured when the segment was sealed.
type Target struct {
	Generation uint64
	QuestionID string
	Speaker    string
}

// Ledger is the transcript store results are written into.
type Ledger interface {
	// AddPending inserts a placeholder for ticket, removing any stale
	// placeholder for the same pair. It returns false if the target no
	// longer exists.
	AddPending(t Target, ticket uint64) bool
	// Resolve replaces ticket's placeholder with text, or appends when the
	// placeholder is gone. It returns false if the target no longer exists.
	Resolve(t Target, ticket uint64, text string) bool
	// Drop removes ticket's placeholder if present.
	Drop(t Target, ticket uint64)
}

// Result is one transcription response.
type Result struct {
	Text        string
	Demo        bool
	NeedsAPIKey bool
}

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (Result, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, audio []byte, mimeType string) (Result, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, audio []byte, mimeType string) (Result, error) {
	return f(ctx, audio, mimeType)
}

// Hooks receive reconciler side effects. Nil hooks are skipped.
type Hooks struct {
	// Resolved runs after a result is written into the ledger.
	Resolved func(t Target)
	// Failed runs when a transcription request fails.
	Failed func(t Target, err error)
	// Demo runs for every response carrying the needsApiKey signal.
	Demo func(needsAPIKey bool)
}

// Options tunes a Reconciler.
type Options struct {
	// Timeout bounds each transcription request.
	Timeout time.Duration
	Hooks   Hooks
}

type key struct {
	questionID string
	speaker    string
}

// Reconciler tracks in-flight transcriptions.
type Reconciler struct {
	tr     Transcriber
	ledger Ledger
	opts   Options
	log    zerolog.Logger

	tickets atomic.Uint64

	mu       sync.Mutex
	inflight map[key]map[uint64]struct{}
	count    int
	waiters  []chan struct{}
}

// New returns a reconciler writing into ledger.
func New(tr Transcriber, ledger Ledger, opts Options, log zerolog.Logger) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Reconciler{
		tr:       tr,
		ledger:   ledger,
		opts:     opts,
		log:      log.With().Str("component", "reconcile").Logger(),
		inflight: make(map[key]map[uint64]struct{}),
	}
}

// Submit inserts a pending entry for the target and transcribes sealed in
// the background. It returns the ticket, or 0 if the target was stale.
func (r *Reconciler) Submit(t Target, sealed *segment.Sealed) uint64 {
	t.Speaker = interview.SpeakerLabel(t.Speaker)
	ticket := r.tickets.Add(1)

	if !r.ledger.AddPending(t, ticket) {
		r.log.Warn().Str("question_id", t.QuestionID).Msg("submit for stale target")
		return 0
	}

	r.track(t, ticket)
	go r.run(t, ticket, sealed)
	return ticket
}

func (r *Reconciler) run(t Target, ticket uint64, sealed *segment.Sealed) {
	defer r.untrack(t, ticket)

	log := r.log.With().
		Str("question_id", t.QuestionID).
		Str("speaker", t.Speaker).
		Uint64("ticket", ticket).
		Int("bytes", len(sealed.Audio)).
		Logger()

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Timeout)
	defer cancel()

	res, err := r.tr.Transcribe(ctx, sealed.Audio, sealed.MimeType)
	if err != nil {
		log.Warn().Err(err).Msg("transcription failed")
		r.ledger.Drop(t, ticket)
		if r.opts.Hooks.Failed != nil {
			r.opts.Hooks.Failed(t, err)
		}
		return
	}

	if res.NeedsAPIKey && r.opts.Hooks.Demo != nil {
		r.opts.Hooks.Demo(true)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		log.Debug().Msg("empty transcription")
		r.ledger.Drop(t, ticket)
		return
	}

	if !r.ledger.Resolve(t, ticket, text) {
		log.Debug().Msg("result for stale target ignored")
		return
	}
	log.Debug().Bool("demo", res.Demo).Msg("transcription merged")
	if r.opts.Hooks.Resolved != nil {
		r.opts.Hooks.Resolved(t)
	}
}

func (r *Reconciler) track(t Target, ticket uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{t.QuestionID, t.Speaker}
	if r.inflight[k] == nil {
		r.inflight[k] = make(map[uint64]struct{})
	}
	r.inflight[k][ticket] = struct{}{}
	r.count++
}

func (r *Reconciler) untrack(t Target, ticket uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key{t.QuestionID, t.Speaker}
	delete(r.inflight[k], ticket)
	if len(r.inflight[k]) == 0 {
		delete(r.inflight, k)
	}
	r.count--
	if r.count == 0 {
		for _, w := range r.waiters {
			close(w)
		}
		r.waiters = nil
	}
}

// InFlight reports the number of outstanding requests.
func (r *Reconciler) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Pending reports the outstanding requests for one pair.
func (r *Reconciler) Pending(questionID, speaker string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight[key{questionID, interview.SpeakerLabel(speaker)}])
}

// Wait blocks until nothing is in flight or ctx is done.
func (r *Reconciler) Wait(ctx context.Context) error {
	r.mu.Lock()
	if r.count == 0 {
		r.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
