// Package session is the recording and session state machine. It multiplexes
// one microphone stream across the students of an interview and the ordered
// questions asked of them, while transcriptions complete asynchronously.
//
// User transitions are serialized by the machine; transcription results are
// merged concurrently through the reconciler and always land in the question
// they were recorded for.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jwulff/panelscribe/internal/analysis"
	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/reconcile"
	"github.com/jwulff/panelscribe/internal/segment"
	"github.com/rs/zerolog"
)

var (
	ErrNoStudents     = errors.New("at least one student name is required")
	ErrNotActive      = errors.New("no active session")
	ErrNotEnded       = errors.New("session must be ended before analysis")
	ErrInProgress     = errors.New("a session is already in progress")
	ErrNoAnalyzer     = errors.New("analysis is not configured")
	ErrEmptyQuestion  = errors.New("question text is required")
	ErrNoSnapshot     = errors.New("nothing to recover")
	errStaleExecution = errors.New("session replaced during transition")
)

// DefaultGrace bounds the end-session wait for in-flight transcriptions.
const DefaultGrace = 2 * time.Second

// Saver persists session snapshots.
type Saver interface {
	Save(ctx context.Context, s *interview.Session, trigger string) error
}

// Analyzer runs session analysis.
type Analyzer interface {
	Analyze(ctx context.Context, s *interview.Session, prompt string) (*analysis.Report, error)
}

// Config wires a Machine. Device and Transcriber are required.
type Config struct {
	Device      capture.Device
	Transcriber reconcile.Transcriber
	Analyzer    Analyzer
	Saver       Saver
	Observer    Observer
	Segment     segment.Config

	Grace             time.Duration
	TranscribeTimeout time.Duration
	Now               func() time.Time
	Log               zerolog.Logger
}

// Machine owns the live Session.
type Machine struct {
	cfg   Config
	log   zerolog.Logger
	obs   Observer
	now   func() time.Time
	rec   *segment.Recorder
	recon *reconcile.Reconciler

	opMu   sync.Mutex     // held for the whole of each transition
	saveMu sync.Mutex     // orders snapshots with their writes
	bg     sync.WaitGroup // background seals; Add only under opMu

	mu       sync.Mutex
	sess     *interview.Session
	stream   capture.Stream
	speaker  string
	selected bool
	gen      uint64
	demo     bool
}

// New returns a machine in the setup state.
func New(cfg Config) *Machine {
	if cfg.Grace <= 0 {
		cfg.Grace = DefaultGrace
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	m := &Machine{
		cfg: cfg,
		log: cfg.Log.With().Str("component", "session").Logger(),
		obs: cfg.Observer,
		now: cfg.Now,
	}
	if m.obs == nil {
		m.obs = nopObserver{}
	}
	m.rec = segment.NewRecorder(cfg.Segment, cfg.Log)
	m.recon = reconcile.New(cfg.Transcriber, ledger{m}, reconcile.Options{
		Timeout: cfg.TranscribeTimeout,
		Hooks: reconcile.Hooks{
			Resolved: m.onResolved,
			Failed:   m.onFailed,
			Demo:     m.onDemo,
		},
	}, cfg.Log)
	return m
}

// Start acquires the microphone and begins a session. On failure the machine
// stays in setup with no session.
func (m *Machine) Start(ctx context.Context, students, questions []string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	var names []string
	for _, s := range students {
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return ErrNoStudents
	}

	m.mu.Lock()
	busy := m.sess != nil && m.sess.State == interview.StateActive
	m.mu.Unlock()
	if busy {
		return ErrInProgress
	}

	stream, err := m.cfg.Device.Acquire(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("microphone acquisition failed")
		return fmt.Errorf("acquire microphone: %w", err)
	}

	sess := interview.NewSession(names, questions, m.now())

	m.mu.Lock()
	m.gen++
	m.sess = sess
	m.stream = stream
	speaker, selected := m.speaker, m.selected
	qid := sess.Current().ID
	m.mu.Unlock()

	m.log.Info().
		Str("session_id", sess.ID).
		Int("students", len(names)).
		Int("questions", len(sess.Questions)).
		Msg("session started")
	m.obs.Notify(Event{Kind: EventState, State: interview.StateActive})
	m.obs.Notify(Event{Kind: EventQuestion, QuestionID: qid})

	if selected {
		m.open(stream, speaker, qid)
	}

	m.autoSave(ctx, interview.TriggerSessionStart)
	return nil
}

// SelectSpeaker attributes subsequent audio to speaker ("" for no speaker).
// The selection is published before the previous segment is sealed.
func (m *Machine) SelectSpeaker(ctx context.Context, speaker string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	speaker = strings.TrimSpace(speaker)

	m.mu.Lock()
	prev, prevSelected := m.speaker, m.selected
	m.speaker, m.selected = speaker, true
	active := m.sess != nil && m.sess.State == interview.StateActive
	stream, gen := m.stream, m.gen
	var qid string
	if active {
		qid = m.sess.Current().ID
	}
	m.mu.Unlock()

	m.obs.Notify(Event{Kind: EventSpeaker, Speaker: speaker, Selected: true})
	if !active {
		return nil
	}

	changed := !prevSelected || interview.SpeakerLabel(prev) != interview.SpeakerLabel(speaker)
	if !changed {
		if _, _, open := m.rec.Current(); open {
			return nil
		}
	} else {
		m.sealAndSubmit(gen)
	}

	return m.open(stream, speaker, qid)
}

// NextQuestion advances to the next question, sealing the outgoing segment
// in the background. Advancing past the last allowed question ends the
// session.
func (m *Machine) NextQuestion(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	if m.sess == nil || m.sess.State != interview.StateActive {
		m.mu.Unlock()
		return nil
	}

	now := m.now()
	out := m.sess.Current()
	out.EndTime = &now
	out.Transcript = interview.WithoutPending(out.Transcript)
	gen := m.gen
	detached := m.rec.Detach()
	if detached != nil {
		detached.Stop()
	}

	next := m.sess.CurrentQuestionIndex + 1
	if next >= interview.MaxQuestions {
		m.mu.Unlock()
		m.log.Info().Msg("question limit reached")
		m.sealDetached(gen, detached)
		return m.endSession(ctx)
	}

	m.sess.CurrentQuestionIndex = next
	start := now
	if next < len(m.sess.Questions) {
		m.sess.Questions[next].StartTime = &start
	} else {
		m.sess.Questions = append(m.sess.Questions, &interview.Question{
			ID:            interview.NewID("question"),
			Text:          interview.PlaceholderText(next),
			Transcript:    []interview.TranscriptEntry{},
			StartTime:     &start,
			IsPlaceholder: true,
			IsFlexible:    true,
		})
	}
	m.speaker, m.selected = "", false
	qid := m.sess.Current().ID
	m.mu.Unlock()

	m.log.Info().Int("question", next+1).Str("question_id", qid).Msg("next question")
	m.obs.Notify(Event{Kind: EventSpeaker})
	m.obs.Notify(Event{Kind: EventQuestion, QuestionID: qid})

	m.bg.Add(1)
	go func() {
		defer m.bg.Done()
		m.sealDetached(gen, detached)
		m.autoSave(context.Background(), interview.TriggerQuestionTransition)
	}()
	return nil
}

// EditQuestion replaces the current question's text.
func (m *Machine) EditQuestion(ctx context.Context, text string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyQuestion
	}

	m.mu.Lock()
	if m.sess == nil || m.sess.State != interview.StateActive {
		m.mu.Unlock()
		return ErrNotActive
	}
	q := m.sess.Current()
	q.Text = text
	q.IsPlaceholder = false
	q.IsFlexible = false
	qid := q.ID
	m.mu.Unlock()

	m.obs.Notify(Event{Kind: EventQuestion, QuestionID: qid})
	m.autoSave(ctx, interview.TriggerQuestionEdit)
	return nil
}

// EndSession seals the final segment, waits up to the grace delay for
// outstanding transcriptions, releases the microphone and saves. It is a
// no-op unless a session is active. The save error, if any, is returned;
// the session is ended regardless.
func (m *Machine) EndSession(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.endSession(ctx)
}

func (m *Machine) endSession(ctx context.Context) error {
	m.mu.Lock()
	if m.sess == nil || m.sess.State != interview.StateActive {
		m.mu.Unlock()
		return nil
	}
	gen := m.gen
	m.mu.Unlock()

	m.sealAndSubmit(gen)
	m.bg.Wait()

	gctx, cancel := context.WithTimeout(ctx, m.cfg.Grace)
	if err := m.recon.Wait(gctx); err != nil {
		m.log.Warn().Int("in_flight", m.recon.InFlight()).Msg("ending with transcriptions outstanding")
	}
	cancel()

	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	now := m.now()
	m.sess.State = interview.StateEnded
	m.sess.EndTime = &now
	if cur := m.sess.Current(); cur != nil && cur.EndTime == nil {
		cur.EndTime = &now
	}
	m.sess.StripPending()
	m.speaker, m.selected = "", false
	id := m.sess.ID
	m.mu.Unlock()

	if stream != nil {
		if err := stream.Close(); err != nil {
			m.log.Warn().Err(err).Msg("release microphone")
		}
	}

	m.log.Info().Str("session_id", id).Msg("session ended")
	m.obs.Notify(Event{Kind: EventSpeaker})
	m.obs.Notify(Event{Kind: EventState, State: interview.StateEnded})

	if err := m.autoSave(ctx, interview.TriggerSessionEnd); err != nil {
		return fmt.Errorf("save ended session: %w", err)
	}
	return nil
}

// Analyze runs per-question analysis of an ended session. At least one
// question must succeed for the session to become analyzed.
func (m *Machine) Analyze(ctx context.Context, prompt string) (*analysis.Report, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.cfg.Analyzer == nil {
		return nil, ErrNoAnalyzer
	}

	m.mu.Lock()
	if m.sess == nil || (m.sess.State != interview.StateEnded && m.sess.State != interview.StateAnalyzed) {
		m.mu.Unlock()
		return nil, ErrNotEnded
	}
	snap := m.sess.Clone()
	gen := m.gen
	m.mu.Unlock()

	m.status("Analyzing questions...", false)
	rep, err := m.cfg.Analyzer.Analyze(ctx, snap, prompt)
	if err != nil {
		m.status(fmt.Sprintf("Analysis failed: %v", err), true)
		return rep, err
	}

	m.mu.Lock()
	if gen != m.gen || m.sess == nil {
		m.mu.Unlock()
		return rep, errStaleExecution
	}
	for _, r := range rep.Results {
		if !r.OK() {
			continue
		}
		if q, _ := m.sess.QuestionByID(r.QuestionID); q != nil {
			q.Analysis = r.Analysis
		}
	}
	m.sess.Analysis = rep.Text
	m.sess.AnalysisPrompt = strings.TrimSpace(prompt)
	m.sess.State = interview.StateAnalyzed
	m.mu.Unlock()

	failed := len(rep.Results) - rep.Succeeded
	if failed == 0 {
		m.status(fmt.Sprintf("Analysis complete! %d questions analyzed.", rep.Succeeded), false)
	} else {
		m.status(fmt.Sprintf("Partial analysis complete. %d question(s) failed.", failed), true)
	}
	m.obs.Notify(Event{Kind: EventState, State: interview.StateAnalyzed})

	m.autoSave(ctx, interview.TriggerAnalysisComplete)
	return rep, nil
}

// Reset ends any active session, then discards it and returns to setup.
// Transcriptions still in flight for the old session are ignored.
func (m *Machine) Reset(ctx context.Context) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.endSession(ctx); err != nil {
		m.log.Warn().Err(err).Msg("end session on reset")
	}
	m.rec.Reset()

	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.gen++
	m.sess = nil
	m.speaker, m.selected = "", false
	m.mu.Unlock()

	if stream != nil {
		stream.Close()
	}
	m.obs.Notify(Event{Kind: EventSpeaker})
	m.obs.Notify(Event{Kind: EventState, State: interview.StateSetup})
}

// Recover replaces the in-memory state with a saved snapshot. An active
// snapshot reacquires the microphone; if that fails the session is still
// restored and recording stays unavailable.
func (m *Machine) Recover(ctx context.Context, saved *interview.Session) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if saved == nil || len(saved.Questions) == 0 {
		return ErrNoSnapshot
	}

	m.mu.Lock()
	busy := m.sess != nil && m.sess.State == interview.StateActive
	m.mu.Unlock()
	if busy {
		return ErrInProgress
	}

	s := saved.Clone()
	s.StripPending()
	if s.State == interview.StateSetup {
		s.State = interview.StateActive
	}
	if s.CurrentQuestionIndex < 0 {
		s.CurrentQuestionIndex = 0
	}
	if s.CurrentQuestionIndex >= len(s.Questions) {
		s.CurrentQuestionIndex = len(s.Questions) - 1
	}

	var stream capture.Stream
	if s.State == interview.StateActive {
		st, err := m.cfg.Device.Acquire(ctx)
		if err != nil {
			m.log.Warn().Err(err).Msg("microphone unavailable for recovered session")
			m.status(fmt.Sprintf("Microphone unavailable: %v", err), true)
		} else {
			stream = st
		}
	}

	m.mu.Lock()
	m.gen++
	m.sess = s
	m.stream = stream
	m.speaker, m.selected = "", false
	qid := s.Current().ID
	m.mu.Unlock()

	m.log.Info().Str("session_id", s.ID).Str("state", string(s.State)).Msg("session recovered")
	m.obs.Notify(Event{Kind: EventState, State: s.State})
	m.obs.Notify(Event{Kind: EventQuestion, QuestionID: qid})
	m.status("Session recovered! You can continue where you left off.", false)

	m.autoSave(ctx, interview.TriggerRecovery)
	return nil
}

// Shutdown stops recording and releases the microphone without changing the
// session state, leaving an active session recoverable.
func (m *Machine) Shutdown() {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.rec.Reset()
	m.mu.Lock()
	stream := m.stream
	m.stream = nil
	m.mu.Unlock()
	if stream != nil {
		stream.Close()
	}
}

// Snapshot returns a deep copy of the session, or nil in setup.
func (m *Machine) Snapshot() *interview.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess.Clone()
}

// State is the lifecycle state of the machine.
func (m *Machine) State() interview.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return interview.StateSetup
	}
	return m.sess.State
}

// Speaker returns the selected speaker and whether one is selected.
func (m *Machine) Speaker() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speaker, m.selected
}

// Recording reports whether a segment is open.
func (m *Machine) Recording() bool {
	_, _, ok := m.rec.Current()
	return ok
}

// InFlight is the number of outstanding transcriptions.
func (m *Machine) InFlight() int { return m.recon.InFlight() }

// Demo reports whether the backend has signalled a missing API key.
func (m *Machine) Demo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.demo
}

// Settle waits for background seals and transcriptions to finish.
func (m *Machine) Settle(ctx context.Context) error {
	m.opMu.Lock()
	m.bg.Wait()
	m.opMu.Unlock()
	return m.recon.Wait(ctx)
}

func (m *Machine) open(stream capture.Stream, speaker, qid string) error {
	label := interview.SpeakerLabel(speaker)
	if err := m.rec.Open(stream, label, qid); err != nil {
		m.log.Warn().Err(err).Str("speaker", label).Msg("open segment")
		return fmt.Errorf("open segment: %w", err)
	}
	if stream != nil {
		m.status("Recording for: "+label, false)
	}
	return nil
}

func (m *Machine) sealAndSubmit(gen uint64) {
	sealed, err := m.rec.Seal()
	m.submit(gen, sealed, err)
}

func (m *Machine) sealDetached(gen uint64, a *segment.Active) {
	if a == nil {
		return
	}
	sealed, err := a.Seal()
	m.submit(gen, sealed, err)
}

func (m *Machine) submit(gen uint64, sealed *segment.Sealed, err error) {
	switch {
	case errors.Is(err, segment.ErrNotOpen), errors.Is(err, segment.ErrTooShort):
		return
	case err != nil:
		m.log.Warn().Err(err).Msg("seal segment")
		return
	}
	m.recon.Submit(reconcile.Target{
		Generation: gen,
		QuestionID: sealed.QuestionID,
		Speaker:    sealed.Speaker,
	}, sealed)
}

func (m *Machine) onResolved(reconcile.Target) {
	m.autoSave(context.Background(), interview.TriggerTranscription)
}

func (m *Machine) onFailed(t reconcile.Target, err error) {
	m.status(fmt.Sprintf("Transcription failed for %s: %v", t.Speaker, err), true)
}

func (m *Machine) onDemo(needsKey bool) {
	m.mu.Lock()
	first := !m.demo
	m.demo = true
	m.mu.Unlock()
	if first {
		m.obs.Notify(Event{Kind: EventDemo})
	}
}

func (m *Machine) status(msg string, isErr bool) {
	m.obs.Notify(Event{Kind: EventStatus, Message: msg, Error: isErr})
}

// autoSave persists a snapshot. Failures are logged; only session start and
// end failures reach the status line.
func (m *Machine) autoSave(ctx context.Context, trigger string) error {
	if m.cfg.Saver == nil {
		return nil
	}

	m.saveMu.Lock()
	defer m.saveMu.Unlock()

	now := m.now()
	m.mu.Lock()
	if m.sess == nil || !m.sess.AutoSaveEnabled {
		m.mu.Unlock()
		return nil
	}
	m.sess.Metadata = interview.ComputeMetadata(m.sess, now)
	snap := m.sess.Clone()
	gen := m.gen
	m.mu.Unlock()

	log := m.log.With().Str("session_id", snap.ID).Str("trigger", trigger).Logger()
	if err := m.cfg.Saver.Save(ctx, snap, trigger); err != nil {
		log.Warn().Err(err).Msg("auto-save failed")
		if trigger == interview.TriggerSessionEnd || trigger == interview.TriggerSessionStart {
			m.status(fmt.Sprintf("Auto-save failed: %v", err), true)
		}
		return err
	}

	m.mu.Lock()
	if gen == m.gen && m.sess != nil {
		m.sess.LastSaved = &now
	}
	m.mu.Unlock()

	log.Debug().Msg("auto-saved")
	m.obs.Notify(Event{Kind: EventSaved, Trigger: trigger})
	return nil
}
