package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jwulff/panelscribe/internal/analysis"
	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/history"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/jwulff/panelscribe/internal/session"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultPrompt is offered when no analysis prompt is configured.
const DefaultPrompt = "Assess how the students worked together on this question: how they built on each other's ideas, the quality of their reasoning, and how evenly they participated. Quote the transcript to support each point."

const (
	actionStart   = "start"
	actionSpeaker = "speaker"
	actionNext    = "next"
	actionEdit    = "edit"
	actionEnd     = "end"
	actionReset   = "reset"
	actionRecover = "recover"
	actionDiscard = "discard"
)

type inputMode int

const (
	modeNone inputMode = iota
	modeStudents
	modeQuestions
	modeRecover
	modeEdit
	modePrompt
	modeConfirmReset
)

// Machine is the part of *session.Machine the TUI drives.
type Machine interface {
	Start(ctx context.Context, students, questions []string) error
	SelectSpeaker(ctx context.Context, speaker string) error
	NextQuestion(ctx context.Context) error
	EditQuestion(ctx context.Context, text string) error
	EndSession(ctx context.Context) error
	Analyze(ctx context.Context, prompt string) (*analysis.Report, error)
	Reset(ctx context.Context)
	Recover(ctx context.Context, saved *interview.Session) error
	Shutdown()
	Snapshot() *interview.Session
	State() interview.State
	Speaker() (string, bool)
	Recording() bool
	InFlight() int
}

// Recovery finds and discards unfinished sessions. *autosave.Manager
// satisfies it.
type Recovery interface {
	FindRecoverable(now time.Time) (*db.Record, error)
	Discard(id string) error
}

// Options wires the model. Machine is required.
type Options struct {
	Machine   Machine
	Events    <-chan session.Event
	Recovery  Recovery
	Health    func(ctx context.Context) (*backend.HealthResponse, error)
	ServerURL string
	Students  []string
	Questions []string
	Prompt    string
	ExportDir string
	Now       func() time.Time
}

// Model is the root bubbletea model for the panelscribe TUI.
type Model struct {
	opts    Options
	machine Machine
	work    *worker

	// Session state, refreshed from the machine after every event
	state     interview.State
	sess      *interview.Session
	speaker   string
	selected  bool
	recording bool
	inFlight  int

	// Backend
	health     *backend.HealthResponse
	backendErr string
	demo       bool

	// Setup and prompts
	mode           inputMode
	input          string
	setupStudents  []string
	setupQuestions []string
	recoverable    *db.Record
	lastPrompt     string
	busy           string

	// Analysis
	report     *analysis.Report
	showReport bool

	// UI state
	viewIndex        int
	width            int
	height           int
	transcriptScroll int
	transcriptLive   bool

	// Errors
	errorMessage   string
	errorTransient bool

	// Status
	statusText   string
	savedTrigger string
}

// New creates a model in the setup state.
func New(opts Options) Model {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Prompt == "" {
		opts.Prompt = DefaultPrompt
	}
	if opts.ExportDir == "" {
		opts.ExportDir = "."
	}
	m := Model{
		opts:           opts,
		machine:        opts.Machine,
		work:           newWorker(),
		state:          interview.StateSetup,
		transcriptLive: true,
		setupStudents:  splitList(strings.Join(opts.Students, ","), ","),
		setupQuestions: opts.Questions,
	}
	if opts.Recovery == nil {
		m.enterSetup()
	} else {
		m.statusText = "Checking for unfinished sessions..."
	}
	return m
}

// Init starts the event pump, the clock, the health check and the recovery
// lookup.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.opts.Events != nil {
		cmds = append(cmds, readEventCmd(m.opts.Events))
	}
	if m.opts.Health != nil {
		cmds = append(cmds, healthCmd(m.opts.Health))
	}
	if m.opts.Recovery != nil {
		cmds = append(cmds, recoverableCmd(m.opts.Recovery, m.opts.Now()))
	}
	return tea.Batch(cmds...)
}

// readEventCmd reads the next event from the machine.
func readEventCmd(events <-chan session.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return EventsClosedMsg{}
		}
		return SessionEventMsg{Event: ev}
	}
}

func healthCmd(check func(context.Context) (*backend.HealthResponse, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		h, err := check(ctx)
		return HealthMsg{Health: h, Err: err}
	}
}

func recoverableCmd(r Recovery, now time.Time) tea.Cmd {
	return func() tea.Msg {
		rec, err := r.FindRecoverable(now)
		return RecoverableMsg{Record: rec, Err: err}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return TickMsg{}
	})
}

// action queues a machine transition.
func (m Model) action(name string, f func(ctx context.Context) error) tea.Cmd {
	return m.work.do(func() tea.Msg {
		return ActionDoneMsg{Action: name, Err: f(context.Background())}
	})
}

func (m Model) analyzeCmd(prompt string) tea.Cmd {
	return m.work.do(func() tea.Msg {
		rep, err := m.machine.Analyze(context.Background(), prompt)
		return AnalysisDoneMsg{Report: rep, Err: err}
	})
}

func (m Model) quitCmd() tea.Cmd {
	return m.work.do(func() tea.Msg {
		m.machine.Shutdown()
		return quitMsg{}
	})
}

// exportCmd writes CSV and JSON copies of s to dir.
func exportCmd(s *interview.Session, dir string, now time.Time) tea.Cmd {
	return func() tea.Msg {
		s.StripPending()
		rec := db.NewRecord(s, now)
		var paths []string
		for _, ext := range []string{"csv", "json"} {
			path := filepath.Join(dir, history.FileName(rec, ext))
			f, err := os.Create(path)
			if err != nil {
				return ExportedMsg{Err: err}
			}
			if ext == "csv" {
				err = history.WriteCSV(f, rec)
			} else {
				err = history.WriteJSON(f, rec)
			}
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return ExportedMsg{Err: fmt.Errorf("write %s: %w", path, err)}
			}
			paths = append(paths, path)
		}
		return ExportedMsg{Paths: paths}
	}
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case SessionEventMsg:
		cmd := m.handleEvent(msg.Event)
		m.refresh()
		return m, tea.Batch(cmd, readEventCmd(m.opts.Events))

	case EventsClosedMsg:
		return m, nil

	case HealthMsg:
		if msg.Err != nil {
			m.backendErr = fmt.Sprintf("Backend unreachable at %s", m.opts.ServerURL)
			return m, nil
		}
		m.health = msg.Health
		m.backendErr = ""
		return m, nil

	case RecoverableMsg:
		if msg.Err != nil {
			m.enterSetup()
			return m.withError(fmt.Sprintf("Could not check for unfinished sessions: %v", msg.Err))
		}
		if msg.Record == nil {
			m.enterSetup()
			return m, nil
		}
		m.recoverable = msg.Record
		m.mode = modeRecover
		m.statusText = "Unfinished session found"
		return m, nil

	case ActionDoneMsg:
		return m.handleActionDone(msg)

	case AnalysisDoneMsg:
		m.busy = ""
		m.refresh()
		if msg.Report != nil {
			m.report = msg.Report
			m.showReport = msg.Report.Succeeded > 0
		}
		if msg.Err != nil {
			if errors.Is(msg.Err, analysis.ErrAllFailed) {
				return m.withError("Analysis failed for every question")
			}
			return m.withError(fmt.Sprintf("Analysis failed: %v", msg.Err))
		}
		m.statusText = fmt.Sprintf("Analysis complete: %d of %d questions", msg.Report.Succeeded, len(msg.Report.Results))
		return m, nil

	case ExportedMsg:
		if msg.Err != nil {
			return m.withError(fmt.Sprintf("Export failed: %v", msg.Err))
		}
		m.statusText = "Exported " + strings.Join(msg.Paths, ", ")
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil

	case TickMsg:
		return m, tickCmd()

	case quitMsg:
		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleActionDone(msg ActionDoneMsg) (tea.Model, tea.Cmd) {
	m.busy = ""
	m.refresh()

	if msg.Err != nil {
		switch msg.Action {
		case actionStart:
			m.mode = modeQuestions
			m.input = strings.Join(m.setupQuestions, "; ")
		case actionRecover, actionDiscard:
			m.enterSetup()
		}
		return m.withError(actionError(msg.Action, msg.Err))
	}

	switch msg.Action {
	case actionStart, actionRecover:
		m.mode = modeNone
		m.report = nil
		m.showReport = false
		m.recoverable = nil
	case actionDiscard:
		m.recoverable = nil
		m.enterSetup()
		m.statusText = "Unfinished session discarded"
	case actionReset:
		m.report = nil
		m.showReport = false
		m.setupStudents = nil
		m.setupQuestions = nil
		m.enterSetup()
		m.statusText = "Interview reset"
	case actionEnd:
		m.statusText = "Session ended"
	}
	return m, nil
}

func actionError(action string, err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone access denied. Allow microphone access and try again."
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "No microphone available. Check the capture settings."
	case errors.Is(err, session.ErrNoStudents):
		return "Please add at least one student"
	case errors.Is(err, session.ErrEmptyQuestion):
		return "Question text is required"
	}
	return fmt.Sprintf("%s failed: %v", action, err)
}

// handleEvent processes a machine event and returns any resulting command.
func (m *Model) handleEvent(ev session.Event) tea.Cmd {
	switch ev.Kind {
	case session.EventStatus:
		if ev.Error {
			return m.setError(ev.Message)
		}
		m.statusText = ev.Message

	case session.EventDemo:
		m.demo = true

	case session.EventSaved:
		m.savedTrigger = ev.Trigger

	case session.EventQuestion:
		m.transcriptScroll = 0
		m.transcriptLive = true
	}
	return nil
}

// refresh copies the machine's state into the model.
func (m *Model) refresh() {
	m.state = m.machine.State()
	m.sess = m.machine.Snapshot()
	m.speaker, m.selected = m.machine.Speaker()
	m.recording = m.machine.Recording()
	m.inFlight = m.machine.InFlight()

	if m.sess == nil {
		m.viewIndex = 0
		return
	}
	if m.state == interview.StateActive {
		m.viewIndex = m.sess.CurrentQuestionIndex
	}
	if m.viewIndex >= len(m.sess.Questions) {
		m.viewIndex = len(m.sess.Questions) - 1
	}
	if m.viewIndex < 0 {
		m.viewIndex = 0
	}
}

// withError shows msg as a transient error.
func (m Model) withError(msg string) (tea.Model, tea.Cmd) {
	cmd := m.setError(msg)
	return m, cmd
}

func (m *Model) setError(msg string) tea.Cmd {
	m.errorMessage = msg
	m.errorTransient = true
	return clearTransientErrorCmd()
}

func (m *Model) enterSetup() {
	m.mode = modeStudents
	m.input = strings.Join(m.setupStudents, ", ")
	m.statusText = "Enter student names separated by commas"
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		return m, m.quitCmd()
	}

	switch m.mode {
	case modeStudents, modeQuestions, modeEdit, modePrompt:
		return m.handleInput(msg)

	case modeRecover:
		switch key {
		case KeyYes:
			m.mode = modeNone
			m.busy = "Recovering session..."
			saved := m.recoverable.FullSessionData
			return m, m.action(actionRecover, func(ctx context.Context) error {
				return m.machine.Recover(ctx, saved)
			})
		case KeyNo:
			m.mode = modeNone
			id := m.recoverable.ID
			return m, m.action(actionDiscard, func(context.Context) error {
				return m.opts.Recovery.Discard(id)
			})
		case KeyQuit:
			return m, m.quitCmd()
		}
		return m, nil

	case modeConfirmReset:
		m.mode = modeNone
		if key != KeyYes {
			m.statusText = "Reset cancelled"
			return m, nil
		}
		m.busy = "Resetting..."
		return m, m.action(actionReset, func(ctx context.Context) error {
			m.machine.Reset(ctx)
			return nil
		})
	}

	switch key {
	case KeyQuit:
		return m, m.quitCmd()

	case KeyUp:
		m.transcriptLive = false
		if m.transcriptScroll > 0 {
			m.transcriptScroll--
		}
		return m, nil

	case KeyDown:
		maxScroll := m.maxTranscriptScroll()
		m.transcriptScroll++
		if m.transcriptScroll >= maxScroll {
			m.transcriptScroll = maxScroll
			m.transcriptLive = true
		}
		return m, nil
	}

	switch m.state {
	case interview.StateActive:
		return m.handleActiveKey(key)
	case interview.StateEnded, interview.StateAnalyzed:
		return m.handleEndedKey(key)
	}
	return m, nil
}

func (m Model) handleActiveKey(key string) (tea.Model, tea.Cmd) {
	if key == KeyNoSpeaker {
		cmd := m.selectSpeaker("")
		return m, cmd
	}
	if i, ok := speakerIndex(key); ok {
		if m.sess == nil || i >= len(m.sess.Students) {
			return m, nil
		}
		cmd := m.selectSpeaker(m.sess.Students[i])
		return m, cmd
	}

	switch key {
	case KeyNext:
		return m, m.action(actionNext, m.machine.NextQuestion)

	case KeyEdit:
		q := m.currentQuestion()
		if q == nil {
			return m, nil
		}
		m.mode = modeEdit
		m.input = q.Text
		if q.IsPlaceholder {
			m.input = ""
		}
		return m, nil

	case KeyEnd:
		m.busy = "Ending session..."
		return m, m.action(actionEnd, m.machine.EndSession)

	case KeyReset:
		m.mode = modeConfirmReset
		return m, nil
	}
	return m, nil
}

func (m Model) handleEndedKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case KeyJ:
		if m.sess != nil && m.viewIndex < len(m.sess.Questions)-1 {
			m.viewIndex++
			m.transcriptScroll, m.transcriptLive = 0, true
		}
		return m, nil

	case KeyK:
		if m.viewIndex > 0 {
			m.viewIndex--
			m.transcriptScroll, m.transcriptLive = 0, true
		}
		return m, nil

	case KeyTab:
		if m.report != nil {
			m.showReport = !m.showReport
			m.transcriptScroll, m.transcriptLive = 0, false
		}
		return m, nil

	case KeyAnalyze:
		m.mode = modePrompt
		m.input = m.lastPrompt
		if m.input == "" {
			m.input = m.opts.Prompt
		}
		return m, nil

	case KeyExport:
		if m.sess == nil {
			return m, nil
		}
		return m, exportCmd(m.sess.Clone(), m.opts.ExportDir, m.opts.Now())

	case KeyReset:
		m.mode = modeConfirmReset
		return m, nil
	}
	return m, nil
}

// selectSpeaker highlights name right away. The next refresh reconciles the
// highlight with the machine once the queued selection has run.
func (m *Model) selectSpeaker(name string) tea.Cmd {
	m.speaker, m.selected = name, true
	return m.action(actionSpeaker, func(ctx context.Context) error {
		return m.machine.SelectSpeaker(ctx, name)
	})
}

func (m Model) handleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		return m.submitInput()

	case tea.KeyEsc:
		switch m.mode {
		case modeQuestions:
			m.mode = modeStudents
			m.input = strings.Join(m.setupStudents, ", ")
		case modeEdit, modePrompt:
			m.mode = modeNone
			m.input = ""
		}
		return m, nil

	case tea.KeyBackspace:
		if r := []rune(m.input); len(r) > 0 {
			m.input = string(r[:len(r)-1])
		}
		return m, nil

	case tea.KeySpace:
		m.input += " "
		return m, nil

	case tea.KeyRunes:
		m.input += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func (m Model) submitInput() (tea.Model, tea.Cmd) {
	switch m.mode {
	case modeStudents:
		names := splitList(m.input, ",")
		if len(names) == 0 {
			return m.withError("Please add at least one student")
		}
		m.setupStudents = names
		m.mode = modeQuestions
		m.input = strings.Join(m.setupQuestions, "; ")
		m.statusText = "Enter questions separated by semicolons, or leave blank"
		return m, nil

	case modeQuestions:
		m.setupQuestions = splitList(m.input, ";")
		m.mode = modeNone
		m.input = ""
		m.busy = "Requesting microphone..."
		students, questions := m.setupStudents, m.setupQuestions
		return m, m.action(actionStart, func(ctx context.Context) error {
			return m.machine.Start(ctx, students, questions)
		})

	case modeEdit:
		text := strings.TrimSpace(m.input)
		if text == "" {
			return m.withError("Question text is required")
		}
		m.mode = modeNone
		m.input = ""
		return m, m.action(actionEdit, func(ctx context.Context) error {
			return m.machine.EditQuestion(ctx, text)
		})

	case modePrompt:
		prompt := strings.TrimSpace(m.input)
		if prompt == "" {
			return m.withError("Please enter an analysis prompt")
		}
		m.mode = modeNone
		m.input = ""
		m.lastPrompt = prompt
		m.busy = "Analyzing questions..."
		return m, m.analyzeCmd(prompt)
	}
	return m, nil
}

func (m Model) currentQuestion() *interview.Question {
	if m.sess == nil || m.viewIndex < 0 || m.viewIndex >= len(m.sess.Questions) {
		return nil
	}
	return m.sess.Questions[m.viewIndex]
}

func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
