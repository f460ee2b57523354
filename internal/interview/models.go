// Package interview holds the session data model shared by the state machine,
// the auto-save manager, analysis and history export.
package interview

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// State is the session lifecycle state.
type State string

const (
	StateSetup    State = "setup"
	StateActive   State = "active"
	StateEnded    State = "ended"
	StateAnalyzed State = "analyzed"
)

// MaxQuestions is the hard cap on questions per session.
const MaxQuestions = 6

// NoSpeaker labels audio recorded with no student selected.
const NoSpeaker = "No Speaker"

// PendingText is the placeholder text shown while a transcription is in flight.
const PendingText = "Transcribing..."

// Auto-save triggers.
const (
	TriggerSessionStart       = "session_start"
	TriggerTranscription      = "transcription_complete"
	TriggerQuestionTransition = "question_transition"
	TriggerQuestionEdit       = "question_edit"
	TriggerSessionEnd         = "session_end"
	TriggerAnalysisComplete   = "analysis_complete"
	TriggerRecovery           = "recovery"
)

// EntryKind discriminates transcript entries.
type EntryKind int

const (
	EntryResolved EntryKind = iota
	EntryPending
)

// TranscriptEntry is one line of a question's transcript. Pending entries are
// placeholders for an in-flight transcription and carry the ticket of the
// submission that created them.
type TranscriptEntry struct {
	Kind      EntryKind `json:"-"`
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Ticket    uint64    `json:"-"`
}

type entryJSON struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	IsPending bool      `json:"isPending"`
}

func (e TranscriptEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(entryJSON{
		Speaker:   e.Speaker,
		Text:      e.Text,
		Timestamp: e.Timestamp,
		IsPending: e.IsPending(),
	})
}

func (e *TranscriptEntry) UnmarshalJSON(data []byte) error {
	var raw entryJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = TranscriptEntry{Speaker: raw.Speaker, Text: raw.Text, Timestamp: raw.Timestamp}
	if raw.IsPending {
		e.Kind = EntryPending
	}
	return nil
}

// IsPending reports whether the entry is a placeholder.
func (e TranscriptEntry) IsPending() bool { return e.Kind == EntryPending }

// NewPending builds a placeholder entry for speaker.
func NewPending(speaker string, ticket uint64, at time.Time) TranscriptEntry {
	return TranscriptEntry{
		Kind:      EntryPending,
		Speaker:   SpeakerLabel(speaker),
		Text:      PendingText,
		Timestamp: at,
		Ticket:    ticket,
	}
}

// NewResolved builds a finished transcript entry.
func NewResolved(speaker, text string, at time.Time) TranscriptEntry {
	return TranscriptEntry{
		Kind:      EntryResolved,
		Speaker:   SpeakerLabel(speaker),
		Text:      text,
		Timestamp: at,
	}
}

// SpeakerLabel maps an empty selection to NoSpeaker.
func SpeakerLabel(speaker string) string {
	if strings.TrimSpace(speaker) == "" {
		return NoSpeaker
	}
	return speaker
}

// Question is one prompt within a session and the transcript recorded for it.
type Question struct {
	ID            string            `json:"questionId"`
	Text          string            `json:"question"`
	Transcript    []TranscriptEntry `json:"transcription"`
	Analysis      string            `json:"analysis,omitempty"`
	StartTime     *time.Time        `json:"startTime,omitempty"`
	EndTime       *time.Time        `json:"endTime,omitempty"`
	IsPlaceholder bool              `json:"isPlaceholder,omitempty"`
	IsFlexible    bool              `json:"isFlexible,omitempty"`
}

// Metadata is recomputed before every save.
type Metadata struct {
	TotalTranscriptions     int    `json:"totalTranscriptions"`
	AverageQuestionDuration int    `json:"averageQuestionDuration"`
	MostActiveStudent       string `json:"mostActiveStudent,omitempty"`
	SessionQuality          string `json:"sessionQuality"`
	TotalRecordingTime      int    `json:"totalRecordingTime"`
	QuestionsCompleted      int    `json:"questionsCompleted"`
	TranscriptionAccuracy   string `json:"transcriptionAccuracy"`
}

// Session is one multi-question interview from setup to analysis.
type Session struct {
	ID                   string      `json:"sessionId"`
	Students             []string    `json:"students"`
	Questions            []*Question `json:"questions"`
	CurrentQuestionIndex int         `json:"currentQuestionIndex"`
	State                State       `json:"state"`
	StartTime            time.Time   `json:"startTime"`
	EndTime              *time.Time  `json:"endTime,omitempty"`
	Analysis             string      `json:"analysis,omitempty"`
	AnalysisPrompt       string      `json:"analysisPrompt,omitempty"`
	AutoSaveEnabled      bool        `json:"autoSaveEnabled"`
	LastSaved            *time.Time  `json:"lastSaved,omitempty"`
	Metadata             Metadata    `json:"metadata"`
}

// NewID returns a prefixed random identifier, e.g. "session_3f2a...".
func NewID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// PlaceholderText is the auto-generated label for question index i.
func PlaceholderText(i int) string {
	return fmt.Sprintf("Question %d", i+1)
}

// NewSession builds an active session. Blank question texts become
// placeholders; an empty list seeds one placeholder question.
func NewSession(students, questions []string, now time.Time) *Session {
	if len(questions) == 0 {
		questions = []string{""}
	}
	if len(questions) > MaxQuestions {
		questions = questions[:MaxQuestions]
	}

	s := &Session{
		ID:              NewID("session"),
		Students:        append([]string(nil), students...),
		State:           StateActive,
		StartTime:       now,
		AutoSaveEnabled: true,
	}
	for i, text := range questions {
		text = strings.TrimSpace(text)
		placeholder := text == ""
		if placeholder {
			text = PlaceholderText(i)
		}
		s.Questions = append(s.Questions, &Question{
			ID:            NewID("question"),
			Text:          text,
			Transcript:    []TranscriptEntry{},
			IsPlaceholder: placeholder,
		})
	}
	start := now
	s.Questions[0].StartTime = &start
	return s
}

// Current returns the active question, or nil if the index is out of range.
func (s *Session) Current() *Question {
	if s == nil || s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return nil
	}
	return s.Questions[s.CurrentQuestionIndex]
}

// QuestionByID returns the question and its index, or nil and -1.
func (s *Session) QuestionByID(id string) (*Question, int) {
	if s == nil {
		return nil, -1
	}
	for i, q := range s.Questions {
		if q.ID == id {
			return q, i
		}
	}
	return nil, -1
}

// Clone returns a deep copy safe to hand to other goroutines.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Students = append([]string(nil), s.Students...)
	c.EndTime = cloneTime(s.EndTime)
	c.LastSaved = cloneTime(s.LastSaved)
	c.Questions = make([]*Question, len(s.Questions))
	for i, q := range s.Questions {
		qc := *q
		qc.Transcript = append([]TranscriptEntry{}, q.Transcript...)
		qc.StartTime = cloneTime(q.StartTime)
		qc.EndTime = cloneTime(q.EndTime)
		c.Questions[i] = &qc
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
