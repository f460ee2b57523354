package autosave

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/rs/zerolog"
)

func newTestManager(t *testing.T, now time.Time) (*Manager, *db.Store) {
	t.Helper()
	store, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, zerolog.Nop(), func() time.Time { return now }), store
}

func activeSession(start time.Time) *interview.Session {
	s := interview.NewSession([]string{"Alice", "Bob"}, []string{"Teamwork?", "Conflict?"}, start)
	s.Questions[0].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Alice", "Hello", start),
		interview.NewPending("Bob", 3, start),
	}
	return s
}

func TestSaveFiltersPending(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	m, store := newTestManager(t, now)
	s := activeSession(now.Add(-5 * time.Minute))

	if err := m.Save(context.Background(), s, interview.TriggerTranscription); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err := store.Get(s.ID)
	if err != nil || rec == nil {
		t.Fatalf("Get = %v, %v", rec, err)
	}
	entries := rec.FullSessionData.Questions[0].Transcript
	if len(entries) != 1 || entries[0].Text != "Hello" {
		t.Errorf("stored transcript = %+v, want only the resolved entry", entries)
	}
	if len(s.Questions[0].Transcript) != 2 {
		t.Error("Save modified the caller's session")
	}
	if !rec.AutoSaved || rec.SaveTrigger != interview.TriggerTranscription {
		t.Errorf("autoSaved = %v, trigger = %q", rec.AutoSaved, rec.SaveTrigger)
	}
	if rec.Duration != "05:00" {
		t.Errorf("duration = %q, want 05:00", rec.Duration)
	}
	if rec.FullSessionData.LastSaved == nil || !rec.FullSessionData.LastSaved.Equal(now) {
		t.Errorf("lastSaved = %v, want %v", rec.FullSessionData.LastSaved, now)
	}
}

func TestSaveOverwritesSameSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)
	m, store := newTestManager(t, now)
	s := activeSession(now)

	m.Save(context.Background(), s, interview.TriggerSessionStart)
	s.State = interview.StateEnded
	if err := m.Save(context.Background(), s, interview.TriggerSessionEnd); err != nil {
		t.Fatalf("Save: %v", err)
	}

	list, _ := store.List()
	if len(list) != 1 {
		t.Fatalf("records = %d, want 1", len(list))
	}
	if list[0].State != interview.StateEnded {
		t.Errorf("state = %q, want ended", list[0].State)
	}
}

func TestSaveNoops(t *testing.T) {
	m, _ := newTestManager(t, time.Now())

	if err := m.Save(context.Background(), nil, interview.TriggerSessionStart); !errors.Is(err, ErrNoSession) {
		t.Errorf("nil session: err = %v, want ErrNoSession", err)
	}
	s := activeSession(time.Now())
	s.AutoSaveEnabled = false
	if err := m.Save(context.Background(), s, interview.TriggerSessionStart); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled: err = %v, want ErrDisabled", err)
	}
}

func TestSaveAppendsAnalysisHistory(t *testing.T) {
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, now)
	s := activeSession(now.Add(-time.Hour))
	s.State = interview.StateAnalyzed
	s.Analysis = "# Report"
	s.AnalysisPrompt = "Assess teamwork"

	m.Save(context.Background(), s, interview.TriggerAnalysisComplete)
	m.Save(context.Background(), s, interview.TriggerQuestionEdit)
	s.Analysis = "# Report 2"
	m.Save(context.Background(), s, interview.TriggerAnalysisComplete)

	rec, _ := store.Get(s.ID)
	if len(rec.AnalysisHistory) != 2 {
		t.Fatalf("analysis history = %d, want 2", len(rec.AnalysisHistory))
	}
	run := rec.AnalysisHistory[1]
	if run.Analysis != "# Report 2" || run.Prompt != "Assess teamwork" || run.Questions != 1 {
		t.Errorf("run = %+v", run)
	}
	if !rec.AnalysisAvailable {
		t.Error("analysisAvailable = false for analyzed session")
	}
}

func TestFindRecoverable(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	m, store := newTestManager(t, now.Add(-2*time.Hour))

	s := activeSession(now.Add(-3 * time.Hour))
	m.Save(context.Background(), s, interview.TriggerQuestionTransition)

	ended := activeSession(now.Add(-3 * time.Hour))
	ended.State = interview.StateEnded
	m.Save(context.Background(), ended, interview.TriggerSessionEnd)

	rec, err := m.FindRecoverable(now)
	if err != nil {
		t.Fatalf("FindRecoverable: %v", err)
	}
	if rec == nil || rec.ID != s.ID {
		t.Fatalf("recoverable = %+v, want %s", rec, s.ID)
	}

	if rec, _ := m.FindRecoverable(now.Add(22 * time.Hour)); rec == nil {
		t.Error("session saved exactly 24h earlier was not offered")
	}
	if rec, _ := m.FindRecoverable(now.Add(22*time.Hour + time.Minute)); rec != nil {
		t.Errorf("session older than 24h offered: %s", rec.ID)
	}

	if err := m.Discard(s.ID); err != nil {
		t.Fatalf("Discard: %v", err)
	}
	if got, _ := store.Get(ended.ID); got == nil {
		t.Error("Discard removed another session")
	}
	if rec, _ := m.FindRecoverable(now); rec != nil {
		t.Errorf("discarded session still recoverable: %s", rec.ID)
	}
}
