package db

import (
	"testing"
	"time"

	"github.com/jwulff/panelscribe/internal/interview"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id string, state interview.State, savedAt time.Time) *Record {
	sess := interview.NewSession([]string{"Alice", "Bob"}, []string{"Teamwork?"}, savedAt.Add(-time.Minute))
	sess.ID = id
	sess.State = state
	sess.Questions[0].Transcript = []interview.TranscriptEntry{
		interview.NewResolved("Alice", "Hello", savedAt),
	}
	rec := NewRecord(sess, savedAt)
	rec.AutoSaved = true
	rec.SaveTrigger = interview.TriggerSessionStart
	return rec
}

func TestPutGet(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	if err := s.Put(testRecord("session_a", interview.StateActive, now)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get("session_a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Fatal("expected record, got nil")
	}
	if got.SessionType != SessionType {
		t.Errorf("sessionType = %q, want %q", got.SessionType, SessionType)
	}
	if got.Duration != "01:00" {
		t.Errorf("duration = %q, want 01:00", got.Duration)
	}
	if !got.SavedAt.Equal(now) {
		t.Errorf("savedAt = %v, want %v", got.SavedAt, now)
	}
	if got.FullSessionData == nil || len(got.FullSessionData.Questions) != 1 {
		t.Fatalf("fullSessionData = %+v", got.FullSessionData)
	}
	if e := got.FullSessionData.Questions[0].Transcript[0]; e.Speaker != "Alice" || e.Text != "Hello" {
		t.Errorf("entry = %+v, want Alice: Hello", e)
	}
}

func TestGetMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
}

func TestPutOverwrites(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Put(testRecord("session_a", interview.StateActive, now))
	rec := testRecord("session_a", interview.StateEnded, now.Add(time.Minute))
	rec.SaveTrigger = interview.TriggerSessionEnd
	if err := s.Put(rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("records = %d, want 1", len(list))
	}
	if list[0].State != interview.StateEnded || list[0].SaveTrigger != interview.TriggerSessionEnd {
		t.Errorf("record = %s/%s, want ended/session_end", list[0].State, list[0].SaveTrigger)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	s.Put(testRecord("session_old", interview.StateEnded, base))
	s.Put(testRecord("session_new", interview.StateEnded, base.Add(time.Hour)))
	s.Put(testRecord("session_mid", interview.StateEnded, base.Add(time.Minute)))

	list, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"session_new", "session_mid", "session_old"}
	if len(list) != len(want) {
		t.Fatalf("records = %d, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Errorf("list[%d] = %q, want %q", i, list[i].ID, id)
		}
	}
}

func TestRecoverable(t *testing.T) {
	s := openTestStore(t)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	since := now.Add(-24 * time.Hour)

	s.Put(testRecord("session_ended", interview.StateEnded, now.Add(-time.Minute)))
	s.Put(testRecord("session_stale", interview.StateActive, now.Add(-25*time.Hour)))
	manual := testRecord("session_manual", interview.StateActive, now.Add(-2*time.Minute))
	manual.AutoSaved = false
	s.Put(manual)

	got, err := s.Recoverable(since)
	if err != nil {
		t.Fatalf("Recoverable: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nothing recoverable, got %q", got.ID)
	}

	s.Put(testRecord("session_live", interview.StateActive, now.Add(-time.Hour)))
	got, err = s.Recoverable(since)
	if err != nil {
		t.Fatalf("Recoverable: %v", err)
	}
	if got == nil || got.ID != "session_live" {
		t.Errorf("recoverable = %+v, want session_live", got)
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := openTestStore(t)
	now := time.Now()

	s.Put(testRecord("session_a", interview.StateEnded, now))
	s.Put(testRecord("session_b", interview.StateEnded, now))
	s.Put(testRecord("session_c", interview.StateEnded, now))

	if err := s.Delete("session_b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("session_b"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if got, _ := s.Get("session_a"); got == nil {
		t.Error("delete removed the wrong record")
	}

	n, err := s.Clear()
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if n != 2 {
		t.Errorf("cleared = %d, want 2", n)
	}
	list, _ := s.List()
	if len(list) != 0 {
		t.Errorf("records after clear = %d, want 0", len(list))
	}
}

func TestOpenFile(t *testing.T) {
	path := t.TempDir() + "/nested/panelscribe.sqlite"
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.Put(testRecord("session_a", interview.StateEnded, time.Now()))
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if got, _ := s.Get("session_a"); got == nil {
		t.Error("record did not survive reopen")
	}
}
