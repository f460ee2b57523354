package segment

import (
	"context"
	"errors"
	"testing"

	"github.com/jwulff/panelscribe/internal/capture"
	"github.com/rs/zerolog"
)

func newStream(t *testing.T, mimes ...string) *capture.FakeStream {
	t.Helper()
	dev := capture.NewFake(mimes...)
	if _, err := dev.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	return dev.Last()
}

func TestSealReturnsAudio(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	if err := r.Open(st, "Alice", "q1"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	st.Feed(3000)
	st.Feed(3000)

	s, err := r.Seal()
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if len(s.Audio) != 6000 {
		t.Errorf("audio = %d bytes, want 6000", len(s.Audio))
	}
	if s.QuestionID != "q1" || s.Speaker != "Alice" {
		t.Errorf("sealed pair = (%q, %q), want (q1, Alice)", s.QuestionID, s.Speaker)
	}
	if s.MimeType != capture.MimeWebM {
		t.Errorf("mime = %q, want %q", s.MimeType, capture.MimeWebM)
	}
	if st.Open() != 0 {
		t.Errorf("captures still open after seal: %d", st.Open())
	}
}

func TestSealTooShort(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	r.Open(st, "Alice", "q1")
	st.Feed(2000)

	if _, err := r.Seal(); !errors.Is(err, ErrTooShort) {
		t.Errorf("err = %v, want ErrTooShort", err)
	}
}

func TestSealAtThreshold(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	r.Open(st, "Alice", "q1")
	st.Feed(MinBytes)

	if _, err := r.Seal(); err != nil {
		t.Errorf("segment of exactly MinBytes rejected: %v", err)
	}
}

func TestNoDoubleSeal(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	r.Open(st, "Alice", "q1")
	st.Feed(6000)

	if _, err := r.Seal(); err != nil {
		t.Fatalf("first Seal: %v", err)
	}
	if _, err := r.Seal(); !errors.Is(err, ErrNotOpen) {
		t.Errorf("second Seal err = %v, want ErrNotOpen", err)
	}
}

func TestOpenTwice(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	r.Open(st, "Alice", "q1")
	if err := r.Open(st, "Bob", "q1"); !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("err = %v, want ErrAlreadyOpen", err)
	}
	if _, speaker, _ := r.Current(); speaker != "Alice" {
		t.Errorf("current speaker = %q, want Alice", speaker)
	}
}

func TestOpenWithoutStream(t *testing.T) {
	r := NewRecorder(Config{}, zerolog.Nop())
	if err := r.Open(nil, "Alice", "q1"); err != nil {
		t.Errorf("Open(nil) = %v, want nil", err)
	}
	if _, _, ok := r.Current(); ok {
		t.Error("Open(nil) should not open a segment")
	}
}

func TestMimeFixedForRecorder(t *testing.T) {
	st := newStream(t, capture.MimeWebMOpus, capture.MimeWebM)
	r := NewRecorder(Config{Preferences: []string{capture.MimeWebMOpus, capture.MimeWebM}}, zerolog.Nop())

	for i := 0; i < 3; i++ {
		r.Open(st, "Alice", "q1")
		st.Feed(6000)
		if _, err := r.Seal(); err != nil {
			t.Fatalf("Seal %d: %v", i, err)
		}
	}
	for i, m := range st.Started() {
		if m != capture.MimeWebMOpus {
			t.Errorf("capture %d mime = %q, want %q", i, m, capture.MimeWebMOpus)
		}
	}
	if r.MimeType() != capture.MimeWebMOpus {
		t.Errorf("MimeType = %q", r.MimeType())
	}
}

func TestDetachAllowsImmediateOpen(t *testing.T) {
	st := newStream(t)
	r := NewRecorder(Config{}, zerolog.Nop())

	r.Open(st, "Alice", "q1")
	st.Feed(6000)

	old := r.Detach()
	if err := r.Open(st, "Bob", "q2"); err != nil {
		t.Fatalf("Open after Detach: %v", err)
	}
	st.Feed(1000)

	s, err := old.Seal()
	if err != nil {
		t.Fatalf("Seal detached: %v", err)
	}
	// Both windows saw the second feed while they overlapped.
	if s.QuestionID != "q1" || len(s.Audio) != 7000 {
		t.Errorf("detached seal = (%q, %d bytes), want (q1, 7000)", s.QuestionID, len(s.Audio))
	}
	if qid, _, ok := r.Current(); !ok || qid != "q2" {
		t.Errorf("current = %q, want q2", qid)
	}
}
