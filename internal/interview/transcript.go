package interview

import (
	"fmt"
	"strings"
	"time"
)

// Finalized returns the resolved, non-empty entries of a transcript.
func Finalized(entries []TranscriptEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		if e.IsPending() || strings.TrimSpace(e.Text) == "" {
			continue
		}
		out = append(out, e)
	}
	return out
}

// WithoutPending drops placeholder entries but keeps everything else.
func WithoutPending(entries []TranscriptEntry) []TranscriptEntry {
	out := make([]TranscriptEntry, 0, len(entries))
	for _, e := range entries {
		if !e.IsPending() {
			out = append(out, e)
		}
	}
	return out
}

// HasContent reports whether the question has at least one finalized entry.
func (q *Question) HasContent() bool {
	return len(Finalized(q.Transcript)) > 0
}

// Conversation renders the speaker-labelled transcript sent for analysis.
func Conversation(q *Question) string {
	var b strings.Builder
	for _, e := range Finalized(q.Transcript) {
		fmt.Fprintf(&b, "[%s]: %s\n\n", e.Speaker, e.Text)
	}
	return b.String()
}

// StripPending removes placeholders from every question.
func (s *Session) StripPending() {
	for _, q := range s.Questions {
		q.Transcript = WithoutPending(q.Transcript)
	}
}

// FormatDuration renders d as MM:SS.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Duration is the elapsed session time, up to EndTime when set.
func (s *Session) Duration(now time.Time) time.Duration {
	if s.StartTime.IsZero() {
		return 0
	}
	end := now
	if s.EndTime != nil {
		end = *s.EndTime
	}
	return end.Sub(s.StartTime)
}
