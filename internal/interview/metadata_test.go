package interview

import (
	"strings"
	"testing"
	"time"
)

func TestComputeMetadata(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession([]string{"Alice", "Bob"}, []string{"Q1", "Q2"}, start)

	q1End := start.Add(90 * time.Second)
	s.Questions[0].EndTime = &q1End
	s.Questions[0].Transcript = []TranscriptEntry{
		NewResolved("Alice", strings.Repeat("a", 60), start),
		NewResolved("Bob", strings.Repeat("b", 80), start),
		NewPending("Alice", 3, start),
	}
	s.CurrentQuestionIndex = 1
	s.State = StateEnded
	end := start.Add(5 * time.Minute)
	s.EndTime = &end

	m := ComputeMetadata(s, start.Add(time.Hour))

	if m.TotalTranscriptions != 2 {
		t.Errorf("totalTranscriptions = %d, want 2", m.TotalTranscriptions)
	}
	if m.AverageQuestionDuration != 90 {
		t.Errorf("averageQuestionDuration = %d, want 90", m.AverageQuestionDuration)
	}
	if m.MostActiveStudent != "Bob" {
		t.Errorf("mostActiveStudent = %q, want Bob", m.MostActiveStudent)
	}
	if m.SessionQuality != QualityIncomplete {
		t.Errorf("sessionQuality = %q, want %q", m.SessionQuality, QualityIncomplete)
	}
	if m.TotalRecordingTime != 300 {
		t.Errorf("totalRecordingTime = %d, want 300", m.TotalRecordingTime)
	}
	if m.QuestionsCompleted != 2 {
		t.Errorf("questionsCompleted = %d, want 2", m.QuestionsCompleted)
	}
	if m.TranscriptionAccuracy != AccuracyHigh {
		t.Errorf("transcriptionAccuracy = %q, want %q", m.TranscriptionAccuracy, AccuracyHigh)
	}
}

func TestComputeMetadataEmpty(t *testing.T) {
	s := NewSession([]string{"Alice"}, []string{"Q1"}, time.Now())
	m := ComputeMetadata(s, time.Now())

	if m.TotalTranscriptions != 0 {
		t.Errorf("totalTranscriptions = %d, want 0", m.TotalTranscriptions)
	}
	if m.TranscriptionAccuracy != AccuracyLow {
		t.Errorf("transcriptionAccuracy = %q, want %q", m.TranscriptionAccuracy, AccuracyLow)
	}
	if m.SessionQuality != QualityIncomplete {
		t.Errorf("sessionQuality = %q, want %q", m.SessionQuality, QualityIncomplete)
	}
	if m.MostActiveStudent != "Alice" {
		t.Errorf("mostActiveStudent = %q, want Alice", m.MostActiveStudent)
	}
}
