package interview

import (
	"strings"
	"time"
)

// Session quality and accuracy grades.
const (
	QualityGood       = "good"
	QualityPartial    = "partial"
	QualityIncomplete = "incomplete"

	AccuracyHigh   = "high"
	AccuracyMedium = "medium"
	AccuracyLow    = "low"
)

// ComputeMetadata derives the summary statistics stored alongside each save.
func ComputeMetadata(s *Session, now time.Time) Metadata {
	var m Metadata

	activity := make(map[string]int, len(s.Students))
	for _, name := range s.Students {
		activity[name] = 0
	}

	totalChars := 0
	var durations time.Duration
	completed := 0
	withEntries := 0

	for _, q := range s.Questions {
		if len(q.Transcript) > 0 {
			withEntries++
		}
		for _, e := range q.Transcript {
			if e.IsPending() || strings.TrimSpace(e.Text) == "" {
				continue
			}
			m.TotalTranscriptions++
			totalChars += len(e.Text)
			if _, ok := activity[e.Speaker]; ok {
				activity[e.Speaker] += len(e.Text)
			}
		}
		if q.StartTime != nil && q.EndTime != nil {
			durations += q.EndTime.Sub(*q.StartTime)
			completed++
		}
	}

	if completed > 0 {
		m.AverageQuestionDuration = int((durations / time.Duration(completed)).Round(time.Second) / time.Second)
	}

	best := -1
	for _, name := range s.Students {
		if activity[name] > best {
			best = activity[name]
			m.MostActiveStudent = name
		}
	}

	switch {
	case len(s.Questions) > 0 && withEntries == len(s.Questions):
		m.SessionQuality = QualityGood
	case float64(withEntries) > float64(len(s.Questions))/2:
		m.SessionQuality = QualityPartial
	default:
		m.SessionQuality = QualityIncomplete
	}

	if !s.StartTime.IsZero() {
		m.TotalRecordingTime = int(s.Duration(now).Round(time.Second) / time.Second)
	}

	m.QuestionsCompleted = s.CurrentQuestionIndex
	if s.State == StateEnded {
		m.QuestionsCompleted++
	}

	avg := 0.0
	if m.TotalTranscriptions > 0 {
		avg = float64(totalChars) / float64(m.TotalTranscriptions)
	}
	switch {
	case avg > 50:
		m.TranscriptionAccuracy = AccuracyHigh
	case avg > 20:
		m.TranscriptionAccuracy = AccuracyMedium
	default:
		m.TranscriptionAccuracy = AccuracyLow
	}

	return m
}
