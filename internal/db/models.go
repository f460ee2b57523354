// Package db persists saved interviews in a local SQLite database.
package db

import (
	"time"

	"github.com/jwulff/panelscribe/internal/interview"
)

// SessionType is the only record kind written by the client.
const SessionType = "multi-question"

// Record is one saved interview. The JSON shape is what history export and
// the MCP tools expose.
type Record struct {
	ID                string             `json:"id"`
	SessionType       string             `json:"sessionType"`
	Questions         []string           `json:"questions"`
	Students          []string           `json:"students"`
	FullSessionData   *interview.Session `json:"fullSessionData"`
	Timestamp         time.Time          `json:"timestamp"`
	SavedAt           time.Time          `json:"savedAt"`
	TotalQuestions    int                `json:"totalQuestions"`
	Duration          string             `json:"duration"`
	State             interview.State    `json:"state"`
	Metadata          interview.Metadata `json:"metadata"`
	AnalysisAvailable bool               `json:"analysisAvailable"`
	Analysis          string             `json:"analysis,omitempty"`
	AutoSaved         bool               `json:"autoSaved"`
	SaveTrigger       string             `json:"saveTrigger,omitempty"`
	LastAutoSave      *time.Time         `json:"lastAutoSave,omitempty"`
	AnalysisHistory   []AnalysisRun      `json:"analysisHistory,omitempty"`
}

// AnalysisRun is one completed analysis kept alongside the record.
type AnalysisRun struct {
	ID        string    `json:"id"`
	Analysis  string    `json:"analysis"`
	Prompt    string    `json:"prompt"`
	Timestamp time.Time `json:"timestamp"`
	Questions int       `json:"questions"`
}

// NewRecord builds a record from a session snapshot. The snapshot is stored
// as is; callers strip pending entries first.
func NewRecord(s *interview.Session, now time.Time) *Record {
	texts := make([]string, len(s.Questions))
	for i, q := range s.Questions {
		texts[i] = q.Text
	}
	return &Record{
		ID:                s.ID,
		SessionType:       SessionType,
		Questions:         texts,
		Students:          append([]string(nil), s.Students...),
		FullSessionData:   s,
		Timestamp:         s.StartTime,
		SavedAt:           now,
		TotalQuestions:    len(s.Questions),
		Duration:          interview.FormatDuration(s.Duration(now)),
		State:             s.State,
		Metadata:          s.Metadata,
		AnalysisAvailable: s.State == interview.StateAnalyzed,
		Analysis:          s.Analysis,
	}
}
