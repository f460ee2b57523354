package app

import (
	"github.com/jwulff/panelscribe/internal/analysis"
	"github.com/jwulff/panelscribe/internal/backend"
	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/session"
)

// SessionEventMsg wraps a change notification from the state machine.
type SessionEventMsg struct {
	Event session.Event
}

// EventsClosedMsg is sent when the event channel is closed.
type EventsClosedMsg struct{}

// HealthMsg carries the backend health check made at startup.
type HealthMsg struct {
	Health *backend.HealthResponse
	Err    error
}

// RecoverableMsg carries an unfinished session found in the store, if any.
type RecoverableMsg struct {
	Record *db.Record
	Err    error
}

// ActionDoneMsg reports the result of a state machine transition.
type ActionDoneMsg struct {
	Action string
	Err    error
}

// AnalysisDoneMsg carries the compiled report.
type AnalysisDoneMsg struct {
	Report *analysis.Report
	Err    error
}

// ExportedMsg lists the files written by an export.
type ExportedMsg struct {
	Paths []string
	Err   error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}

// TickMsg refreshes the elapsed time display.
type TickMsg struct{}

type quitMsg struct{}
