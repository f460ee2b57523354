// Package autosave writes session snapshots to the local store and finds
// sessions that can be recovered after a crash or closed terminal.
package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/interview"
	"github.com/rs/zerolog"
)

var (
	ErrDisabled  = errors.New("auto-save disabled for session")
	ErrNoSession = errors.New("no session to save")
	ErrVerify    = errors.New("saved record did not read back")
)

// RecoveryWindow is how old an unfinished session may be and still be offered
// for recovery.
const RecoveryWindow = 24 * time.Hour

// Store is the subset of *db.Store the manager uses.
type Store interface {
	Put(rec *db.Record) error
	Get(id string) (*db.Record, error)
	Delete(id string) error
	Recoverable(since time.Time) (*db.Record, error)
}

// Manager saves sessions. It satisfies session.Saver.
type Manager struct {
	store Store
	log   zerolog.Logger
	now   func() time.Time
	mu    sync.Mutex
}

// New returns a manager writing to store. now may be nil.
func New(store Store, log zerolog.Logger, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store: store,
		log:   log.With().Str("component", "autosave").Logger(),
		now:   now,
	}
}

// Save upserts a record for s keyed by its id. Pending entries are dropped
// from the stored copy. An analysis_complete save appends the run to the
// record's analysis history.
func (m *Manager) Save(ctx context.Context, s *interview.Session, trigger string) error {
	if s == nil || s.ID == "" {
		return ErrNoSession
	}
	if !s.AutoSaveEnabled {
		return ErrDisabled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	snap := s.Clone()
	snap.StripPending()
	snap.LastSaved = &now

	prev, err := m.store.Get(snap.ID)
	if err != nil {
		return fmt.Errorf("load previous record: %w", err)
	}

	rec := db.NewRecord(snap, now)
	rec.AutoSaved = true
	rec.SaveTrigger = trigger
	rec.LastAutoSave = &now
	if prev != nil {
		rec.AnalysisHistory = prev.AnalysisHistory
	}
	if trigger == interview.TriggerAnalysisComplete && snap.Analysis != "" {
		rec.AnalysisHistory = append(rec.AnalysisHistory, db.AnalysisRun{
			ID:        interview.NewID("analysis"),
			Analysis:  snap.Analysis,
			Prompt:    snap.AnalysisPrompt,
			Timestamp: now,
			Questions: analyzedQuestions(snap),
		})
	}

	if err := m.store.Put(rec); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	got, err := m.store.Get(rec.ID)
	if err != nil {
		return fmt.Errorf("verify save: %w", err)
	}
	if got == nil || got.SaveTrigger != trigger || !got.SavedAt.Equal(rec.SavedAt) {
		return ErrVerify
	}

	m.log.Debug().
		Str("session_id", rec.ID).
		Str("trigger", trigger).
		Str("state", string(rec.State)).
		Msg("session saved")
	return nil
}

// FindRecoverable returns the newest auto-saved session left in setup or
// active within RecoveryWindow of now, or nil.
func (m *Manager) FindRecoverable(now time.Time) (*db.Record, error) {
	rec, err := m.store.Recoverable(now.Add(-RecoveryWindow))
	if err != nil {
		return nil, fmt.Errorf("find recoverable: %w", err)
	}
	if rec == nil || rec.FullSessionData == nil {
		return nil, nil
	}
	return rec, nil
}

// Discard deletes the record with id and nothing else.
func (m *Manager) Discard(id string) error {
	if err := m.store.Delete(id); err != nil {
		return fmt.Errorf("discard %s: %w", id, err)
	}
	m.log.Info().Str("session_id", id).Msg("discarded recoverable session")
	return nil
}

func analyzedQuestions(s *interview.Session) int {
	n := 0
	for _, q := range s.Questions {
		if q.HasContent() {
			n++
		}
	}
	return n
}
