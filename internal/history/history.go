// Package history browses and exports saved interviews.
package history

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jwulff/panelscribe/internal/db"
	"github.com/jwulff/panelscribe/internal/interview"
)

// ErrNotFound is returned for an unknown interview id.
var ErrNotFound = errors.New("interview not found")

// Store is the subset of *db.Store history needs.
type Store interface {
	List() ([]db.Record, error)
	Get(id string) (*db.Record, error)
	Delete(id string) error
	Clear() (int64, error)
}

// Summary is one line of the history list.
type Summary struct {
	ID             string          `json:"id"`
	Timestamp      time.Time       `json:"timestamp"`
	SavedAt        time.Time       `json:"savedAt"`
	State          interview.State `json:"state"`
	Students       []string        `json:"students"`
	TotalQuestions int             `json:"totalQuestions"`
	Entries        int             `json:"entries"`
	Duration       string          `json:"duration"`
	HasAnalysis    bool            `json:"hasAnalysis"`
}

// Service reads and deletes saved interviews.
type Service struct {
	store Store
}

func New(store Store) *Service {
	return &Service{store: store}
}

// List returns every saved interview, newest first.
func (s *Service) List() ([]Summary, error) {
	recs, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := make([]Summary, 0, len(recs))
	for i := range recs {
		out = append(out, summarize(&recs[i]))
	}
	return out, nil
}

func summarize(r *db.Record) Summary {
	sum := Summary{
		ID:             r.ID,
		Timestamp:      r.Timestamp,
		SavedAt:        r.SavedAt,
		State:          r.State,
		Students:       r.Students,
		TotalQuestions: r.TotalQuestions,
		Duration:       r.Duration,
		HasAnalysis:    r.Analysis != "",
	}
	if r.FullSessionData != nil {
		for _, q := range r.FullSessionData.Questions {
			sum.Entries += len(interview.Finalized(q.Transcript))
		}
	}
	return sum
}

// Get returns one interview with pending placeholders removed.
func (s *Service) Get(id string) (*db.Record, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.FullSessionData != nil {
		rec.FullSessionData.StripPending()
	}
	return rec, nil
}

// Delete removes one interview.
func (s *Service) Delete(id string) error {
	if _, err := s.Get(id); err != nil {
		return err
	}
	return s.store.Delete(id)
}

// Clear removes every interview and returns how many were removed.
func (s *Service) Clear() (int64, error) {
	return s.store.Clear()
}

// CSVHeader is the first row of a CSV export.
var CSVHeader = []string{"Question_Number", "Question", "Speaker", "Text", "Timestamp"}

// WriteCSV writes one row per finalized transcript entry.
func WriteCSV(w io.Writer, rec *db.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	if rec.FullSessionData != nil {
		for i, q := range rec.FullSessionData.Questions {
			for _, e := range interview.Finalized(q.Transcript) {
				row := []string{
					strconv.Itoa(i + 1),
					q.Text,
					e.Speaker,
					e.Text,
					e.Timestamp.UTC().Format(time.RFC3339),
				}
				if err := cw.Write(row); err != nil {
					return err
				}
			}
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the record indented.
func WriteJSON(w io.Writer, rec *db.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

// FileName is the suggested export name, e.g. interview-2026-03-01-1000.csv.
func FileName(rec *db.Record, ext string) string {
	return fmt.Sprintf("interview-%s.%s", rec.Timestamp.Local().Format("2006-01-02-1504"), ext)
}
