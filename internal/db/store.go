package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/panelscribe/internal/interview"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS interviews (
	id TEXT PRIMARY KEY,
	savedAt REAL NOT NULL,
	state TEXT NOT NULL,
	autoSaved INTEGER NOT NULL DEFAULT 0,
	record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS interviews_savedAt ON interviews(savedAt);
`

// Store provides access to the saved interviews database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. ":memory:" opens a
// private in-memory database.
func Open(path string) (*Store, error) {
	dsn := "file::memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: the in-memory database is per connection and the
	// client is the only writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put inserts or replaces the record with the same id.
func (s *Store) Put(rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO interviews (id, savedAt, state, autoSaved, record)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			savedAt = excluded.savedAt,
			state = excluded.state,
			autoSaved = excluded.autoSaved,
			record = excluded.record
	`, rec.ID, unixFromTime(rec.SavedAt), string(rec.State), rec.AutoSaved, string(data))
	if err != nil {
		return fmt.Errorf("put interview %s: %w", rec.ID, err)
	}
	return nil
}

// Get returns the record with id, or nil if there is none.
func (s *Store) Get(id string) (*Record, error) {
	var data string
	err := s.db.QueryRow(`SELECT record FROM interviews WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get interview %s: %w", id, err)
	}
	return decode(data)
}

// List returns every record, newest first.
func (s *Store) List() ([]Record, error) {
	rows, err := s.db.Query(`SELECT record FROM interviews ORDER BY savedAt DESC`)
	if err != nil {
		return nil, fmt.Errorf("query interviews: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan interview: %w", err)
		}
		rec, err := decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Recoverable returns the newest auto-saved record still in setup or active
// and saved at or after since, or nil.
func (s *Store) Recoverable(since time.Time) (*Record, error) {
	var data string
	err := s.db.QueryRow(`
		SELECT record FROM interviews
		WHERE autoSaved = 1 AND state IN (?, ?) AND savedAt >= ?
		ORDER BY savedAt DESC
		LIMIT 1
	`, string(interview.StateSetup), string(interview.StateActive), unixFromTime(since)).Scan(&data)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query recoverable: %w", err)
	}
	return decode(data)
}

// Delete removes one record. Deleting a missing id is not an error.
func (s *Store) Delete(id string) error {
	if _, err := s.db.Exec(`DELETE FROM interviews WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete interview %s: %w", id, err)
	}
	return nil
}

// Clear removes every record and returns how many there were.
func (s *Store) Clear() (int64, error) {
	res, err := s.db.Exec(`DELETE FROM interviews`)
	if err != nil {
		return 0, fmt.Errorf("clear interviews: %w", err)
	}
	return res.RowsAffected()
}

func decode(data string) (*Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &rec, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
