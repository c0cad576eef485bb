package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/banshee-data/rep.report/internal/tracker"
)

// Session is one persisted tracking session.
type Session struct {
	SessionID   string     `json:"session_id"`
	Exercise    string     `json:"exercise"`
	Side        string     `json:"side"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Frames      int64      `json:"frames"`
	RepCount    int        `json:"rep_count"`
	Flagged     int        `json:"flagged"`
	Discarded   int        `json:"discarded"`
	AverageForm float64    `json:"average_form"`
	BestForm    float64    `json:"best_form"`
	Consistency float64    `json:"consistency"`
}

// CreateSession inserts an open session row.
func (db *DB) CreateSession(sessionID, exercise, side string, startedAt time.Time) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, exercise, side, started_at) VALUES (?, ?, ?, ?)`,
		sessionID, exercise, side, startedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sessionID, err)
	}
	return nil
}

// EnsureSession inserts an open session row unless one with the same ID
// already exists. It reports whether a row was created.
func (db *DB) EnsureSession(sessionID, exercise, side string, startedAt time.Time) (bool, error) {
	res, err := db.Exec(
		`INSERT INTO sessions (session_id, exercise, side, started_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		sessionID, exercise, side, startedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("ensure session %s: %w", sessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure session %s: %w", sessionID, err)
	}
	return n > 0, nil
}

// EndSession closes a session and stores its summary.
func (db *DB) EndSession(s tracker.Summary, endedAt time.Time) error {
	res, err := db.Exec(`
		UPDATE sessions SET
			ended_at = ?, frames = ?, rep_count = ?, flagged = ?, discarded = ?,
			average_form = ?, best_form = ?, consistency = ?
		WHERE session_id = ?`,
		endedAt.UnixNano(), s.Frames, s.Counted, s.Flagged, s.Discarded,
		s.AverageForm, s.BestForm, s.Consistency,
		s.SessionID,
	)
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.SessionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session %s: %w", s.SessionID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, s.SessionID)
	}
	return nil
}

const sessionColumns = `session_id, exercise, side, started_at, ended_at, frames,
	rep_count, flagged, discarded, average_form, best_form, consistency`

// Session returns a single session by ID.
func (db *DB) Session(sessionID string) (*Session, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, sessionID)
	s, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, err
}

// Sessions returns every session, most recent first.
func (db *DB) Sessions() ([]*Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(r scanner) (*Session, error) {
	var (
		s         Session
		startedAt int64
		endedAt   sql.NullInt64
	)
	if err := r.Scan(
		&s.SessionID, &s.Exercise, &s.Side, &startedAt, &endedAt, &s.Frames,
		&s.RepCount, &s.Flagged, &s.Discarded, &s.AverageForm, &s.BestForm, &s.Consistency,
	); err != nil {
		return nil, err
	}
	s.StartedAt = time.Unix(0, startedAt).UTC()
	if endedAt.Valid {
		t := time.Unix(0, endedAt.Int64).UTC()
		s.EndedAt = &t
	}
	return &s, nil
}
