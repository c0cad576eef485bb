package db

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/rep.report/internal/analysis"
	"github.com/banshee-data/rep.report/internal/monitoring"
	"github.com/banshee-data/rep.report/internal/pose"
	"github.com/banshee-data/rep.report/internal/tracker"
)

// RecordRep stores one completed rep. The session must already exist.
func (db *DB) RecordRep(r tracker.CompletedRep) error {
	traj, err := json.Marshal(r.Trajectory)
	if err != nil {
		return fmt.Errorf("encode trajectory: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO reps (
			session_id, number, exercise, side, start_frame, end_frame, sample_count,
			rom_label, rom_score, min_angle, max_angle, smoothness,
			tempo_label, tempo_score, tempo_ns, reversals,
			stability_present, stability_score, stability_variance,
			form_score, too_short, trajectory_json, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.Number, r.Exercise, r.Side.String(), r.StartFrame, r.EndFrame, len(r.Trajectory),
		r.ROM.Label, r.ROM.Score, r.ROM.Min, r.ROM.Max, r.Smoothness,
		string(r.Tempo.Label), r.Tempo.Score, int64(r.Tempo.Duration), r.Tempo.Reversals,
		r.Stability.Present, r.Stability.Score, r.Stability.Variance,
		r.FormScore, r.TooShort, string(traj), r.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert rep %s/%d: %w", r.SessionID, r.Number, err)
	}
	return nil
}

// Reps returns a session's reps in rep-number order.
func (db *DB) Reps(sessionID string) ([]tracker.CompletedRep, error) {
	rows, err := db.Query(`
		SELECT session_id, number, exercise, side, start_frame, end_frame,
		       rom_label, rom_score, min_angle, max_angle, smoothness,
		       tempo_label, tempo_score, tempo_ns, reversals,
		       stability_present, stability_score, stability_variance,
		       form_score, too_short, trajectory_json, completed_at
		FROM reps
		WHERE session_id = ?
		ORDER BY number`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query reps: %w", err)
	}
	defer rows.Close()

	var out []tracker.CompletedRep
	for rows.Next() {
		var (
			r           tracker.CompletedRep
			side        string
			tempoLabel  string
			tempoNS     int64
			traj        string
			completedAt int64
		)
		if err := rows.Scan(
			&r.SessionID, &r.Number, &r.Exercise, &side, &r.StartFrame, &r.EndFrame,
			&r.ROM.Label, &r.ROM.Score, &r.ROM.Min, &r.ROM.Max, &r.Smoothness,
			&tempoLabel, &r.Tempo.Score, &tempoNS, &r.Tempo.Reversals,
			&r.Stability.Present, &r.Stability.Score, &r.Stability.Variance,
			&r.FormScore, &r.TooShort, &traj, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan rep: %w", err)
		}
		if r.Side, err = pose.ParseSide(side); err != nil {
			return nil, fmt.Errorf("rep %s/%d: %w", r.SessionID, r.Number, err)
		}
		if err := json.Unmarshal([]byte(traj), &r.Trajectory); err != nil {
			return nil, fmt.Errorf("rep %s/%d trajectory: %w", r.SessionID, r.Number, err)
		}
		r.Tempo.Label = analysis.TempoLabel(tempoLabel)
		r.Tempo.Duration = time.Duration(tempoNS)
		r.CompletedAt = time.Unix(0, completedAt).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// RepRecorder persists reps as they complete. Store failures are logged and
// counted, not returned.
//
// The first rep seen for a session ID creates its sessions row when none
// exists, started at that rep's completion time. A tracker Reset issues a
// new session ID, so reps recorded after it land in a new session.
type RepRecorder struct {
	db     *DB
	stored atomic.Uint64
	failed atomic.Uint64

	mu    sync.Mutex
	known map[string]bool
}

// NewRepRecorder returns a tracker.RepListener backed by db.
func NewRepRecorder(db *DB) *RepRecorder {
	return &RepRecorder{db: db, known: make(map[string]bool)}
}

// RepCompleted implements tracker.RepListener.
func (r *RepRecorder) RepCompleted(rep tracker.CompletedRep) {
	if err := r.ensureSession(rep); err != nil {
		r.failed.Add(1)
		monitoring.Logf("db: failed to record rep: %v", err)
		return
	}
	if err := r.db.RecordRep(rep); err != nil {
		r.failed.Add(1)
		monitoring.Logf("db: failed to record rep: %v", err)
		return
	}
	r.stored.Add(1)
}

func (r *RepRecorder) ensureSession(rep tracker.CompletedRep) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.known[rep.SessionID] {
		return nil
	}
	created, err := r.db.EnsureSession(rep.SessionID, rep.Exercise, rep.Side.String(), rep.CompletedAt)
	if err != nil {
		return err
	}
	if created {
		monitoring.Logf("db: opened session %s for %s", rep.SessionID, rep.Exercise)
	}
	r.known[rep.SessionID] = true
	return nil
}

// Stored returns the number of reps written.
func (r *RepRecorder) Stored() uint64 { return r.stored.Load() }

// Failed returns the number of reps that could not be written.
func (r *RepRecorder) Failed() uint64 { return r.failed.Load() }
