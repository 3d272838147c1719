// Package db stores completed training sessions and their retained samples
// in sqlite. The schema is managed by embedded golang-migrate migrations.
package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/weldcoach/internal/fusion"
	"github.com/banshee-data/weldcoach/internal/quality"
	"github.com/banshee-data/weldcoach/internal/session"
	"github.com/banshee-data/weldcoach/internal/technique"
)

// ErrNotFound is returned when a requested session does not exist.
var ErrNotFound = errors.New("db: session not found")

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the sqlite database at path and migrates
// it to the latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// OpenUnmigrated opens the database without touching its schema. Used by
// the migrate subcommand.
func OpenUnmigrated(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return &DB{sqlDB}, nil
}

// SaveSession writes r and its samples in one transaction. Saving the same
// session ID twice replaces the earlier copy.
func (db *DB) SaveSession(r session.Result, samples []session.Sample) error {
	if r.ID == "" {
		return fmt.Errorf("db: session result has no id")
	}
	averages, err := json.Marshal(r.Averages)
	if err != nil {
		return fmt.Errorf("failed to encode averages: %w", err)
	}
	feedback, err := json.Marshal(r.Feedback)
	if err != nil {
		return fmt.Errorf("failed to encode feedback: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM sessions WHERE session_id = ?`, r.ID); err != nil {
		return err
	}
	_, err = tx.Exec(
		`INSERT INTO sessions (
			session_id, technique, duration_ns, score, mean_quality,
			time_in_tolerance, grade, sample_count, averages_json,
			feedback_json, started_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Technique.String(), int64(r.Duration), r.Score, r.MeanQuality,
		r.TimeInTolerance, string(r.Grade), r.Samples, string(averages),
		string(feedback), r.StartedAt.UnixNano(), r.CompletedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO session_samples (
			session_id, seq, ts, quality, pitch, distance, travel_speed,
			stability, vibration, pose_json, breakdown_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, s := range samples {
		pose, err := json.Marshal(s.Pose)
		if err != nil {
			return fmt.Errorf("failed to encode sample %d pose: %w", i, err)
		}
		breakdown, err := json.Marshal(s.Breakdown)
		if err != nil {
			return fmt.Errorf("failed to encode sample %d breakdown: %w", i, err)
		}
		var speed sql.NullFloat64
		if s.Pose.SpeedKnown {
			speed = sql.NullFloat64{Float64: s.Pose.TravelSpeed(), Valid: true}
		}
		if _, err := stmt.Exec(
			r.ID, i, s.Timestamp.UnixNano(), s.Quality, s.Pose.Angle.Pitch,
			s.Pose.Distance, speed, s.Pose.Stability, s.Pose.Vibration,
			string(pose), string(breakdown),
		); err != nil {
			return fmt.Errorf("failed to insert sample %d: %w", i, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `session_id, technique, duration_ns, score, mean_quality,
	time_in_tolerance, grade, sample_count, averages_json, feedback_json,
	started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (session.Result, error) {
	var (
		r                    session.Result
		tech, grade          string
		durationNs           int64
		averages, feedback   string
		startedAt, completed int64
	)
	if err := row.Scan(
		&r.ID, &tech, &durationNs, &r.Score, &r.MeanQuality,
		&r.TimeInTolerance, &grade, &r.Samples, &averages, &feedback,
		&startedAt, &completed,
	); err != nil {
		return session.Result{}, err
	}

	t, err := technique.Parse(tech)
	if err != nil {
		return session.Result{}, fmt.Errorf("session %s: %w", r.ID, err)
	}
	r.Technique = t
	r.Grade = session.Grade(grade)
	r.Duration = time.Duration(durationNs)
	r.StartedAt = time.Unix(0, startedAt).UTC()
	r.CompletedAt = time.Unix(0, completed).UTC()

	if err := json.Unmarshal([]byte(averages), &r.Averages); err != nil {
		return session.Result{}, fmt.Errorf("session %s averages: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(feedback), &r.Feedback); err != nil {
		return session.Result{}, fmt.Errorf("session %s feedback: %w", r.ID, err)
	}
	return r, nil
}

// Session returns the stored result with the given ID.
func (db *DB) Session(id string) (session.Result, error) {
	row := db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE session_id = ?`, id)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Result{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

// RecentSessions returns up to limit results, most recently completed
// first. A non-positive limit returns every session.
func (db *DB) RecentSessions(limit int) ([]session.Result, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY completed_at DESC, session_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Result
	for rows.Next() {
		r, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// BestScore returns the highest-scoring session for t. Ties go to the
// earliest completion. ErrNotFound means no session of that technique was
// stored.
func (db *DB) BestScore(t technique.Technique) (session.Result, error) {
	row := db.QueryRow(
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE technique = ?
		 ORDER BY score DESC, completed_at ASC
		 LIMIT 1`,
		t.String(),
	)
	r, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return session.Result{}, fmt.Errorf("%w: no %s sessions", ErrNotFound, t)
	}
	return r, err
}

// Samples returns the retained samples of a session in recording order.
func (db *DB) Samples(id string) ([]session.Sample, error) {
	rows, err := db.Query(
		`SELECT ts, quality, pose_json, breakdown_json
		 FROM session_samples WHERE session_id = ? ORDER BY seq`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []session.Sample
	for rows.Next() {
		var (
			ts              int64
			q               float64
			pose, breakdown string
		)
		if err := rows.Scan(&ts, &q, &pose, &breakdown); err != nil {
			return nil, err
		}
		s := session.Sample{Quality: q, Timestamp: time.Unix(0, ts).UTC()}
		var p fusion.PoseEstimate
		if err := json.Unmarshal([]byte(pose), &p); err != nil {
			return nil, fmt.Errorf("sample pose: %w", err)
		}
		var b quality.Breakdown
		if err := json.Unmarshal([]byte(breakdown), &b); err != nil {
			return nil, fmt.Errorf("sample breakdown: %w", err)
		}
		s.Pose, s.Breakdown = p, b
		out = append(out, s)
	}
	return out, rows.Err()
}

// TechniqueStats summarises stored sessions of one technique.
type TechniqueStats struct {
	Technique technique.Technique
	Sessions  int
	BestScore int
	MeanScore float64
}

// Stats returns per-technique counts and scores for every technique with at
// least one stored session, ordered by technique.
func (db *DB) Stats() ([]TechniqueStats, error) {
	rows, err := db.Query(
		`SELECT technique, COUNT(*), MAX(score), AVG(score)
		 FROM sessions GROUP BY technique ORDER BY technique`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TechniqueStats
	for rows.Next() {
		var (
			name string
			st   TechniqueStats
		)
		if err := rows.Scan(&name, &st.Sessions, &st.BestScore, &st.MeanScore); err != nil {
			return nil, err
		}
		t, err := technique.Parse(name)
		if err != nil {
			return nil, err
		}
		st.Technique = t
		out = append(out, st)
	}
	return out, rows.Err()
}
