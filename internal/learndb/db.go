// Package learndb persists the learning log: sessions, commits, per-frame
// tracker stats, and registry snapshots. The registry's JSON file remains the
// authoritative state; this database is the audit and metrics store behind
// the stats chart.
package learndb

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/tilewatch/internal/tile"
)

type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the learning log database and brings the
// schema up to date.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open learn db %s: %w", path, err)
	}

	// modernc sqlite allows one writer; serialize through a single conn to
	// avoid SQLITE_BUSY from the HTTP handlers.
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.Exec(`PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;`); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("set pragmas: %w", err)
	}

	db := &DB{sqlDB}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Session tags recorded telemetry with one run of the learning loop. It
// implements tile.Recorder.
type Session struct {
	db *DB
	ID string
}

// StartSession registers a new learning session.
func (db *DB) StartSession() (*Session, error) {
	id := uuid.NewString()
	_, err := db.Exec(`INSERT INTO learn_sessions (session_id) VALUES (?)`, id)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return &Session{db: db, ID: id}, nil
}

// RecordCommit stores a committed tile definition in the log.
func (s *Session) RecordCommit(res *tile.CommitResult) error {
	keys := make([]string, len(res.Colors))
	for i, c := range res.Colors {
		keys[i] = c.Key()
	}
	animated := 0
	if res.Animated {
		animated = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO tile_commits (session_id, alias, type_id, colors, animated, sample_count, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, res.Alias, int(res.TypeID), strings.Join(keys, ";"), animated, res.Samples, res.Confidence)
	if err != nil {
		return fmt.Errorf("record commit: %w", err)
	}
	return nil
}

// RecordFrameStats stores one frame's tracker stats.
func (s *Session) RecordFrameStats(frameIdx int, st tile.Stats) error {
	_, err := s.db.Exec(`
		INSERT INTO frame_stats (session_id, frame_idx, positions_tracked, candidates_ready, total_observations, avg_confidence)
		VALUES (?, ?, ?, ?, ?, ?)`,
		s.ID, frameIdx, st.PositionsTracked, st.CandidatesReady, st.TotalObservations, st.AvgConfidence)
	if err != nil {
		return fmt.Errorf("record frame stats: %w", err)
	}
	return nil
}

// CommitRecord is one row of the commit log.
type CommitRecord struct {
	CommitID    int64
	SessionID   string
	Alias       string
	TypeID      int
	Colors      []tile.RGB
	Animated    bool
	SampleCount int
	Confidence  float64
	CreatedAt   time.Time
}

// Commits returns the commit log for a session, oldest first.
func (db *DB) Commits(sessionID string) ([]CommitRecord, error) {
	rows, err := db.Query(`
		SELECT commit_id, session_id, alias, type_id, colors, animated, sample_count, confidence, created_at
		FROM tile_commits WHERE session_id = ? ORDER BY commit_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query commits: %w", err)
	}
	defer rows.Close()

	var out []CommitRecord
	for rows.Next() {
		var rec CommitRecord
		var colors string
		var animated int
		if err := rows.Scan(&rec.CommitID, &rec.SessionID, &rec.Alias, &rec.TypeID,
			&colors, &animated, &rec.SampleCount, &rec.Confidence, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan commit: %w", err)
		}
		rec.Animated = animated != 0
		for _, key := range strings.Split(colors, ";") {
			if key == "" {
				continue
			}
			c, err := tile.ParseColorKey(key)
			if err != nil {
				return nil, fmt.Errorf("commit %d: %w", rec.CommitID, err)
			}
			rec.Colors = append(rec.Colors, c)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// FrameStat is one row of per-frame tracker stats.
type FrameStat struct {
	FrameIdx          int
	PositionsTracked  int
	CandidatesReady   int
	TotalObservations int
	AvgConfidence     float64
}

// FrameStatsSeries returns up to limit frame stats for a session in frame
// order, for charting.
func (db *DB) FrameStatsSeries(sessionID string, limit int) ([]FrameStat, error) {
	rows, err := db.Query(`
		SELECT frame_idx, positions_tracked, candidates_ready, total_observations, avg_confidence
		FROM frame_stats WHERE session_id = ? ORDER BY frame_idx LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query frame stats: %w", err)
	}
	defer rows.Close()

	var out []FrameStat
	for rows.Next() {
		var fs FrameStat
		if err := rows.Scan(&fs.FrameIdx, &fs.PositionsTracked, &fs.CandidatesReady,
			&fs.TotalObservations, &fs.AvgConfidence); err != nil {
			return nil, fmt.Errorf("scan frame stats: %w", err)
		}
		out = append(out, fs)
	}
	return out, rows.Err()
}
