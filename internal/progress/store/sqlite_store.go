// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/lessonguard/internal/domain/playback/model"
	"github.com/ManuGH/lessonguard/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS lesson_progress (
	lesson_id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	session_id TEXT NOT NULL,
	position_seconds REAL NOT NULL,
	duration_seconds REAL NOT NULL DEFAULT 0,
	played_fraction REAL NOT NULL DEFAULT 0,
	reason TEXT NOT NULL DEFAULT '',
	taken_at TEXT NOT NULL,
	PRIMARY KEY (lesson_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_lesson_progress_taken ON lesson_progress(taken_at);
`

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) a progress database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("progress store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) Save(ctx context.Context, sessionID string, snap model.Snapshot) error {
	if err := validate(snap); err != nil {
		return err
	}
	if snap.SessionID == "" {
		snap.SessionID = sessionID
	}
	query := `
	INSERT INTO lesson_progress (lesson_id, user_id, session_id, position_seconds, duration_seconds, played_fraction, reason, taken_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(lesson_id, user_id) DO UPDATE SET
		session_id = excluded.session_id,
		position_seconds = excluded.position_seconds,
		duration_seconds = excluded.duration_seconds,
		played_fraction = excluded.played_fraction,
		reason = excluded.reason,
		taken_at = excluded.taken_at
	`
	_, err := s.DB.ExecContext(ctx, query,
		snap.LessonID, snap.UserID, snap.SessionID, snap.PositionSeconds, snap.DurationSeconds,
		snap.PlayedFraction, string(snap.Reason), snap.TakenAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

func (s *SqliteStore) Load(ctx context.Context, lessonID, userID string) (*model.Snapshot, error) {
	query := `SELECT session_id, position_seconds, duration_seconds, played_fraction, reason, taken_at
	FROM lesson_progress WHERE lesson_id = ? AND user_id = ?`
	snap := model.Snapshot{LessonID: lessonID, UserID: userID}
	var reason, takenAt string
	err := s.DB.QueryRowContext(ctx, query, lessonID, userID).Scan(
		&snap.SessionID, &snap.PositionSeconds, &snap.DurationSeconds, &snap.PlayedFraction, &reason, &takenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	snap.Reason = model.FlushReason(reason)
	snap.TakenAt, _ = time.Parse(time.RFC3339Nano, takenAt)
	return &snap, nil
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
