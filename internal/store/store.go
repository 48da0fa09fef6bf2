// Package store persists screening results to a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS screenings (
	id            TEXT PRIMARY KEY,
	created_at    TEXT NOT NULL,
	source        TEXT NOT NULL,
	result        TEXT NOT NULL,
	dementia_prob REAL NOT NULL,
	normal_prob   REAL NOT NULL,
	confidence    REAL NOT NULL,
	audio_seconds REAL NOT NULL,
	frames        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_screenings_created_at ON screenings(created_at DESC);
`

// Screening is one recorded analysis.
type Screening struct {
	ID           string
	CreatedAt    time.Time
	Source       string
	Result       string
	DementiaProb float64
	NormalProb   float64
	Confidence   float64
	AudioSeconds float64
	Frames       int
}

// Store wraps the screenings database.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Record inserts one screening row.
func (s *Store) Record(ctx context.Context, sc Screening) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO screenings
			(id, created_at, source, result, dementia_prob, normal_prob, confidence, audio_seconds, frames)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sc.ID,
		sc.CreatedAt.UTC().Format(time.RFC3339Nano),
		sc.Source,
		sc.Result,
		sc.DementiaProb,
		sc.NormalProb,
		sc.Confidence,
		sc.AudioSeconds,
		sc.Frames,
	)
	if err != nil {
		return fmt.Errorf("insert screening: %w", err)
	}
	return nil
}

// Recent returns up to limit screenings, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Screening, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, source, result, dementia_prob, normal_prob, confidence, audio_seconds, frames
		FROM screenings
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query screenings: %w", err)
	}
	defer rows.Close()

	var out []Screening
	for rows.Next() {
		var sc Screening
		var createdAt string
		if err := rows.Scan(&sc.ID, &createdAt, &sc.Source, &sc.Result,
			&sc.DementiaProb, &sc.NormalProb, &sc.Confidence, &sc.AudioSeconds, &sc.Frames); err != nil {
			return nil, fmt.Errorf("scan screening: %w", err)
		}
		ts, parseErr := time.Parse(time.RFC3339Nano, createdAt)
		if parseErr != nil {
			return nil, fmt.Errorf("parse created_at %q: %w", createdAt, parseErr)
		}
		sc.CreatedAt = ts
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate screenings: %w", err)
	}
	return out, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
