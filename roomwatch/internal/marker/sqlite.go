package marker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/roomwatch/dbopen"

	_ "modernc.org/sqlite"
)

// Schema holds the marker row and the run history.
const Schema = `
CREATE TABLE IF NOT EXISTS roomwatch_marker (
	name       TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS roomwatch_runs (
	run_id      TEXT PRIMARY KEY,
	status      TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	total       INTEGER NOT NULL DEFAULT 0,
	vals        TEXT NOT NULL DEFAULT '[]',
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_roomwatch_runs_started ON roomwatch_runs(started_at);
`

const markerName = "last_sent"

// RunRecord is one row of run history.
type RunRecord struct {
	RunID     string
	Status    string
	Label     string
	Total     int
	Values    []int
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// SQLite stores the marker in a table and keeps a run history next to it.
type SQLite struct {
	db    *sql.DB
	owned bool
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("marker: %w", err)
	}
	return &SQLite{db: db, owned: true}, nil
}

// NewSQLite wraps an already open database and applies the schema.
func NewSQLite(db *sql.DB) (*SQLite, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("marker: apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM roomwatch_marker WHERE name = ?`, markerName).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("marker: select: %w", err)
	}
	return v, nil
}

func (s *SQLite) Set(ctx context.Context, value string) error {
	_, err := dbopen.Exec(ctx, s.db, `
		INSERT INTO roomwatch_marker (name, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		markerName, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("marker: upsert: %w", err)
	}
	return nil
}

// Record appends a run to the history.
func (s *SQLite) Record(ctx context.Context, r RunRecord) error {
	vals, err := json.Marshal(r.Values)
	if err != nil {
		return fmt.Errorf("marker: marshal values: %w", err)
	}
	if r.Values == nil {
		vals = []byte("[]")
	}
	_, err = dbopen.Exec(ctx, s.db, `
		INSERT OR REPLACE INTO roomwatch_runs
			(run_id, status, label, total, vals, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Status, r.Label, r.Total, string(vals), r.Error,
		r.StartedAt.UnixMilli(), r.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("marker: insert run: %w", err)
	}
	return nil
}

// Recent returns up to limit runs, newest first.
func (s *SQLite) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, status, label, total, vals, error, started_at, duration_ms
		FROM roomwatch_runs
		ORDER BY started_at DESC, run_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("marker: query runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var vals string
		var startedMs, durMs int64
		if err := rows.Scan(&r.RunID, &r.Status, &r.Label, &r.Total, &vals, &r.Error, &startedMs, &durMs); err != nil {
			return nil, fmt.Errorf("marker: scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(vals), &r.Values); err != nil {
			return nil, fmt.Errorf("marker: decode values: %w", err)
		}
		r.StartedAt = time.UnixMilli(startedMs)
		r.Duration = time.Duration(durMs) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database if this store opened it.
func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}
