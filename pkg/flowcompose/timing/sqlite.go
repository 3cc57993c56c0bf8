package timing

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteSink persists timing events to SQLite.
// It is suitable for single-process production use.
type SQLiteSink struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteSink opens (or creates) a timing database.
// The path should be a file path (e.g., "./timings.db") or ":memory:" for testing.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A :memory: database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS timing_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			container TEXT NOT NULL,
			name TEXT NOT NULL,
			source TEXT NOT NULL,
			duration_ns INTEGER NOT NULL,
			error TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_timing_events_run_id
		ON timing_events(run_id)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Record implements Sink.
func (s *SQLiteSink) Record(evt Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if evt.Time.IsZero() {
		evt.Time = time.Now()
	}

	_, err := s.db.Exec(`
		INSERT INTO timing_events (run_id, container, name, source, duration_ns, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, evt.RunID, evt.Container, evt.Name, evt.Source, int64(evt.Duration), evt.Err,
		evt.Time.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("record timing event: %w", err)
	}
	return nil
}

// Events returns the events of a run in the order they were recorded.
// An empty runID returns every event.
func (s *SQLiteSink) Events(runID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrSinkClosed
	}

	query := `
		SELECT run_id, container, name, source, duration_ns, error, recorded_at
		FROM timing_events`
	var args []any
	if runID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, runID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list timing events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Slowest returns up to limit events ordered by duration, slowest first.
func (s *SQLiteSink) Slowest(limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrSinkClosed
	}

	rows, err := s.db.Query(`
		SELECT run_id, container, name, source, duration_ns, error, recorded_at
		FROM timing_events
		ORDER BY duration_ns DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list slowest timing events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var evt Event
		var durationNs int64
		var recordedAt string
		if err := rows.Scan(&evt.RunID, &evt.Container, &evt.Name, &evt.Source,
			&durationNs, &evt.Err, &recordedAt); err != nil {
			return nil, fmt.Errorf("scan timing event: %w", err)
		}
		evt.Duration = time.Duration(durationNs)
		at, err := time.Parse(time.RFC3339Nano, recordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at of timing event %q: %w", evt.Name, err)
		}
		evt.Time = at
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate timing events: %w", err)
	}
	return events, nil
}

// Close releases the database. Calling Close more than once is safe.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
