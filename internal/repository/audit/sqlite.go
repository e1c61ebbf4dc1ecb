package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"
)

// Event captures a single access decision.
type Event struct {
	// DecidedAt is when the decision was taken.
	DecidedAt time.Time
	// Hostname is the reader that sent the request.
	Hostname string
	// UID is the token identifier from the request.
	UID string
	// Name is the token holder, or "unknown".
	Name string
	// Action is the requested action.
	Action string
	// Granted is the outcome.
	Granted bool
	// Reason explains a denial.
	Reason string
}

// Repository persists access decisions.
type Repository interface {
	RecordEvent(ctx context.Context, event Event) error
}

// SQLiteRepository stores events in a SQLite database.
type SQLiteRepository struct {
	// db is the connection pool, limited to a single writer.
	db *sql.DB
}

// ErrInvalidLimit is returned when Recent is called with a non-positive limit.
var ErrInvalidLimit = errors.New("limit must be positive")

const schema = `
CREATE TABLE IF NOT EXISTS access_events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	decided_at INTEGER NOT NULL,
	hostname   TEXT    NOT NULL,
	uid        TEXT    NOT NULL,
	name       TEXT    NOT NULL,
	action     TEXT    NOT NULL,
	granted    INTEGER NOT NULL,
	reason     TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_access_events_decided_at ON access_events(decided_at);
`

// NewSQLiteRepository opens (creating if needed) the database at path.
// Use ":memory:" for a throwaway database.
func NewSQLiteRepository(ctx context.Context, path string) (*SQLiteRepository, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create audit directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	// One connection keeps ":memory:" databases alive and serializes writes.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err = db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("configure audit database: %w", err)
		}
	}

	if _, err = db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate audit database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// RecordEvent appends an event.
func (r *SQLiteRepository) RecordEvent(ctx context.Context, event Event) error {
	const query = `INSERT INTO access_events (decided_at, hostname, uid, name, action, granted, reason)
VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		event.DecidedAt.UnixNano(),
		event.Hostname,
		event.UID,
		event.Name,
		event.Action,
		event.Granted,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert access event: %w", err)
	}

	return nil
}

// Recent returns up to limit events, newest first.
func (r *SQLiteRepository) Recent(ctx context.Context, limit int) ([]Event, error) {
	const query = `SELECT decided_at, hostname, uid, name, action, granted, reason
FROM access_events ORDER BY decided_at DESC, id DESC LIMIT ?`

	return r.query(ctx, limit, query, limit)
}

// RecentByName returns up to limit events of the token holder name, newest first.
func (r *SQLiteRepository) RecentByName(ctx context.Context, name string, limit int) ([]Event, error) {
	const query = `SELECT decided_at, hostname, uid, name, action, granted, reason
FROM access_events WHERE name = ? ORDER BY decided_at DESC, id DESC LIMIT ?`

	return r.query(ctx, limit, query, name, limit)
}

func (r *SQLiteRepository) query(ctx context.Context, limit int, query string, args ...any) ([]Event, error) {
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query access events: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	events := make([]Event, 0, limit)

	for rows.Next() {
		var (
			event     Event
			decidedAt int64
		)

		if err = rows.Scan(
			&decidedAt,
			&event.Hostname,
			&event.UID,
			&event.Name,
			&event.Action,
			&event.Granted,
			&event.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan access event: %w", err)
		}

		event.DecidedAt = time.Unix(0, decidedAt)
		events = append(events, event)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access events: %w", err)
	}

	return events, nil
}

// Close releases the database.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
