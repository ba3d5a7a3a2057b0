// Package journal keeps an optional SQLite audit trail of relay activity.
//
// Only metadata is written: which key was pushed, polled or dropped, how many
// snapshots were involved, and when. Request bodies never reach the journal,
// and nothing in it is loaded back into the cache on start.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// Kind identifies what happened to a key
type Kind string

const (
	KindPush   Kind = "push"
	KindPoll   Kind = "poll"
	KindMiss   Kind = "miss"
	KindEvict  Kind = "evict"
	KindExpire Kind = "expire"
)

// Event is one journal row
type Event struct {
	ID    string    `json:"id"`
	Kind  Kind      `json:"kind"`
	Key   string    `json:"key"`
	Count int       `json:"count"`
	IP    string    `json:"ip,omitempty"`
	At    time.Time `json:"at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id        TEXT PRIMARY KEY,
	kind      TEXT NOT NULL,
	endpoint  TEXT NOT NULL,
	snapshots INTEGER NOT NULL,
	ip        TEXT NOT NULL DEFAULT '',
	at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS events_endpoint ON events (endpoint);
`

// Journal writes events to a SQLite database
type Journal struct {
	db           *sql.DB
	writeTimeout time.Duration
}

// Open opens (creating if needed) the journal database.
// Accepted forms: sqlite://path, sqlite:path, or a plain file path.
func Open(connectionString string) (*Journal, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// :memory: databases are per connection, and SQLite allows one writer at a time
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to journal: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	return &Journal{db: db, writeTimeout: 2 * time.Second}, nil
}

// Close closes the database
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Record appends an event. ID and At are filled in when empty.
func (j *Journal) Record(ctx context.Context, ev Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, j.writeTimeout)
	defer cancel()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO events (id, kind, endpoint, snapshots, ip, at) VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Kind), ev.Key, ev.Count, ev.IP, ev.At.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	return nil
}

// Recent returns up to limit events, newest first. An empty key matches all keys.
func (j *Journal) Recent(ctx context.Context, key string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, endpoint, snapshots, ip, at FROM events`
	args := []any{}
	if key != "" {
		query += ` WHERE endpoint = ?`
		args = append(args, key)
	}
	query += ` ORDER BY rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var ev Event
		var kind string
		var at int64
		if err := rows.Scan(&ev.ID, &kind, &ev.Key, &ev.Count, &ev.IP, &at); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ev.Kind = Kind(kind)
		ev.At = time.UnixMilli(at)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

// CountByKind returns the number of events of each kind
func (j *Journal) CountByKind(ctx context.Context) (map[Kind]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM events GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[Kind]int64)
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		counts[Kind(kind)] = n
	}
	return counts, rows.Err()
}

func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)
	if connStr == "" {
		return "", errors.New("journal path is empty")
	}

	switch {
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		return "", fmt.Errorf("unsupported journal scheme: %s", connStr)
	}

	if connStr == "" {
		return "", errors.New("journal path is empty")
	}
	if connStr == ":memory:" || strings.Contains(connStr, "?") {
		return connStr, nil
	}
	return connStr + "?_journal_mode=WAL&_busy_timeout=5000", nil
}
