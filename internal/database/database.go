// Package database is the SQLite implementation of the remote aggregation
// store: reports, anglers, statistics, achievements and likes.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// timeLayout is fixed-width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// DB is the SQLite-backed report and statistics store.
type DB struct {
	conn *sql.DB
	path string
}

// connection pragmas applied before migrating.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA busy_timeout=5000",
}

// Open opens the store at dbPath, creating the file and its parent
// directory when missing, and upgrades the schema.
func Open(dbPath string) (*DB, error) {
	return OpenContext(context.Background(), dbPath)
}

// OpenContext is Open with a context bounding setup and migration.
func OpenContext(ctx context.Context, dbPath string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("database: mkdir %s: %w", filepath.Dir(dbPath), err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", dbPath, err)
	}
	// A single connection serializes writers; concurrent stat writes queue
	// here instead of failing with SQLITE_BUSY.
	conn.SetMaxOpenConns(1)

	if err := prepare(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &DB{conn: conn, path: dbPath}, nil
}

func prepare(ctx context.Context, conn *sql.DB) error {
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("database: %s: %w", p, err)
		}
	}
	if _, err := migrate(ctx, conn); err != nil {
		return fmt.Errorf("database: migrate: %w", err)
	}
	return nil
}

// Close releases the connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path is the file backing the store.
func (db *DB) Path() string {
	return db.path
}

// Ping reports harvest.ErrUnavailable when the database cannot be reached.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", harvest.ErrUnavailable, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatDate(t time.Time) string {
	return t.Format(harvest.DateLayout)
}

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, "2006-01-02 15:04:05", harvest.DateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	s := "?"
	for i := 1; i < n; i++ {
		s += ",?"
	}
	return s
}
