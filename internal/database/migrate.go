package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// schemaVersion returns the number of the last applied schema step.
func schemaVersion(ctx context.Context, conn *sql.DB) (int, error) {
	var v int
	if err := conn.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading user_version: %w", err)
	}
	return v, nil
}

// migrate applies every pending schema step in order and returns how many ran.
func migrate(ctx context.Context, conn *sql.DB) (int, error) {
	from, err := schemaVersion(ctx, conn)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, s := range pending(from) {
		if err := applyStep(ctx, conn, s); err != nil {
			return applied, err
		}
		applied++
	}
	if applied > 0 {
		slog.Info("Schema upgraded",
			slog.Int("from", from),
			slog.Int("to", latestVersion()),
			slog.Int("steps", applied),
		)
	}
	return applied, nil
}

func applyStep(ctx context.Context, conn *sql.DB, s step) error {
	slog.Debug("Applying schema step", slog.Int("version", s.version), slog.String("name", s.name))

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("schema step %d: begin: %w", s.version, err)
	}
	if err := s.apply(ctx, tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("schema step %d %q: %w", s.version, s.name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("schema step %d: commit: %w", s.version, err)
	}

	// modernc/sqlite rejects user_version writes inside a transaction. Steps
	// are idempotent, so a crash before this line just replays the step.
	if _, err := conn.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", s.version)); err != nil {
		return fmt.Errorf("schema step %d: record version: %w", s.version, err)
	}
	return nil
}

// SchemaVersion reports the applied schema version of the open database.
func (db *DB) SchemaVersion(ctx context.Context) (int, error) {
	return schemaVersion(ctx, db.conn)
}
