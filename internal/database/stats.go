package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// GetUserStats returns the denormalized stats row, or nil if none exists.
func (db *DB) GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error) {
	var s harvest.UserStats
	var lastActive sql.NullString
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, total_reports, total_fish, current_streak_days, longest_streak_days, last_active_at
		FROM user_stats WHERE user_id = ?`, userID,
	).Scan(&s.UserID, &s.TotalReports, &s.TotalFish, &s.CurrentStreakDays, &s.LongestStreakDays, &lastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if s.LastActiveAt, err = parseNullTime(lastActive); err != nil {
		return nil, fmt.Errorf("user stats %s last_active_at: %w", userID, err)
	}
	return &s, nil
}

// PutUserStats writes the stats row, replacing any previous values.
func (db *DB) PutUserStats(ctx context.Context, s harvest.UserStats) error {
	return putUserStats(ctx, db.conn, s)
}

// GetSpeciesStat returns one (user, species) row, or nil if none exists.
func (db *DB) GetSpeciesStat(ctx context.Context, userID string, species harvest.Species) (*harvest.UserSpeciesStat, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, species, total_count, largest_length, last_caught_at
		FROM user_species_stats WHERE user_id = ? AND species = ?`, userID, string(species),
	)
	if err != nil {
		return nil, err
	}
	stats, err := scanSpeciesStats(rows)
	if err != nil || len(stats) == 0 {
		return nil, err
	}
	return &stats[0], nil
}

// PutSpeciesStat writes one (user, species) row.
func (db *DB) PutSpeciesStat(ctx context.Context, s harvest.UserSpeciesStat) error {
	return putSpeciesStat(ctx, db.conn, s)
}

// SpeciesStats returns all species rows of a user, largest total first.
func (db *DB) SpeciesStats(ctx context.Context, userID string) ([]harvest.UserSpeciesStat, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT user_id, species, total_count, largest_length, last_caught_at
		FROM user_species_stats WHERE user_id = ?
		ORDER BY total_count DESC, species ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	return scanSpeciesStats(rows)
}

// ReplaceUserStats atomically swaps a user's stats and species rows for the
// given values. Used by backfill.
func (db *DB) ReplaceUserStats(ctx context.Context, s harvest.UserStats, species []harvest.UserSpeciesStat) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM user_species_stats WHERE user_id = ?", s.UserID); err != nil {
		return fmt.Errorf("clearing species stats: %w", err)
	}
	for _, sp := range species {
		if err := putSpeciesStat(ctx, tx, sp); err != nil {
			return err
		}
	}
	if err := putUserStats(ctx, tx, s); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func putUserStats(ctx context.Context, ex execer, s harvest.UserStats) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO user_stats (user_id, total_reports, total_fish, current_streak_days, longest_streak_days, last_active_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			total_reports = excluded.total_reports,
			total_fish = excluded.total_fish,
			current_streak_days = excluded.current_streak_days,
			longest_streak_days = excluded.longest_streak_days,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at`,
		s.UserID, s.TotalReports, s.TotalFish, s.CurrentStreakDays, s.LongestStreakDays,
		nullTime(s.LastActiveAt), formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("writing user stats %s: %w", s.UserID, err)
	}
	return nil
}

func putSpeciesStat(ctx context.Context, ex execer, s harvest.UserSpeciesStat) error {
	_, err := ex.ExecContext(ctx,
		`INSERT INTO user_species_stats (user_id, species, total_count, largest_length, last_caught_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, species) DO UPDATE SET
			total_count = excluded.total_count,
			largest_length = excluded.largest_length,
			last_caught_at = excluded.last_caught_at`,
		s.UserID, string(s.Species), s.TotalCount, s.LargestLength, nullTime(s.LastCaughtAt),
	)
	if err != nil {
		return fmt.Errorf("writing species stat %s/%s: %w", s.UserID, s.Species, err)
	}
	return nil
}

func scanSpeciesStats(rows *sql.Rows) ([]harvest.UserSpeciesStat, error) {
	defer rows.Close()
	var out []harvest.UserSpeciesStat
	for rows.Next() {
		var s harvest.UserSpeciesStat
		var species string
		var largest sql.NullFloat64
		var lastCaught sql.NullString
		if err := rows.Scan(&s.UserID, &species, &s.TotalCount, &largest, &lastCaught); err != nil {
			return nil, err
		}
		s.Species = harvest.Species(species)
		if largest.Valid {
			v := largest.Float64
			s.LargestLength = &v
		}
		var err error
		if s.LastCaughtAt, err = parseNullTime(lastCaught); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
