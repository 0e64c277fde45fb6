package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

type userStatsRow struct {
	UserID            string     `db:"user_id"`
	TotalReports      int        `db:"total_reports"`
	TotalFish         int        `db:"total_fish"`
	CurrentStreakDays int        `db:"current_streak_days"`
	LongestStreakDays int        `db:"longest_streak_days"`
	LastActiveAt      *time.Time `db:"last_active_at"`
}

type speciesStatRow struct {
	UserID        string     `db:"user_id"`
	Species       string     `db:"species"`
	TotalCount    int        `db:"total_count"`
	LargestLength *float64   `db:"largest_length"`
	LastCaughtAt  *time.Time `db:"last_caught_at"`
}

func (r speciesStatRow) stat() harvest.UserSpeciesStat {
	return harvest.UserSpeciesStat{
		UserID:        r.UserID,
		Species:       harvest.Species(r.Species),
		TotalCount:    r.TotalCount,
		LargestLength: r.LargestLength,
		LastCaughtAt:  r.LastCaughtAt,
	}
}

// GetUserStats returns the stats row, or nil if none exists.
func (s *Store) GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error) {
	var r userStatsRow
	err := s.db.GetContext(ctx, &r, `
SELECT user_id, total_reports, total_fish, current_streak_days, longest_streak_days, last_active_at
FROM user_stats WHERE user_id = $1
`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := harvest.UserStats(r)
	return &st, nil
}

// PutUserStats writes the stats row.
func (s *Store) PutUserStats(ctx context.Context, st harvest.UserStats) error {
	return putUserStats(ctx, s.db, st)
}

// GetSpeciesStat returns one (user, species) row, or nil.
func (s *Store) GetSpeciesStat(ctx context.Context, userID string, species harvest.Species) (*harvest.UserSpeciesStat, error) {
	var r speciesStatRow
	err := s.db.GetContext(ctx, &r, `
SELECT user_id, species, total_count, largest_length, last_caught_at
FROM user_species_stats WHERE user_id = $1 AND species = $2
`, userID, string(species))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st := r.stat()
	return &st, nil
}

// PutSpeciesStat writes one (user, species) row.
func (s *Store) PutSpeciesStat(ctx context.Context, st harvest.UserSpeciesStat) error {
	return putSpeciesStat(ctx, s.db, st)
}

// SpeciesStats returns a user's species rows, largest total first.
func (s *Store) SpeciesStats(ctx context.Context, userID string) ([]harvest.UserSpeciesStat, error) {
	rows := []speciesStatRow{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT user_id, species, total_count, largest_length, last_caught_at
FROM user_species_stats WHERE user_id = $1
ORDER BY total_count DESC, species ASC
`, userID); err != nil {
		return nil, err
	}
	out := make([]harvest.UserSpeciesStat, len(rows))
	for i, r := range rows {
		out[i] = r.stat()
	}
	return out, nil
}

// ReplaceUserStats swaps a user's stats and species rows in one transaction.
func (s *Store) ReplaceUserStats(ctx context.Context, st harvest.UserStats, species []harvest.UserSpeciesStat) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_species_stats WHERE user_id = $1`, st.UserID); err != nil {
		return fmt.Errorf("clearing species stats: %w", err)
	}
	for _, sp := range species {
		if err := putSpeciesStat(ctx, tx, sp); err != nil {
			return err
		}
	}
	if err := putUserStats(ctx, tx, st); err != nil {
		return err
	}
	return tx.Commit()
}

func putUserStats(ctx context.Context, ex sqlx.ExecerContext, st harvest.UserStats) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO user_stats (user_id, total_reports, total_fish, current_streak_days, longest_streak_days, last_active_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,now())
ON CONFLICT (user_id) DO UPDATE SET
  total_reports = EXCLUDED.total_reports,
  total_fish = EXCLUDED.total_fish,
  current_streak_days = EXCLUDED.current_streak_days,
  longest_streak_days = EXCLUDED.longest_streak_days,
  last_active_at = EXCLUDED.last_active_at,
  updated_at = now()
`, st.UserID, st.TotalReports, st.TotalFish, st.CurrentStreakDays, st.LongestStreakDays, st.LastActiveAt)
	if err != nil {
		return fmt.Errorf("writing user stats %s: %w", st.UserID, err)
	}
	return nil
}

func putSpeciesStat(ctx context.Context, ex sqlx.ExecerContext, st harvest.UserSpeciesStat) error {
	_, err := ex.ExecContext(ctx, `
INSERT INTO user_species_stats (user_id, species, total_count, largest_length, last_caught_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (user_id, species) DO UPDATE SET
  total_count = EXCLUDED.total_count,
  largest_length = EXCLUDED.largest_length,
  last_caught_at = EXCLUDED.last_caught_at
`, st.UserID, string(st.Species), st.TotalCount, st.LargestLength, st.LastCaughtAt)
	if err != nil {
		return fmt.Errorf("writing species stat %s/%s: %w", st.UserID, st.Species, err)
	}
	return nil
}

// Stats returns row counts of the main tables.
func (s *Store) Stats(ctx context.Context) (*harvest.StoreStatus, error) {
	st := &harvest.StoreStatus{}
	for _, q := range st.Tables() {
		if err := s.db.GetContext(ctx, q.Dest, "SELECT COUNT(*) FROM "+q.Table); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.Table, err)
		}
	}
	return st, nil
}
