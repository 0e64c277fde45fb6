package database

import (
	"context"
	"database/sql"

	"github.com/TobiSchelling/catchfeed/internal/achievements"
)

// step is one versioned schema change. Versions are contiguous from 1.
type step struct {
	version int
	name    string
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var steps = []step{
	{
		version: 1,
		name:    "initial schema",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			_, err := tx.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    first_name TEXT,
    last_name TEXT,
    avatar_url TEXT,
    is_anonymous INTEGER DEFAULT 0,
    is_rewards_member INTEGER DEFAULT 0,
    created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS harvest_reports (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL REFERENCES users(id),
    harvest_date TEXT NOT NULL,
    created_at TEXT NOT NULL,
    photo_url TEXT,
    area_label TEXT,
    red_drum_count INTEGER DEFAULT 0,
    flounder_count INTEGER DEFAULT 0,
    spotted_seatrout_count INTEGER DEFAULT 0,
    weakfish_count INTEGER DEFAULT 0,
    striped_bass_count INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS report_catches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    report_id TEXT NOT NULL REFERENCES harvest_reports(id) ON DELETE CASCADE,
    species TEXT NOT NULL,
    count INTEGER NOT NULL DEFAULT 1,
    lengths TEXT,
    tag_number TEXT
);

CREATE TABLE IF NOT EXISTS user_species_stats (
    user_id TEXT NOT NULL,
    species TEXT NOT NULL,
    total_count INTEGER NOT NULL DEFAULT 0,
    largest_length REAL,
    last_caught_at TEXT,
    PRIMARY KEY (user_id, species)
);

CREATE TABLE IF NOT EXISTS user_stats (
    user_id TEXT PRIMARY KEY,
    total_reports INTEGER NOT NULL DEFAULT 0,
    total_fish INTEGER NOT NULL DEFAULT 0,
    current_streak_days INTEGER NOT NULL DEFAULT 0,
    longest_streak_days INTEGER NOT NULL DEFAULT 0,
    last_active_at TEXT,
    updated_at TEXT
);

CREATE TABLE IF NOT EXISTS achievements (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    code TEXT UNIQUE NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    category TEXT,
    icon TEXT,
    is_active INTEGER DEFAULT 1,
    sort_order INTEGER DEFAULT 0
);

CREATE TABLE IF NOT EXISTS user_achievements (
    user_id TEXT NOT NULL,
    achievement_id INTEGER NOT NULL REFERENCES achievements(id),
    earned_at TEXT NOT NULL,
    report_id TEXT,
    PRIMARY KEY (user_id, achievement_id)
);

CREATE TABLE IF NOT EXISTS catch_likes (
    report_id TEXT NOT NULL REFERENCES harvest_reports(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    created_at TEXT NOT NULL,
    PRIMARY KEY (report_id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_reports_created ON harvest_reports(created_at);
CREATE INDEX IF NOT EXISTS idx_reports_user ON harvest_reports(user_id, harvest_date);
CREATE INDEX IF NOT EXISTS idx_report_catches_report ON report_catches(report_id);
CREATE INDEX IF NOT EXISTS idx_catch_likes_report ON catch_likes(report_id);
`)
			return err
		},
	},
	{
		version: 2,
		name:    "seed achievement catalog",
		apply: func(ctx context.Context, tx *sql.Tx) error {
			for _, a := range achievements.DefaultCatalog() {
				_, err := tx.ExecContext(ctx,
					`INSERT OR IGNORE INTO achievements (code, name, description, category, icon, is_active, sort_order)
					VALUES (?, ?, ?, ?, ?, ?, ?)`,
					a.Code, a.Name, a.Description, a.Category, a.Icon, boolInt(a.IsActive), a.SortOrder,
				)
				if err != nil {
					return err
				}
			}
			return nil
		},
	},
}

func latestVersion() int {
	if len(steps) == 0 {
		return 0
	}
	return steps[len(steps)-1].version
}

// pending returns the steps newer than version.
func pending(version int) []step {
	for i, s := range steps {
		if s.version > version {
			return steps[i:]
		}
	}
	return nil
}
