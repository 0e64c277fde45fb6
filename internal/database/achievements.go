package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// ActiveAchievements returns the active catalog ordered by sort_order.
func (db *DB) ActiveAchievements(ctx context.Context) ([]harvest.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, code, name, COALESCE(description, ''), COALESCE(category, ''), COALESCE(icon, ''), is_active, sort_order
		FROM achievements WHERE is_active = 1
		ORDER BY sort_order, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []harvest.Achievement
	for rows.Next() {
		var a harvest.Achievement
		var active int
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Category, &a.Icon, &active, &a.SortOrder); err != nil {
			return nil, err
		}
		a.IsActive = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// EarnedAchievementIDs returns the set of achievement IDs a user holds.
func (db *DB) EarnedAchievementIDs(ctx context.Context, userID string) (map[int64]bool, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT achievement_id FROM user_achievements WHERE user_id = ?", userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int64]bool)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

// AwardAchievement records an award. It returns false without error when
// the user already holds the achievement.
func (db *DB) AwardAchievement(ctx context.Context, a harvest.UserAchievement) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_achievements (user_id, achievement_id, earned_at, report_id)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, achievement_id) DO NOTHING`,
		a.UserID, a.AchievementID, formatTime(a.EarnedAt), a.ReportID,
	)
	if err != nil {
		return false, fmt.Errorf("awarding achievement %d: %w", a.AchievementID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UserAchievements returns a user's awards joined with their catalog entries,
// most recent first.
func (db *DB) UserAchievements(ctx context.Context, userID string) ([]harvest.Achievement, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT a.id, a.code, a.name, COALESCE(a.description, ''), COALESCE(a.category, ''), COALESCE(a.icon, ''), a.is_active, a.sort_order
		FROM user_achievements ua JOIN achievements a ON a.id = ua.achievement_id
		WHERE ua.user_id = ?
		ORDER BY ua.earned_at DESC, a.sort_order`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []harvest.Achievement
	for rows.Next() {
		var a harvest.Achievement
		var active sql.NullInt64
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Category, &a.Icon, &active, &a.SortOrder); err != nil {
			return nil, err
		}
		a.IsActive = active.Int64 != 0
		out = append(out, a)
	}
	return out, rows.Err()
}
