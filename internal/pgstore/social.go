package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

type achievementRow struct {
	ID          int64  `db:"id"`
	Code        string `db:"code"`
	Name        string `db:"name"`
	Description string `db:"description"`
	Category    string `db:"category"`
	Icon        string `db:"icon"`
	IsActive    bool   `db:"is_active"`
	SortOrder   int    `db:"sort_order"`
}

// ActiveAchievements returns the active catalog ordered by sort order.
func (s *Store) ActiveAchievements(ctx context.Context) ([]harvest.Achievement, error) {
	rows := []achievementRow{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT id, code, name, description, category, icon, is_active, sort_order
FROM achievements WHERE is_active
ORDER BY sort_order, id
`); err != nil {
		return nil, err
	}
	out := make([]harvest.Achievement, len(rows))
	for i, r := range rows {
		out[i] = harvest.Achievement(r)
	}
	return out, nil
}

// EarnedAchievementIDs returns the achievement IDs a user holds.
func (s *Store) EarnedAchievementIDs(ctx context.Context, userID string) (map[int64]bool, error) {
	ids := []int64{}
	if err := s.db.SelectContext(ctx, &ids, `SELECT achievement_id FROM user_achievements WHERE user_id = $1`, userID); err != nil {
		return nil, err
	}
	out := make(map[int64]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// UserAchievements returns a user's awards, most recent first.
func (s *Store) UserAchievements(ctx context.Context, userID string) ([]harvest.Achievement, error) {
	rows := []achievementRow{}
	if err := s.db.SelectContext(ctx, &rows, `
SELECT a.id, a.code, a.name, a.description, a.category, a.icon, a.is_active, a.sort_order
FROM user_achievements ua JOIN achievements a ON a.id = ua.achievement_id
WHERE ua.user_id = $1
ORDER BY ua.earned_at DESC, a.sort_order
`, userID); err != nil {
		return nil, err
	}
	out := make([]harvest.Achievement, len(rows))
	for i, r := range rows {
		out[i] = harvest.Achievement(r)
	}
	return out, nil
}

// AwardAchievement records an award; it returns false if already held.
func (s *Store) AwardAchievement(ctx context.Context, a harvest.UserAchievement) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO user_achievements (user_id, achievement_id, earned_at, report_id)
VALUES ($1,$2,$3,$4)
ON CONFLICT (user_id, achievement_id) DO NOTHING
`, a.UserID, a.AchievementID, a.EarnedAt, a.ReportID)
	if err != nil {
		return false, fmt.Errorf("awarding achievement %d: %w", a.AchievementID, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type likeRow struct {
	ReportID string `db:"report_id"`
	Count    int    `db:"count"`
	Liked    bool   `db:"liked"`
}

// LikeSummary returns like counts for the given reports in one query.
func (s *Store) LikeSummary(ctx context.Context, reportIDs []string, viewerID string) (map[string]harvest.LikeState, error) {
	out := make(map[string]harvest.LikeState, len(reportIDs))
	if len(reportIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`
SELECT report_id, COUNT(*) AS count, COALESCE(BOOL_OR(user_id = ?), FALSE) AS liked
FROM catch_likes
WHERE report_id IN (?)
GROUP BY report_id
`, viewerID, reportIDs)
	if err != nil {
		return nil, err
	}
	rows := []likeRow{}
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("loading likes: %w", err)
	}
	for _, r := range rows {
		out[r.ReportID] = harvest.LikeState{Count: r.Count, Liked: viewerID != "" && r.Liked}
	}
	return out, nil
}

// AddLike records a like; repeating it is not an error.
func (s *Store) AddLike(ctx context.Context, reportID, userID string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO catch_likes (report_id, user_id, created_at) VALUES ($1,$2,$3)
ON CONFLICT (report_id, user_id) DO NOTHING
`, reportID, userID, time.Now().UTC())
	return err
}

// RemoveLike deletes a like; a missing like is not an error.
func (s *Store) RemoveLike(ctx context.Context, reportID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM catch_likes WHERE report_id = $1 AND user_id = $2`, reportID, userID)
	return err
}

// CountLikes returns a report's stored like count.
func (s *Store) CountLikes(ctx context.Context, reportID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM catch_likes WHERE report_id = $1`, reportID)
	return n, err
}

type leaderboardRow struct {
	UserID        string    `db:"user_id"`
	FirstName     *string   `db:"first_name"`
	LastName      *string   `db:"last_name"`
	TotalFish     int       `db:"total_fish"`
	SpeciesCount  int       `db:"species_count"`
	LargestLength *float64  `db:"largest_length"`
	FirstReportAt time.Time `db:"first_report_at"`
}

// Leaderboard calls the server-side leaderboard function.
func (s *Store) Leaderboard(ctx context.Context, days, limit int) ([]harvest.LeaderboardRow, error) {
	rows := []leaderboardRow{}
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM leaderboard($1, $2)`, days, limit); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	out := make([]harvest.LeaderboardRow, len(rows))
	for i, r := range rows {
		out[i] = harvest.LeaderboardRow(r)
	}
	return out, nil
}
