package database

import (
	"context"
	"fmt"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// LikeSummary returns like counts for the given reports in one query, and
// whether viewerID liked each. Reports without likes are absent.
func (db *DB) LikeSummary(ctx context.Context, reportIDs []string, viewerID string) (map[string]harvest.LikeState, error) {
	out := make(map[string]harvest.LikeState, len(reportIDs))
	if len(reportIDs) == 0 {
		return out, nil
	}

	args := make([]any, 0, len(reportIDs)+1)
	args = append(args, viewerID)
	for _, id := range reportIDs {
		args = append(args, id)
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT report_id, COUNT(*), MAX(CASE WHEN user_id = ? THEN 1 ELSE 0 END)
		FROM catch_likes
		WHERE report_id IN (`+placeholders(len(reportIDs))+`)
		GROUP BY report_id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("loading likes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var count, liked int
		if err := rows.Scan(&id, &count, &liked); err != nil {
			return nil, err
		}
		out[id] = harvest.LikeState{Count: count, Liked: viewerID != "" && liked != 0}
	}
	return out, rows.Err()
}

// AddLike records a like; liking twice is not an error.
func (db *DB) AddLike(ctx context.Context, reportID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO catch_likes (report_id, user_id, created_at) VALUES (?, ?, ?)`,
		reportID, userID, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("adding like: %w", err)
	}
	return nil
}

// RemoveLike deletes a like; removing a missing like is not an error.
func (db *DB) RemoveLike(ctx context.Context, reportID, userID string) error {
	_, err := db.conn.ExecContext(ctx,
		"DELETE FROM catch_likes WHERE report_id = ? AND user_id = ?", reportID, userID,
	)
	if err != nil {
		return fmt.Errorf("removing like: %w", err)
	}
	return nil
}

// CountLikes returns the stored like count of a report.
func (db *DB) CountLikes(ctx context.Context, reportID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM catch_likes WHERE report_id = ?", reportID,
	).Scan(&n)
	return n, err
}
