package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	"modernc.org/sqlite"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/stats"
)

func init() {
	// catch_length(text) is stats.ParseLength inside SQL: a positive length
	// in inches, or NULL when the value does not parse.
	sqlite.MustRegisterDeterministicScalarFunction("catch_length", 1, catchLength)
}

func catchLength(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	var raw string
	switch v := args[0].(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	case int64:
		raw = fmt.Sprint(v)
	case float64:
		raw = fmt.Sprint(v)
	default:
		return nil, nil
	}
	if n, ok := stats.ParseLength(raw); ok {
		return n, nil
	}
	return nil, nil
}

// leaderboardQuery aggregates the reports created since ?1 per user. A report
// with itemized catches contributes those; otherwise its five count columns
// do. The result holds the top ?2 users of each metric.
const leaderboardQuery = `
WITH windowed AS (
    SELECT r.*,
        EXISTS (SELECT 1 FROM report_catches c WHERE c.report_id = r.id AND c.count > 0) AS itemized
    FROM harvest_reports r
    WHERE r.created_at >= ?1
),
catches AS (
    SELECT w.user_id, c.species, c.count, c.lengths, w.created_at
    FROM windowed w JOIN report_catches c ON c.report_id = w.id
    WHERE w.itemized AND c.count > 0
    UNION ALL
    SELECT user_id, 'red_drum', red_drum_count, NULL, created_at FROM windowed WHERE NOT itemized AND red_drum_count > 0
    UNION ALL
    SELECT user_id, 'flounder', flounder_count, NULL, created_at FROM windowed WHERE NOT itemized AND flounder_count > 0
    UNION ALL
    SELECT user_id, 'spotted_seatrout', spotted_seatrout_count, NULL, created_at FROM windowed WHERE NOT itemized AND spotted_seatrout_count > 0
    UNION ALL
    SELECT user_id, 'weakfish', weakfish_count, NULL, created_at FROM windowed WHERE NOT itemized AND weakfish_count > 0
    UNION ALL
    SELECT user_id, 'striped_bass', striped_bass_count, NULL, created_at FROM windowed WHERE NOT itemized AND striped_bass_count > 0
),
lengths AS (
    SELECT c.user_id, MAX(catch_length(j.value)) AS largest
    FROM catches c, json_each(CASE WHEN json_valid(c.lengths) THEN c.lengths ELSE '[]' END) j
    WHERE catch_length(j.value) IS NOT NULL
    GROUP BY c.user_id
),
agg AS (
    SELECT user_id, SUM(count) AS total_fish, COUNT(DISTINCT species) AS species_count, MIN(created_at) AS first_at
    FROM catches
    GROUP BY user_id
),
ranked AS (
    SELECT a.user_id, a.total_fish, a.species_count, a.first_at, l.largest,
        ROW_NUMBER() OVER (ORDER BY a.total_fish DESC, a.first_at, a.user_id) AS fish_rank,
        ROW_NUMBER() OVER (ORDER BY a.species_count DESC, a.first_at, a.user_id) AS species_rank,
        ROW_NUMBER() OVER (ORDER BY COALESCE(l.largest, 0) DESC, a.first_at, a.user_id) AS length_rank
    FROM agg a LEFT JOIN lengths l ON l.user_id = a.user_id
)
SELECT r.user_id, u.first_name, u.last_name, r.total_fish, r.species_count, r.largest, r.first_at
FROM ranked r LEFT JOIN users u ON u.id = r.user_id
WHERE r.fish_rank <= ?2 OR r.species_rank <= ?2 OR r.length_rank <= ?2
ORDER BY r.total_fish DESC, r.first_at, r.user_id`

// Leaderboard returns per-user totals for the trailing days-long window.
func (db *DB) Leaderboard(ctx context.Context, days, limit int) ([]harvest.LeaderboardRow, error) {
	since := time.Now().AddDate(0, 0, -days)
	rows, err := db.conn.QueryContext(ctx, leaderboardQuery, formatTime(since), limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard query: %w", err)
	}
	defer rows.Close()

	var out []harvest.LeaderboardRow
	for rows.Next() {
		var r harvest.LeaderboardRow
		var first, last sql.NullString
		var largest sql.NullFloat64
		var firstAt string
		if err := rows.Scan(&r.UserID, &first, &last, &r.TotalFish, &r.SpeciesCount, &largest, &firstAt); err != nil {
			return nil, err
		}
		r.FirstName = nullString(first)
		r.LastName = nullString(last)
		if largest.Valid {
			v := largest.Float64
			r.LargestLength = &v
		}
		if r.FirstReportAt, err = parseTime(firstAt); err != nil {
			return nil, fmt.Errorf("leaderboard first_at: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
