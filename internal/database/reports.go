package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

const reportColumns = `r.id, r.user_id, r.harvest_date, r.created_at, r.photo_url, r.area_label,
	r.red_drum_count, r.flounder_count, r.spotted_seatrout_count, r.weakfish_count, r.striped_bass_count`

const feedColumns = reportColumns + `, u.first_name, u.last_name, u.avatar_url`

// InsertReport stores a report. Itemized catches are resolved to canonical
// species before they are written; aggregate columns are kept as submitted.
func (db *DB) InsertReport(ctx context.Context, r harvest.Report) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO harvest_reports (id, user_id, harvest_date, created_at, photo_url, area_label,
			red_drum_count, flounder_count, spotted_seatrout_count, weakfish_count, striped_bass_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, formatDate(r.HarvestDate), formatTime(createdAt), r.PhotoURL, r.AreaLabel,
		r.Counts.RedDrum, r.Counts.Flounder, r.Counts.SpottedSeatrout, r.Counts.Weakfish, r.Counts.StripedBass,
	)
	if err != nil {
		return fmt.Errorf("inserting report: %w", err)
	}

	for _, c := range r.Items.Catches() {
		var lengths *string
		if len(c.Lengths) > 0 {
			data, err := json.Marshal(c.Lengths)
			if err != nil {
				return err
			}
			s := string(data)
			lengths = &s
		}
		var tag *string
		if c.TagNumber != "" {
			tag = &c.TagNumber
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO report_catches (report_id, species, count, lengths, tag_number) VALUES (?, ?, ?, ?, ?)`,
			r.ID, string(c.Species), c.Count, lengths, tag,
		)
		if err != nil {
			return fmt.Errorf("inserting catch: %w", err)
		}
	}

	return tx.Commit()
}

// GetReport returns a single report by ID, or nil if it does not exist.
func (db *DB) GetReport(ctx context.Context, reportID string) (*harvest.Report, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM harvest_reports r WHERE r.id = ?`, reportID,
	)
	if err != nil {
		return nil, err
	}
	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, nil
	}
	if err := db.attachCatches(ctx, reports); err != nil {
		return nil, err
	}
	return &reports[0], nil
}

// RecentReports returns a page of reports, newest first.
func (db *DB) RecentReports(ctx context.Context, offset, limit int) ([]harvest.FeedRow, error) {
	return db.queryFeedRows(ctx,
		`SELECT `+feedColumns+`
		FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ? OFFSET ?`, limit, offset,
	)
}

// RecentUserReports returns a user's newest reports.
func (db *DB) RecentUserReports(ctx context.Context, userID string, limit int) ([]harvest.FeedRow, error) {
	return db.queryFeedRows(ctx,
		`SELECT `+feedColumns+`
		FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.user_id = ?
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT ?`, userID, limit,
	)
}

// ReportsSince returns every report created at or after since, oldest first.
func (db *DB) ReportsSince(ctx context.Context, since time.Time) ([]harvest.FeedRow, error) {
	return db.queryFeedRows(ctx,
		`SELECT `+feedColumns+`
		FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.created_at >= ?
		ORDER BY r.created_at ASC, r.id ASC`, formatTime(since),
	)
}

// UserReports returns a user's complete history in chronological order.
func (db *DB) UserReports(ctx context.Context, userID string) ([]harvest.Report, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reportColumns+`
		FROM harvest_reports r WHERE r.user_id = ?
		ORDER BY r.harvest_date ASC, r.created_at ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	reports, err := scanReports(rows)
	if err != nil {
		return nil, err
	}
	if err := db.attachCatches(ctx, reports); err != nil {
		return nil, err
	}
	return reports, nil
}

// CountPhotoReports counts a user's reports with a photo attached.
func (db *DB) CountPhotoReports(ctx context.Context, userID string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM harvest_reports
		WHERE user_id = ? AND photo_url IS NOT NULL AND photo_url != ''`, userID,
	).Scan(&n)
	return n, err
}

func (db *DB) queryFeedRows(ctx context.Context, query string, args ...any) ([]harvest.FeedRow, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	feedRows, err := scanFeedRows(rows)
	if err != nil {
		return nil, err
	}

	reports := make([]harvest.Report, len(feedRows))
	for i := range feedRows {
		reports[i] = feedRows[i].Report
	}
	if err := db.attachCatches(ctx, reports); err != nil {
		return nil, err
	}
	for i := range feedRows {
		feedRows[i].Report = reports[i]
	}
	return feedRows, nil
}

// attachCatches loads itemized catches for all reports in one query.
func (db *DB) attachCatches(ctx context.Context, reports []harvest.Report) error {
	if len(reports) == 0 {
		return nil
	}

	args := make([]any, len(reports))
	index := make(map[string]int, len(reports))
	for i, r := range reports {
		args[i] = r.ID
		index[r.ID] = i
	}

	rows, err := db.conn.QueryContext(ctx,
		`SELECT report_id, species, count, lengths, tag_number FROM report_catches
		WHERE report_id IN (`+placeholders(len(args))+`) ORDER BY id`, args...,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var reportID, species string
		var count int
		var lengths, tag sql.NullString
		if err := rows.Scan(&reportID, &species, &count, &lengths, &tag); err != nil {
			return err
		}
		c := harvest.SpeciesCatch{Species: harvest.Species(species), Count: count, TagNumber: tag.String}
		if lengths.Valid && lengths.String != "" {
			// Malformed length lists are dropped; the catch itself still counts.
			_ = json.Unmarshal([]byte(lengths.String), &c.Lengths)
		}
		i := index[reportID]
		reports[i].Items = append(reports[i].Items, c)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(s rowScanner, extra ...any) (harvest.Report, error) {
	var r harvest.Report
	var harvestDate, createdAt string
	var photo, area sql.NullString
	dest := []any{&r.ID, &r.UserID, &harvestDate, &createdAt, &photo, &area,
		&r.Counts.RedDrum, &r.Counts.Flounder, &r.Counts.SpottedSeatrout, &r.Counts.Weakfish, &r.Counts.StripedBass}
	if err := s.Scan(append(dest, extra...)...); err != nil {
		return r, err
	}

	var err error
	if r.HarvestDate, err = time.Parse(harvest.DateLayout, harvestDate); err != nil {
		return r, fmt.Errorf("report %s harvest date: %w", r.ID, err)
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return r, fmt.Errorf("report %s created_at: %w", r.ID, err)
	}
	if photo.Valid {
		r.PhotoURL = &photo.String
	}
	if area.Valid {
		r.AreaLabel = &area.String
	}
	return r, nil
}

func scanReports(rows *sql.Rows) ([]harvest.Report, error) {
	defer rows.Close()
	var reports []harvest.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func scanFeedRows(rows *sql.Rows) ([]harvest.FeedRow, error) {
	defer rows.Close()
	var out []harvest.FeedRow
	for rows.Next() {
		var first, last, avatar sql.NullString
		r, err := scanReport(rows, &first, &last, &avatar)
		if err != nil {
			return nil, err
		}
		out = append(out, harvest.FeedRow{
			Report:    r,
			FirstName: nullString(first),
			LastName:  nullString(last),
			AvatarURL: nullString(avatar),
		})
	}
	return out, rows.Err()
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
