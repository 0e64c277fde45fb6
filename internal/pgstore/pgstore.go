// Package pgstore is the PostgreSQL implementation of the remote
// aggregation store. The weekly leaderboard is computed server-side by the
// leaderboard(days, lim) SQL function.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// Store is a PostgreSQL-backed remote store.
type Store struct {
	db *sqlx.DB
}

// Open connects to dsn and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", harvest.ErrUnavailable, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports harvest.ErrUnavailable when the server cannot be reached.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", harvest.ErrUnavailable, err)
	}
	return nil
}

type reportRow struct {
	ID              string    `db:"id"`
	UserID          string    `db:"user_id"`
	HarvestDate     time.Time `db:"harvest_date"`
	CreatedAt       time.Time `db:"created_at"`
	PhotoURL        *string   `db:"photo_url"`
	AreaLabel       *string   `db:"area_label"`
	RedDrum         int       `db:"red_drum_count"`
	Flounder        int       `db:"flounder_count"`
	SpottedSeatrout int       `db:"spotted_seatrout_count"`
	Weakfish        int       `db:"weakfish_count"`
	StripedBass     int       `db:"striped_bass_count"`
	FirstName       *string   `db:"first_name"`
	LastName        *string   `db:"last_name"`
	AvatarURL       *string   `db:"avatar_url"`
}

func (r reportRow) report() harvest.Report {
	return harvest.Report{
		ID:          r.ID,
		UserID:      r.UserID,
		HarvestDate: r.HarvestDate,
		CreatedAt:   r.CreatedAt,
		PhotoURL:    r.PhotoURL,
		AreaLabel:   r.AreaLabel,
		Counts: harvest.AggregateCounts{
			RedDrum:         r.RedDrum,
			Flounder:        r.Flounder,
			SpottedSeatrout: r.SpottedSeatrout,
			Weakfish:        r.Weakfish,
			StripedBass:     r.StripedBass,
		},
	}
}

type catchRow struct {
	ReportID  string         `db:"report_id"`
	Species   string         `db:"species"`
	Count     int            `db:"count"`
	Lengths   sql.NullString `db:"lengths"`
	TagNumber *string        `db:"tag_number"`
}

const reportColumns = `r.id, r.user_id, r.harvest_date, r.created_at, r.photo_url, r.area_label,
  r.red_drum_count, r.flounder_count, r.spotted_seatrout_count, r.weakfish_count, r.striped_bass_count`

const feedColumns = reportColumns + `, u.first_name, u.last_name, u.avatar_url`

// InsertReport stores a report with its resolved itemized catches.
func (s *Store) InsertReport(ctx context.Context, r harvest.Report) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
INSERT INTO harvest_reports (id, user_id, harvest_date, created_at, photo_url, area_label,
  red_drum_count, flounder_count, spotted_seatrout_count, weakfish_count, striped_bass_count)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, r.ID, r.UserID, r.HarvestDate, createdAt, r.PhotoURL, r.AreaLabel,
		r.Counts.RedDrum, r.Counts.Flounder, r.Counts.SpottedSeatrout, r.Counts.Weakfish, r.Counts.StripedBass)
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
			v := string(data)
			lengths = &v
		}
		var tag *string
		if c.TagNumber != "" {
			tag = &c.TagNumber
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO report_catches (report_id, species, count, lengths, tag_number)
VALUES ($1,$2,$3,$4::jsonb,$5)
`, r.ID, string(c.Species), c.Count, lengths, tag)
		if err != nil {
			return fmt.Errorf("inserting catch: %w", err)
		}
	}
	return tx.Commit()
}

// RecentReports returns a page of reports, newest first.
func (s *Store) RecentReports(ctx context.Context, offset, limit int) ([]harvest.FeedRow, error) {
	return s.feedRows(ctx, `
SELECT `+feedColumns+`
FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
ORDER BY r.created_at DESC, r.id DESC
LIMIT $1 OFFSET $2
`, limit, offset)
}

// RecentUserReports returns a user's newest reports.
func (s *Store) RecentUserReports(ctx context.Context, userID string, limit int) ([]harvest.FeedRow, error) {
	return s.feedRows(ctx, `
SELECT `+feedColumns+`
FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
WHERE r.user_id = $1
ORDER BY r.created_at DESC, r.id DESC
LIMIT $2
`, userID, limit)
}

// ReportsSince returns reports created at or after since, oldest first.
func (s *Store) ReportsSince(ctx context.Context, since time.Time) ([]harvest.FeedRow, error) {
	return s.feedRows(ctx, `
SELECT `+feedColumns+`
FROM harvest_reports r LEFT JOIN users u ON u.id = r.user_id
WHERE r.created_at >= $1
ORDER BY r.created_at ASC, r.id ASC
`, since)
}

// UserReports returns a user's full history in chronological order.
func (s *Store) UserReports(ctx context.Context, userID string) ([]harvest.Report, error) {
	rows, err := s.feedRows(ctx, `
SELECT `+reportColumns+`
FROM harvest_reports r
WHERE r.user_id = $1
ORDER BY r.harvest_date ASC, r.created_at ASC
`, userID)
	if err != nil {
		return nil, err
	}
	out := make([]harvest.Report, len(rows))
	for i, r := range rows {
		out[i] = r.Report
	}
	return out, nil
}

// CountPhotoReports counts a user's reports with a photo.
func (s *Store) CountPhotoReports(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
SELECT COUNT(*) FROM harvest_reports
WHERE user_id = $1 AND photo_url IS NOT NULL AND photo_url <> ''
`, userID)
	return n, err
}

func (s *Store) feedRows(ctx context.Context, query string, args ...any) ([]harvest.FeedRow, error) {
	rows := []reportRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, len(rows))
	index := make(map[string]int, len(rows))
	out := make([]harvest.FeedRow, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
		index[r.ID] = i
		out[i] = harvest.FeedRow{Report: r.report(), FirstName: r.FirstName, LastName: r.LastName, AvatarURL: r.AvatarURL}
	}

	q, qargs, err := sqlx.In(`SELECT report_id, species, count, lengths::text AS lengths, tag_number
FROM report_catches WHERE report_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	catches := []catchRow{}
	if err := s.db.SelectContext(ctx, &catches, s.db.Rebind(q), qargs...); err != nil {
		return nil, fmt.Errorf("loading catches: %w", err)
	}
	for _, c := range catches {
		sc := harvest.SpeciesCatch{Species: harvest.Species(c.Species), Count: c.Count}
		if c.TagNumber != nil {
			sc.TagNumber = *c.TagNumber
		}
		if c.Lengths.Valid {
			_ = json.Unmarshal([]byte(c.Lengths.String), &sc.Lengths)
		}
		i := index[c.ReportID]
		out[i].Report.Items = append(out[i].Report.Items, sc)
	}
	return out, nil
}

// UpsertUser creates the user or refreshes its profile fields.
func (s *Store) UpsertUser(ctx context.Context, u harvest.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO users (id, first_name, last_name, avatar_url, is_anonymous, is_rewards_member, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
  first_name = COALESCE(EXCLUDED.first_name, users.first_name),
  last_name = COALESCE(EXCLUDED.last_name, users.last_name),
  avatar_url = COALESCE(EXCLUDED.avatar_url, users.avatar_url),
  is_anonymous = EXCLUDED.is_anonymous,
  is_rewards_member = EXCLUDED.is_rewards_member
`, u.ID, u.FirstName, u.LastName, u.AvatarURL, u.IsAnonymous, u.IsRewardsMember, createdAt)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

type userRow struct {
	ID              string    `db:"id"`
	FirstName       *string   `db:"first_name"`
	LastName        *string   `db:"last_name"`
	AvatarURL       *string   `db:"avatar_url"`
	IsAnonymous     bool      `db:"is_anonymous"`
	IsRewardsMember bool      `db:"is_rewards_member"`
	CreatedAt       time.Time `db:"created_at"`
}

// GetUser returns the user, or nil if not found.
func (s *Store) GetUser(ctx context.Context, userID string) (*harvest.User, error) {
	var r userRow
	err := s.db.GetContext(ctx, &r, `
SELECT id, first_name, last_name, avatar_url, is_anonymous, is_rewards_member, created_at
FROM users WHERE id = $1
`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u := harvest.User(r)
	return &u, nil
}

// IsRewardsMember reports the user's rewards flag.
func (s *Store) IsRewardsMember(ctx context.Context, userID string) (bool, error) {
	var member bool
	err := s.db.GetContext(ctx, &member, `SELECT is_rewards_member FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return member, err
}
