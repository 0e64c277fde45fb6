package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// UpsertUser creates the user or refreshes its profile fields. Calling it
// repeatedly with the same user is a no-op. created_at is never changed.
func (db *DB) UpsertUser(ctx context.Context, u harvest.User) error {
	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, first_name, last_name, avatar_url, is_anonymous, is_rewards_member, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			first_name = COALESCE(excluded.first_name, users.first_name),
			last_name = COALESCE(excluded.last_name, users.last_name),
			avatar_url = COALESCE(excluded.avatar_url, users.avatar_url),
			is_anonymous = excluded.is_anonymous,
			is_rewards_member = excluded.is_rewards_member`,
		u.ID, u.FirstName, u.LastName, u.AvatarURL,
		boolInt(u.IsAnonymous), boolInt(u.IsRewardsMember), formatTime(createdAt),
	)
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", u.ID, err)
	}
	return nil
}

// GetUser returns the user with the given ID, or nil if not found.
func (db *DB) GetUser(ctx context.Context, userID string) (*harvest.User, error) {
	var u harvest.User
	var first, last, avatar sql.NullString
	var anon, rewards int
	var createdAt string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, first_name, last_name, avatar_url, is_anonymous, is_rewards_member, created_at
		FROM users WHERE id = ?`, userID,
	).Scan(&u.ID, &first, &last, &avatar, &anon, &rewards, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	u.FirstName = nullString(first)
	u.LastName = nullString(last)
	u.AvatarURL = nullString(avatar)
	u.IsAnonymous = anon != 0
	u.IsRewardsMember = rewards != 0
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("user %s created_at: %w", u.ID, err)
	}
	return &u, nil
}

// IsRewardsMember reports the user's rewards flag; unknown users are not members.
func (db *DB) IsRewardsMember(ctx context.Context, userID string) (bool, error) {
	var v int
	err := db.conn.QueryRowContext(ctx,
		"SELECT is_rewards_member FROM users WHERE id = ?", userID,
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return v != 0, err
}
