package harvest

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrUnavailable is returned when the remote store cannot be reached.
	ErrUnavailable = errors.New("remote store unavailable")
	// ErrNotSupported is returned for optional store capabilities.
	ErrNotSupported = errors.New("not supported by store")
)

// User is an angler account, possibly anonymous.
type User struct {
	ID              string
	FirstName       *string
	LastName        *string
	AvatarURL       *string
	IsAnonymous     bool
	IsRewardsMember bool
	CreatedAt       time.Time
}

// UserSpeciesStat is the running total for one (user, species) pair.
type UserSpeciesStat struct {
	UserID        string     `json:"userId"`
	Species       Species    `json:"species"`
	TotalCount    int        `json:"totalCount"`
	LargestLength *float64   `json:"largestLength,omitempty"`
	LastCaughtAt  *time.Time `json:"lastCaughtAt,omitempty"`
}

// UserStats is the denormalized per-user summary row.
type UserStats struct {
	UserID            string     `json:"userId"`
	TotalReports      int        `json:"totalReports"`
	TotalFish         int        `json:"totalFish"`
	CurrentStreakDays int        `json:"currentStreakDays"`
	LongestStreakDays int        `json:"longestStreakDays"`
	LastActiveAt      *time.Time `json:"lastActiveAt,omitempty"`
}

// Achievement is a catalog entry.
type Achievement struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Icon        string `json:"icon"`
	IsActive    bool   `json:"isActive"`
	SortOrder   int    `json:"sortOrder"`
}

// UserAchievement records an award. At most one exists per (user, achievement).
type UserAchievement struct {
	UserID        string
	AchievementID int64
	EarnedAt      time.Time
	ReportID      *string
}

// FeedRow is a report as read from the store, joined with its angler.
type FeedRow struct {
	Report    Report
	FirstName *string
	LastName  *string
	AvatarURL *string
}

// CatchFeedEntry is a display-ready catch in the community feed.
type CatchFeedEntry struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	AnglerName     string         `json:"anglerName"`
	AvatarURL      *string        `json:"avatarUrl,omitempty"`
	PrimarySpecies Species        `json:"primarySpecies"`
	SpeciesList    []SpeciesCatch `json:"speciesList"`
	TotalFish      int            `json:"totalFish"`
	PhotoURL       *string        `json:"photoUrl,omitempty"`
	Location       *string        `json:"location,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	LikeCount      int            `json:"likeCount"`
	LikedByViewer  bool           `json:"likedByViewer"`
}

// LikeState is the like metadata of one catch for one viewer.
type LikeState struct {
	Count int
	Liked bool
}

// Metric is a leaderboard category.
type Metric string

const (
	MetricCatches Metric = "catches"
	MetricSpecies Metric = "species"
	MetricLength  Metric = "length"
)

// TopAngler is the winner of one leaderboard metric.
type TopAngler struct {
	Metric         Metric  `json:"type"`
	UserID         string  `json:"userId"`
	DisplayName    string  `json:"displayName"`
	Value          float64 `json:"value"`
	FormattedValue string  `json:"formattedValue"`
	Unit           string  `json:"unit"`
}

// LeaderboardRow is one angler's pre-aggregated totals for a window.
type LeaderboardRow struct {
	UserID        string
	FirstName     *string
	LastName      *string
	TotalFish     int
	SpeciesCount  int
	LargestLength *float64
	FirstReportAt time.Time
}

// AnglerProfile is the aggregated public view of one angler.
type AnglerProfile struct {
	UserID        string            `json:"userId"`
	DisplayName   string            `json:"displayName"`
	AvatarURL     *string           `json:"avatarUrl,omitempty"`
	TotalReports  int               `json:"totalReports"`
	TotalFish     int               `json:"totalFish"`
	CurrentStreak int               `json:"currentStreak"`
	LongestStreak int               `json:"longestStreak"`
	Species       []UserSpeciesStat `json:"species"`
	TopSpecies    *Species          `json:"topSpecies,omitempty"`
	RecentCatches []CatchFeedEntry  `json:"recentCatches"`
	MemberSince   time.Time         `json:"memberSince"`
}

// DisplayName renders "First L.", or "Anonymous" when no first name is known.
func DisplayName(first, last *string) string {
	if first == nil || strings.TrimSpace(*first) == "" {
		return "Anonymous"
	}
	name := strings.TrimSpace(*first)
	if last != nil {
		if l := []rune(strings.TrimSpace(*last)); len(l) > 0 {
			name += " " + strings.ToUpper(string(l[0])) + "."
		}
	}
	return name
}

// StoreStatus holds row counts for the status command.
type StoreStatus struct {
	Users        int
	Reports      int
	Catches      int
	Likes        int
	Achievements int
}

// StatusTable pairs a table name with the StoreStatus field it fills.
type StatusTable struct {
	Table string
	Dest  *int
}

// Tables lists the counted tables.
func (s *StoreStatus) Tables() []StatusTable {
	return []StatusTable{
		{"users", &s.Users},
		{"harvest_reports", &s.Reports},
		{"report_catches", &s.Catches},
		{"catch_likes", &s.Likes},
		{"user_achievements", &s.Achievements},
	}
}
