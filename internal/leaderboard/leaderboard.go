// Package leaderboard ranks anglers over a trailing window.
package leaderboard

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/stats"
)

const (
	DefaultWindowDays = 7
	DefaultLimit      = 10
)

// Store provides the pre-aggregated leaderboard and the raw rows it is
// computed from.
type Store interface {
	Leaderboard(ctx context.Context, days, limit int) ([]harvest.LeaderboardRow, error)
	ReportsSince(ctx context.Context, since time.Time) ([]harvest.FeedRow, error)
}

// Options tunes a Builder. Zero values take the defaults.
type Options struct {
	WindowDays int
	Limit      int
}

// Builder computes top anglers.
type Builder struct {
	store Store
	opts  Options
	now   func() time.Time
}

// New creates a builder over store.
func New(store Store, opts Options) *Builder {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultLimit
	}
	return &Builder{store: store, opts: opts, now: time.Now}
}

// WithClock overrides the clock that anchors the window.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WindowDays returns the window length.
func (b *Builder) WindowDays() int {
	return b.opts.WindowDays
}

// WeeklyTop returns at most one winner per metric for the trailing window.
// The pre-aggregated store result is preferred; if it fails the raw reports
// of the window are aggregated instead. When neither source yields data the
// result is empty.
func (b *Builder) WeeklyTop(ctx context.Context) []harvest.TopAngler {
	rows, err := b.store.Leaderboard(ctx, b.opts.WindowDays, b.opts.Limit)
	if err != nil {
		slog.Warn("Pre-aggregated leaderboard unavailable, aggregating reports", slog.Any("error", err))
		since := b.now().AddDate(0, 0, -b.opts.WindowDays)
		reports, err := b.store.ReportsSince(ctx, since)
		if err != nil {
			slog.Warn("Loading leaderboard reports failed", slog.Any("error", err))
			return []harvest.TopAngler{}
		}
		rows = Aggregate(reports)
	}
	return Rank(rows)
}

// Aggregate groups raw report rows by angler. Lengths that do not parse are
// ignored.
func Aggregate(rows []harvest.FeedRow) []harvest.LeaderboardRow {
	index := make(map[string]int)
	var out []harvest.LeaderboardRow
	species := make(map[string]map[harvest.Species]bool)

	for _, row := range rows {
		r := row.Report
		i, ok := index[r.UserID]
		if !ok {
			i = len(out)
			index[r.UserID] = i
			out = append(out, harvest.LeaderboardRow{
				UserID:        r.UserID,
				FirstName:     row.FirstName,
				LastName:      row.LastName,
				FirstReportAt: r.CreatedAt,
			})
			species[r.UserID] = make(map[harvest.Species]bool)
		}
		agg := &out[i]
		if r.CreatedAt.Before(agg.FirstReportAt) {
			agg.FirstReportAt = r.CreatedAt
		}

		for _, c := range r.Catches() {
			agg.TotalFish += c.Count
			species[r.UserID][c.Species] = true
			if v, ok := stats.LargestLength(c.Lengths); ok {
				if agg.LargestLength == nil || v > *agg.LargestLength {
					agg.LargestLength = &v
				}
			}
		}
	}

	for i := range out {
		out[i].SpeciesCount = len(species[out[i].UserID])
	}
	return out
}

type metric struct {
	kind   harvest.Metric
	unit   string
	value  func(harvest.LeaderboardRow) float64
	format func(float64) string
}

var metrics = []metric{
	{
		kind:   harvest.MetricCatches,
		unit:   "fish",
		value:  func(r harvest.LeaderboardRow) float64 { return float64(r.TotalFish) },
		format: formatCount,
	},
	{
		kind:   harvest.MetricSpecies,
		unit:   "species",
		value:  func(r harvest.LeaderboardRow) float64 { return float64(r.SpeciesCount) },
		format: formatCount,
	},
	{
		kind: harvest.MetricLength,
		unit: "inches",
		value: func(r harvest.LeaderboardRow) float64 {
			if r.LargestLength == nil {
				return 0
			}
			return *r.LargestLength
		},
		format: FormatLength,
	},
}

// Rank picks the winner of each metric. Ties go to the angler whose first
// report in the window came earliest, then to the lower user ID. Metrics
// nobody scored in are omitted.
func Rank(rows []harvest.LeaderboardRow) []harvest.TopAngler {
	out := []harvest.TopAngler{}
	for _, m := range metrics {
		best := -1
		bestValue := 0.0
		for i, r := range rows {
			v := m.value(r)
			if v <= 0 {
				continue
			}
			if best < 0 || v > bestValue || (v == bestValue && before(r, rows[best])) {
				best, bestValue = i, v
			}
		}
		if best < 0 {
			continue
		}
		winner := rows[best]
		out = append(out, harvest.TopAngler{
			Metric:         m.kind,
			UserID:         winner.UserID,
			DisplayName:    harvest.DisplayName(winner.FirstName, winner.LastName),
			Value:          bestValue,
			FormattedValue: m.format(bestValue),
			Unit:           m.unit,
		})
	}
	return out
}

func before(a, b harvest.LeaderboardRow) bool {
	if !a.FirstReportAt.Equal(b.FirstReportAt) {
		return a.FirstReportAt.Before(b.FirstReportAt)
	}
	return a.UserID < b.UserID
}

func formatCount(v float64) string {
	return strconv.FormatInt(int64(v), 10)
}

// FormatLength renders a length in inches, e.g. 27.5".
func FormatLength(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + `"`
}
