package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// Store is the statistics side of the remote store.
type Store interface {
	GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error)
	PutUserStats(ctx context.Context, s harvest.UserStats) error
	GetSpeciesStat(ctx context.Context, userID string, species harvest.Species) (*harvest.UserSpeciesStat, error)
	PutSpeciesStat(ctx context.Context, s harvest.UserSpeciesStat) error
}

// HistoryStore adds what a backfill needs.
type HistoryStore interface {
	Store
	UserReports(ctx context.Context, userID string) ([]harvest.Report, error)
	ReplaceUserStats(ctx context.Context, s harvest.UserStats, species []harvest.UserSpeciesStat) error
}

// ApplyResult reports which parts of a report's update were written.
type ApplyResult struct {
	SpeciesUpdated   bool
	UserStatsUpdated bool
	FailedSpecies    []harvest.Species
	Stats            *harvest.UserStats
	Err              error
}

// OK reports whether every write succeeded.
func (r ApplyResult) OK() bool {
	return r.SpeciesUpdated && r.UserStatsUpdated
}

// Aggregator applies reports to a Store.
type Aggregator struct {
	store Store
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Store) *Aggregator {
	return &Aggregator{store: store}
}

// ApplyReport adds one confirmed report to the user's statistics. It is not
// idempotent: applying the same report twice counts it twice.
//
// The user stats row is read before any species row is written. Species rows
// are then written concurrently; a failed species write is logged and does
// not stop the others. The user stats row is written last.
func (a *Aggregator) ApplyReport(ctx context.Context, userID string, report harvest.Report) ApplyResult {
	res := ApplyResult{SpeciesUpdated: true}
	var errs []error

	prev, prevErr := a.store.GetUserStats(ctx, userID)
	if prevErr != nil {
		slog.Warn("Reading user stats failed", slog.String("user", userID), slog.Any("error", prevErr))
		errs = append(errs, fmt.Errorf("reading user stats: %w", prevErr))
	}

	catches := report.Catches()

	var mu sync.Mutex
	var g errgroup.Group
	for _, c := range catches {
		g.Go(func() error {
			if err := a.applySpecies(ctx, userID, c, report); err != nil {
				slog.Warn("Species stat update failed",
					slog.String("user", userID), slog.String("species", string(c.Species)), slog.Any("error", err))
				mu.Lock()
				res.FailedSpecies = append(res.FailedSpecies, c.Species)
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if len(res.FailedSpecies) > 0 {
		res.SpeciesUpdated = false
		sort.Slice(res.FailedSpecies, func(i, j int) bool { return res.FailedSpecies[i] < res.FailedSpecies[j] })
	}

	if prevErr == nil {
		next := NextUserStats(prev, userID, report.HarvestDate, harvest.TotalFish(catches))
		if err := a.store.PutUserStats(ctx, next); err != nil {
			slog.Warn("User stats update failed", slog.String("user", userID), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("writing user stats: %w", err))
		} else {
			res.UserStatsUpdated = true
			res.Stats = &next
		}
	}

	res.Err = errors.Join(errs...)
	return res
}

func (a *Aggregator) applySpecies(ctx context.Context, userID string, c harvest.SpeciesCatch, report harvest.Report) error {
	prev, err := a.store.GetSpeciesStat(ctx, userID, c.Species)
	if err != nil {
		return fmt.Errorf("reading %s stat: %w", c.Species, err)
	}
	next := NextSpeciesStat(prev, userID, c, report.HarvestDate)
	if err := a.store.PutSpeciesStat(ctx, next); err != nil {
		return fmt.Errorf("writing %s stat: %w", c.Species, err)
	}
	return nil
}

// BackfillResult is the outcome of recomputing a user's statistics.
type BackfillResult struct {
	Stats   harvest.UserStats
	Species []harvest.UserSpeciesStat
}

// Backfill recomputes a user's statistics from their full report history and
// replaces the stored rows with the result.
func Backfill(ctx context.Context, store HistoryStore, userID string) (*BackfillResult, error) {
	reports, err := store.UserReports(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading report history: %w", err)
	}

	user, species := Fold(userID, reports)
	if err := store.ReplaceUserStats(ctx, user, species); err != nil {
		return nil, fmt.Errorf("replacing stats: %w", err)
	}

	slog.Info("Backfilled user stats",
		slog.String("user", userID),
		slog.Int("reports", user.TotalReports),
		slog.Int("fish", user.TotalFish),
		slog.Int("species", len(species)))

	return &BackfillResult{Stats: user, Species: species}, nil
}

// SortChronological orders reports by harvest date, then creation time.
func SortChronological(reports []harvest.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].HarvestDate.Equal(reports[j].HarvestDate) {
			return reports[i].HarvestDate.Before(reports[j].HarvestDate)
		}
		return reports[i].CreatedAt.Before(reports[j].CreatedAt)
	})
}
