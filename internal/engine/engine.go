// Package engine composes the statistics, achievement, feed and leaderboard
// components behind the surface used by the CLI and the HTTP server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/TobiSchelling/catchfeed/internal/achievements"
	"github.com/TobiSchelling/catchfeed/internal/cache"
	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/leaderboard"
	"github.com/TobiSchelling/catchfeed/internal/stats"
)

// Store is everything the engine needs from the remote store.
type Store interface {
	feed.Store
	leaderboard.Store
	stats.HistoryStore
	achievements.Store
	InsertReport(ctx context.Context, r harvest.Report) error
	UpsertUser(ctx context.Context, u harvest.User) error
	UserAchievements(ctx context.Context, userID string) ([]harvest.Achievement, error)
}

// Options configures the components.
type Options struct {
	Feed        feed.Options
	Leaderboard leaderboard.Options
}

// StepResult holds the result of a single update step.
type StepResult struct {
	Name    string
	Summary string
	Err     error
}

// UpdateResult is the outcome of applying one report.
type UpdateResult struct {
	Success             bool
	SpeciesStatsUpdated bool
	UserStatsUpdated    bool
	FailedSpecies       []harvest.Species
	AchievementsAwarded []harvest.Achievement
	Err                 error
	Steps               []StepResult
}

// BackfillResult is the outcome of recomputing a user's statistics.
type BackfillResult struct {
	Success             bool
	TotalReports        int
	TotalFish           int
	SpeciesUpdated      int
	AchievementsAwarded []harvest.Achievement
	Err                 error
	Steps               []StepResult
}

// Engine is the public surface of the aggregation engine.
type Engine struct {
	store  Store
	feed   *feed.Assembler
	board  *leaderboard.Builder
	agg    *stats.Aggregator
	awards *achievements.Engine
	locks  *xsync.MapOf[string, *userLock]
}

// New wires the components over store and the local cache.
func New(store Store, c *cache.Cache, opts Options) *Engine {
	return &Engine{
		store:  store,
		feed:   feed.New(store, c, opts.Feed),
		board:  leaderboard.New(store, opts.Leaderboard),
		agg:    stats.NewAggregator(store),
		awards: achievements.New(store),
		locks:  xsync.NewMapOf[string, *userLock](),
	}
}

// userLock is a per-user mutex with the number of callers holding or
// waiting on it. refs only changes inside MapOf.Compute.
type userLock struct {
	mu   sync.Mutex
	refs int
}

// lockUser serializes statistic updates for one user within this process.
// The entry is dropped once the last holder unlocks.
func (e *Engine) lockUser(userID string) func() {
	l, _ := e.locks.Compute(userID, func(l *userLock, loaded bool) (*userLock, bool) {
		if !loaded {
			l = &userLock{}
		}
		l.refs++
		return l, false
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locks.Compute(userID, func(l *userLock, loaded bool) (*userLock, bool) {
			l.refs--
			return l, l.refs == 0
		})
	}
}

// FetchRecentCatches returns a page of the community feed.
func (e *Engine) FetchRecentCatches(ctx context.Context, req feed.PageRequest) feed.Page {
	return e.feed.FetchPage(ctx, req)
}

// FetchAnglerProfile returns an angler's public profile.
func (e *Engine) FetchAnglerProfile(ctx context.Context, userID string) (*harvest.AnglerProfile, bool) {
	return e.feed.Profile(ctx, userID)
}

// FetchAnglerAchievements returns the achievements a user holds, most
// recent first.
func (e *Engine) FetchAnglerAchievements(ctx context.Context, userID string) ([]harvest.Achievement, error) {
	list, err := e.store.UserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading achievements: %w", err)
	}
	return list, nil
}

// Ping reports whether the remote store is reachable.
func (e *Engine) Ping(ctx context.Context) error {
	return e.store.Ping(ctx)
}

// FetchTopAnglers returns the weekly winners per metric.
func (e *Engine) FetchTopAnglers(ctx context.Context) []harvest.TopAngler {
	return e.board.WeeklyTop(ctx)
}

// LeaderboardWindowDays returns the leaderboard window length.
func (e *Engine) LeaderboardWindowDays() int {
	return e.board.WindowDays()
}

// EnrichCatchesWithLikes fills in like counts for entries.
func (e *Engine) EnrichCatchesWithLikes(ctx context.Context, entries []harvest.CatchFeedEntry, viewerID string) []harvest.CatchFeedEntry {
	return e.feed.EnrichWithLikes(ctx, entries, viewerID)
}

// LikeCatch likes a catch and returns its stored like count.
func (e *Engine) LikeCatch(ctx context.Context, catchID, userID string) (int, error) {
	return e.feed.Like(ctx, catchID, userID)
}

// UnlikeCatch removes a like and returns the stored like count.
func (e *Engine) UnlikeCatch(ctx context.Context, catchID, userID string) (int, error) {
	return e.feed.Unlike(ctx, catchID, userID)
}

// ClearCatchFeedCache drops the cached first feed page.
func (e *Engine) ClearCatchFeedCache(ctx context.Context) error {
	return e.feed.ClearCache(ctx)
}

// SubmitReport stores a confirmed report and applies it to the user's
// statistics exactly once.
func (e *Engine) SubmitReport(ctx context.Context, r harvest.Report) (*UpdateResult, error) {
	if r.ID == "" || r.UserID == "" {
		return nil, errors.New("report id and user id are required")
	}
	user, err := e.store.GetUser(ctx, r.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	if user == nil {
		if err := e.store.UpsertUser(ctx, harvest.User{ID: r.UserID, IsAnonymous: true}); err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
	}
	if err := e.store.InsertReport(ctx, r); err != nil {
		return nil, fmt.Errorf("storing report: %w", err)
	}
	res := e.UpdateAllStatsAfterReport(ctx, r.UserID, r)
	return &res, nil
}

// UpdateAllStatsAfterReport applies a confirmed report to the user's
// statistics and awards any achievements it unlocks. Each report must be
// applied once; a retry should only repeat the failed pieces.
func (e *Engine) UpdateAllStatsAfterReport(ctx context.Context, userID string, r harvest.Report) UpdateResult {
	unlock := e.lockUser(userID)
	defer unlock()

	var res UpdateResult

	applied := e.agg.ApplyReport(ctx, userID, r)
	res.SpeciesStatsUpdated = applied.SpeciesUpdated
	res.UserStatsUpdated = applied.UserStatsUpdated
	res.FailedSpecies = applied.FailedSpecies
	step := StepResult{Name: "Stats", Err: applied.Err}
	if applied.Stats != nil {
		step.Summary = fmt.Sprintf("%d reports, %d fish, streak %d", applied.Stats.TotalReports, applied.Stats.TotalFish, applied.Stats.CurrentStreakDays)
	}
	res.Steps = append(res.Steps, step)

	reportID := r.ID
	awarded, err := e.awards.Evaluate(ctx, userID, &reportID)
	res.AchievementsAwarded = awarded
	res.Steps = append(res.Steps, StepResult{
		Name:    "Achievements",
		Summary: fmt.Sprintf("Awarded %d achievements", len(awarded)),
		Err:     err,
	})

	res.Err = errors.Join(applied.Err, err)
	res.Success = applied.OK() && err == nil
	logSteps(userID, res.Steps)
	return res
}

// BackfillUserStatsFromReports rebuilds a user's statistics from their full
// history, then evaluates achievements once.
func (e *Engine) BackfillUserStatsFromReports(ctx context.Context, userID string) BackfillResult {
	unlock := e.lockUser(userID)
	defer unlock()

	var res BackfillResult

	b, err := stats.Backfill(ctx, e.store, userID)
	if err != nil {
		res.Err = err
		res.Steps = append(res.Steps, StepResult{Name: "Backfill", Err: err})
		logSteps(userID, res.Steps)
		return res
	}
	res.TotalReports = b.Stats.TotalReports
	res.TotalFish = b.Stats.TotalFish
	res.SpeciesUpdated = len(b.Species)
	res.Steps = append(res.Steps, StepResult{
		Name:    "Backfill",
		Summary: fmt.Sprintf("Replayed %d reports, %d species", b.Stats.TotalReports, len(b.Species)),
	})

	awarded, err := e.awards.Evaluate(ctx, userID, nil)
	res.AchievementsAwarded = awarded
	res.Steps = append(res.Steps, StepResult{
		Name:    "Achievements",
		Summary: fmt.Sprintf("Awarded %d achievements", len(awarded)),
		Err:     err,
	})
	res.Err = err
	res.Success = err == nil
	logSteps(userID, res.Steps)
	return res
}

func logSteps(userID string, steps []StepResult) {
	for _, s := range steps {
		if s.Err != nil {
			slog.Warn("Update step failed", slog.String("user", userID), slog.String("step", s.Name), slog.Any("error", s.Err))
			continue
		}
		slog.Debug("Update step done", slog.String("user", userID), slog.String("step", s.Name), slog.String("summary", s.Summary))
	}
}
