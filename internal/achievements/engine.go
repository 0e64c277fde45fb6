package achievements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

// Store is the subset of the remote store the engine reads and writes.
type Store interface {
	ActiveAchievements(ctx context.Context) ([]harvest.Achievement, error)
	EarnedAchievementIDs(ctx context.Context, userID string) (map[int64]bool, error)
	GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error)
	SpeciesStats(ctx context.Context, userID string) ([]harvest.UserSpeciesStat, error)
	CountPhotoReports(ctx context.Context, userID string) (int, error)
	IsRewardsMember(ctx context.Context, userID string) (bool, error)
	AwardAchievement(ctx context.Context, award harvest.UserAchievement) (bool, error)
}

// Engine awards achievements.
type Engine struct {
	store Store
	now   func() time.Time
}

// New creates an engine backed by store.
func New(store Store) *Engine {
	return &Engine{store: store, now: time.Now}
}

// WithClock overrides the award timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// LoadInput gathers the rule inputs for a user.
func (e *Engine) LoadInput(ctx context.Context, userID string) (Input, error) {
	in := Input{SpeciesTotals: make(map[harvest.Species]int)}

	stats, err := e.store.GetUserStats(ctx, userID)
	if err != nil {
		return in, fmt.Errorf("loading user stats: %w", err)
	}
	if stats != nil {
		in.Stats = *stats
	} else {
		in.Stats.UserID = userID
	}

	species, err := e.store.SpeciesStats(ctx, userID)
	if err != nil {
		return in, fmt.Errorf("loading species stats: %w", err)
	}
	for _, s := range species {
		in.SpeciesTotals[s.Species] += s.TotalCount
	}

	if in.PhotoReports, err = e.store.CountPhotoReports(ctx, userID); err != nil {
		return in, fmt.Errorf("counting photo reports: %w", err)
	}
	if in.RewardsMember, err = e.store.IsRewardsMember(ctx, userID); err != nil {
		return in, fmt.Errorf("loading rewards membership: %w", err)
	}
	return in, nil
}

// Evaluate awards every newly satisfied achievement and returns them in
// priority order. Achievements the store reports as already awarded are
// skipped. A failed award is logged and does not stop the others; the
// joined error is returned alongside whatever was awarded.
func (e *Engine) Evaluate(ctx context.Context, userID string, reportID *string) ([]harvest.Achievement, error) {
	catalog, err := e.store.ActiveAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	earned, err := e.store.EarnedAchievementIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading earned achievements: %w", err)
	}
	in, err := e.LoadInput(ctx, userID)
	if err != nil {
		return nil, err
	}

	matched, unknown := Qualifying(catalog, earned, in)
	if len(unknown) > 0 {
		slog.Warn("Ignoring achievements without a rule", slog.Any("codes", unknown))
	}

	earnedAt := e.now()
	var awarded []harvest.Achievement
	var errs []error
	for _, a := range matched {
		ok, err := e.store.AwardAchievement(ctx, harvest.UserAchievement{
			UserID:        userID,
			AchievementID: a.ID,
			EarnedAt:      earnedAt,
			ReportID:      reportID,
		})
		if err != nil {
			slog.Warn("Awarding achievement failed",
				slog.String("user", userID), slog.String("code", a.Code), slog.Any("error", err))
			errs = append(errs, fmt.Errorf("award %s: %w", a.Code, err))
			continue
		}
		if !ok {
			continue
		}
		slog.Info("Achievement awarded", slog.String("user", userID), slog.String("code", a.Code))
		awarded = append(awarded, a)
	}

	return awarded, errors.Join(errs...)
}
