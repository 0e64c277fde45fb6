package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/cache"
	"github.com/TobiSchelling/catchfeed/internal/database"
	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/kvstore"
)

func newTestEngine(t *testing.T) (*Engine, *database.DB) {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	kv, err := kvstore.NewMemory(16)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return New(db, cache.New(kv), Options{}), db
}

func day(s string) time.Time {
	t, err := time.Parse(harvest.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func codes(list []harvest.Achievement) []string {
	out := make([]string, len(list))
	for i, a := range list {
		out[i] = a.Code
	}
	return out
}

func TestFirstAchievementScenario(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()

	res, err := e.SubmitReport(ctx, harvest.Report{
		ID: "r1", UserID: "u1", HarvestDate: day("2026-02-01"),
		Counts: harvest.AggregateCounts{RedDrum: 1},
	})
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	if !res.Success || !res.SpeciesStatsUpdated || !res.UserStatsUpdated {
		t.Fatalf("expected success, got %+v", res)
	}

	s, _ := db.GetUserStats(ctx, "u1")
	if s == nil || s.TotalReports != 1 || s.TotalFish != 1 {
		t.Fatalf("unexpected stats %+v", s)
	}
	if got := codes(res.AchievementsAwarded); len(got) != 1 || got[0] != "first_report" {
		t.Errorf("expected exactly first_report, got %v", got)
	}
	if len(res.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(res.Steps))
	}
}

func TestSubmitKeepsExistingUser(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	first := "Jane"
	db.UpsertUser(ctx, harvest.User{ID: "u1", FirstName: &first, IsRewardsMember: true})

	res, err := e.SubmitReport(ctx, harvest.Report{
		ID: "r1", UserID: "u1", HarvestDate: day("2026-02-01"),
		Counts: harvest.AggregateCounts{Flounder: 2},
	})
	if err != nil {
		t.Fatalf("SubmitReport: %v", err)
	}
	got := codes(res.AchievementsAwarded)
	if len(got) != 2 || got[0] != "rewards_entered" || got[1] != "first_report" {
		t.Errorf("expected rewards_entered then first_report, got %v", got)
	}
}

func TestBackfillAwardsOnce(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	db.UpsertUser(ctx, harvest.User{ID: "u1", IsAnonymous: true})

	species := []harvest.AggregateCounts{
		{RedDrum: 1}, {Flounder: 1}, {SpottedSeatrout: 1}, {Weakfish: 1}, {StripedBass: 1},
	}
	for i, c := range species {
		err := db.InsertReport(ctx, harvest.Report{
			ID: fmt.Sprintf("r%d", i), UserID: "u1",
			HarvestDate: day("2026-02-01").AddDate(0, 0, i),
			Counts:      c,
		})
		if err != nil {
			t.Fatalf("InsertReport: %v", err)
		}
	}

	res := e.BackfillUserStatsFromReports(ctx, "u1")
	if !res.Success {
		t.Fatalf("backfill failed: %v", res.Err)
	}
	if res.TotalReports != 5 || res.TotalFish != 5 || res.SpeciesUpdated != 5 {
		t.Errorf("unexpected backfill totals %+v", res)
	}
	got := codes(res.AchievementsAwarded)
	want := []string{"first_report", "streak_3", "species_all_5"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	s, _ := db.GetUserStats(ctx, "u1")
	if s.CurrentStreakDays != 5 || s.LongestStreakDays != 5 {
		t.Errorf("expected a 5-day streak, got %+v", s)
	}

	again := e.BackfillUserStatsFromReports(ctx, "u1")
	if len(again.AchievementsAwarded) != 0 {
		t.Errorf("expected no new awards on re-run, got %v", codes(again.AchievementsAwarded))
	}
	s2, _ := db.GetUserStats(ctx, "u1")
	if s2.TotalFish != 5 {
		t.Errorf("expected backfill to replace, not add, got %d fish", s2.TotalFish)
	}
}

func TestConcurrentSubmissionsSerialized(t *testing.T) {
	e, db := newTestEngine(t)
	ctx := context.Background()
	db.UpsertUser(ctx, harvest.User{ID: "u1"})

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := e.SubmitReport(ctx, harvest.Report{
				ID: fmt.Sprintf("r%d", i), UserID: "u1", HarvestDate: day("2026-02-01"),
				Counts: harvest.AggregateCounts{RedDrum: 1, Weakfish: 1},
			}); err != nil {
				t.Errorf("SubmitReport: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s, _ := db.GetUserStats(ctx, "u1")
	if s.TotalReports != n || s.TotalFish != 2*n {
		t.Errorf("expected %d reports and %d fish, got %+v", n, 2*n, s)
	}
	sp, _ := db.GetSpeciesStat(ctx, "u1", harvest.RedDrum)
	if sp.TotalCount != n {
		t.Errorf("expected %d red drum, got %d", n, sp.TotalCount)
	}
	if size := e.locks.Size(); size != 0 {
		t.Errorf("expected user locks to be released, %d left", size)
	}
}

func TestUserLocksReleased(t *testing.T) {
	e, _ := newTestEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := e.lockUser(fmt.Sprintf("user-%d", i%5))
			unlock()
		}(i)
	}
	wg.Wait()
	if size := e.locks.Size(); size != 0 {
		t.Errorf("expected no user locks after release, got %d", size)
	}

	unlock := e.lockUser("held")
	if _, ok := e.locks.Load("held"); !ok {
		t.Error("expected an entry while the lock is held")
	}
	unlock()
	if _, ok := e.locks.Load("held"); ok {
		t.Error("expected the entry to be dropped after unlock")
	}
}

func TestFeedAndLikes(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e.SubmitReport(ctx, harvest.Report{
			ID: fmt.Sprintf("r%d", i), UserID: "u1", HarvestDate: day("2026-02-01"),
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
			Counts:    harvest.AggregateCounts{Weakfish: i + 1},
		})
	}

	page := e.FetchRecentCatches(ctx, feed.PageRequest{Limit: 2})
	if len(page.Entries) != 2 || !page.HasMore || page.Entries[0].ID != "r2" {
		t.Fatalf("unexpected first page %+v", page)
	}

	if n, err := e.LikeCatch(ctx, "r2", "viewer"); err != nil || n != 1 {
		t.Fatalf("LikeCatch: %d, %v", n, err)
	}
	entries := e.EnrichCatchesWithLikes(ctx, page.Entries, "viewer")
	if entries[0].LikeCount != 1 || !entries[0].LikedByViewer {
		t.Errorf("expected like on r2, got %+v", entries[0])
	}
	if n, _ := e.UnlikeCatch(ctx, "r2", "viewer"); n != 0 {
		t.Errorf("expected 0 likes after unlike, got %d", n)
	}

	top := e.FetchTopAnglers(ctx)
	if len(top) != 2 || top[0].Value != 6 {
		t.Errorf("expected catches and species winners, got %+v", top)
	}

	p, ok := e.FetchAnglerProfile(ctx, "u1")
	if !ok || p.TotalReports != 3 || p.DisplayName != "Anonymous" {
		t.Errorf("unexpected profile %+v", p)
	}

	if err := e.ClearCatchFeedCache(ctx); err != nil {
		t.Errorf("ClearCatchFeedCache: %v", err)
	}
}

func TestFetchAnglerAchievements(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	list, err := e.FetchAnglerAchievements(ctx, "u1")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected no achievements, got %v, %v", list, err)
	}

	e.SubmitReport(ctx, harvest.Report{
		ID: "r1", UserID: "u1", HarvestDate: day("2026-02-01"),
		Counts: harvest.AggregateCounts{RedDrum: 1},
	})
	list, err = e.FetchAnglerAchievements(ctx, "u1")
	if err != nil {
		t.Fatalf("FetchAnglerAchievements: %v", err)
	}
	if got := codes(list); len(got) != 1 || got[0] != "first_report" {
		t.Errorf("expected first_report, got %v", got)
	}
}
