package pgstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/TobiSchelling/catchfeed/internal/engine"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

var _ engine.Store = (*Store)(nil)

// openTestStore connects to CATCHFEED_TEST_POSTGRES_DSN. Tests are skipped
// when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CATCHFEED_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CATCHFEED_TEST_POSTGRES_DSN not set")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr(s string) *string { return &s }

func TestReportRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()

	if err := s.UpsertUser(ctx, harvest.User{ID: userID, FirstName: ptr("Pat"), LastName: ptr("Lee")}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	reportID := uuid.NewString()
	err := s.InsertReport(ctx, harvest.Report{
		ID: reportID, UserID: userID,
		HarvestDate: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Counts:      harvest.AggregateCounts{RedDrum: 3},
		Items:       harvest.ItemizedCatches{{Species: "flounder", Count: 2, Lengths: []string{"17", "19.5"}}},
	})
	if err != nil {
		t.Fatalf("InsertReport: %v", err)
	}

	rows, err := s.RecentUserReports(ctx, userID, 5)
	if err != nil {
		t.Fatalf("RecentUserReports: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 report, got %d", len(rows))
	}
	catches := rows[0].Report.Catches()
	if len(catches) != 1 || catches[0].Species != harvest.Flounder || len(catches[0].Lengths) != 2 {
		t.Errorf("expected itemized flounder, got %v", catches)
	}
	if rows[0].FirstName == nil || *rows[0].FirstName != "Pat" {
		t.Error("expected joined angler name")
	}
}

func TestAwardAndLikesIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	s.UpsertUser(ctx, harvest.User{ID: userID})
	reportID := uuid.NewString()
	s.InsertReport(ctx, harvest.Report{ID: reportID, UserID: userID, HarvestDate: time.Now(), Counts: harvest.AggregateCounts{Weakfish: 1}})

	catalog, err := s.ActiveAchievements(ctx)
	if err != nil || len(catalog) == 0 {
		t.Fatalf("ActiveAchievements: %v, %d", err, len(catalog))
	}
	award := harvest.UserAchievement{UserID: userID, AchievementID: catalog[0].ID, EarnedAt: time.Now()}
	if ok, err := s.AwardAchievement(ctx, award); err != nil || !ok {
		t.Fatalf("first award: %v, %v", ok, err)
	}
	if ok, err := s.AwardAchievement(ctx, award); err != nil || ok {
		t.Errorf("expected silent duplicate, got %v, %v", ok, err)
	}

	s.AddLike(ctx, reportID, "viewer")
	s.AddLike(ctx, reportID, "viewer")
	summary, err := s.LikeSummary(ctx, []string{reportID}, "viewer")
	if err != nil {
		t.Fatalf("LikeSummary: %v", err)
	}
	if got := summary[reportID]; got.Count != 1 || !got.Liked {
		t.Errorf("unexpected like state %+v", got)
	}
}

func TestLeaderboardFunction(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	s.UpsertUser(ctx, harvest.User{ID: userID, FirstName: ptr("Sam")})
	s.InsertReport(ctx, harvest.Report{
		ID: uuid.NewString(), UserID: userID, HarvestDate: time.Now(),
		Items: harvest.ItemizedCatches{{Species: "striped_bass", Count: 1, Lengths: []string{"41.5", "?"}}},
	})

	rows, err := s.Leaderboard(ctx, 7, 1000)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	for _, r := range rows {
		if r.UserID != userID {
			continue
		}
		if r.TotalFish != 1 || r.SpeciesCount != 1 || r.LargestLength == nil || *r.LargestLength != 41.5 {
			t.Errorf("unexpected row %+v", r)
		}
		return
	}
	t.Error("expected the new angler in the leaderboard")
}

func TestLeaderboardFunctionSkipsUnparsableLengths(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := uuid.NewString()
	s.UpsertUser(ctx, harvest.User{ID: userID, FirstName: ptr("Mia")})
	s.InsertReport(ctx, harvest.Report{
		ID: uuid.NewString(), UserID: userID, HarvestDate: time.Now(),
		Items: harvest.ItemizedCatches{{Species: "red_drum", Count: 3, Lengths: []string{"45cm", "20-22", "18 IN"}}},
	})

	rows, err := s.Leaderboard(ctx, 7, 1000)
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	for _, r := range rows {
		if r.UserID != userID {
			continue
		}
		if r.LargestLength == nil || *r.LargestLength != 18 {
			t.Errorf("expected only the inch length to count, got %v", r.LargestLength)
		}
		return
	}
	t.Error("expected the new angler in the leaderboard")
}
