package leaderboard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

type mockStore struct {
	rows       []harvest.LeaderboardRow
	rowsErr    error
	reports    []harvest.FeedRow
	reportsErr error
	since      time.Time
}

func (m *mockStore) Leaderboard(ctx context.Context, days, limit int) ([]harvest.LeaderboardRow, error) {
	return m.rows, m.rowsErr
}

func (m *mockStore) ReportsSince(ctx context.Context, since time.Time) ([]harvest.FeedRow, error) {
	m.since = since
	return m.reports, m.reportsErr
}

func ptr(s string) *string { return &s }

func f(v float64) *float64 { return &v }

var base = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func TestEmptyWindow(t *testing.T) {
	b := New(&mockStore{}, Options{})
	top := b.WeeklyTop(context.Background())
	if top == nil || len(top) != 0 {
		t.Errorf("expected an empty list, got %v", top)
	}

	b = New(&mockStore{rowsErr: harvest.ErrNotSupported}, Options{})
	if top := b.WeeklyTop(context.Background()); len(top) != 0 {
		t.Errorf("expected an empty list from fallback, got %v", top)
	}
}

func TestBothSourcesFail(t *testing.T) {
	store := &mockStore{rowsErr: errors.New("down"), reportsErr: errors.New("down")}
	if top := New(store, Options{}).WeeklyTop(context.Background()); len(top) != 0 {
		t.Errorf("expected empty list, got %v", top)
	}
}

func TestPreAggregated(t *testing.T) {
	store := &mockStore{rows: []harvest.LeaderboardRow{
		{UserID: "a", FirstName: ptr("Alice"), LastName: ptr("Smith"), TotalFish: 8, SpeciesCount: 2, FirstReportAt: base},
		{UserID: "b", FirstName: ptr("Bob"), TotalFish: 3, SpeciesCount: 4, LargestLength: f(27.5), FirstReportAt: base},
	}}
	top := New(store, Options{}).WeeklyTop(context.Background())
	if len(top) != 3 {
		t.Fatalf("expected 3 metrics, got %v", top)
	}
	want := []struct {
		metric    harvest.Metric
		user      string
		formatted string
		unit      string
	}{
		{harvest.MetricCatches, "a", "8", "fish"},
		{harvest.MetricSpecies, "b", "4", "species"},
		{harvest.MetricLength, "b", `27.5"`, "inches"},
	}
	for i, w := range want {
		got := top[i]
		if got.Metric != w.metric || got.UserID != w.user || got.FormattedValue != w.formatted || got.Unit != w.unit {
			t.Errorf("metric %d: expected %+v, got %+v", i, w, got)
		}
	}
	if top[0].DisplayName != "Alice S." {
		t.Errorf("expected 'Alice S.', got %q", top[0].DisplayName)
	}
	if store.since != (time.Time{}) {
		t.Error("expected no raw fallback when the aggregate succeeds")
	}
}

func TestZeroMetricOmitted(t *testing.T) {
	rows := []harvest.LeaderboardRow{{UserID: "a", TotalFish: 2, SpeciesCount: 1, FirstReportAt: base}}
	top := Rank(rows)
	if len(top) != 2 {
		t.Fatalf("expected length metric omitted, got %v", top)
	}
	for _, a := range top {
		if a.Metric == harvest.MetricLength {
			t.Error("length metric should be omitted")
		}
	}
}

func TestTieBreak(t *testing.T) {
	rows := []harvest.LeaderboardRow{
		{UserID: "c", TotalFish: 5, FirstReportAt: base.Add(time.Hour)},
		{UserID: "b", TotalFish: 5, FirstReportAt: base},
		{UserID: "a", TotalFish: 5, FirstReportAt: base},
	}
	for i := 0; i < 3; i++ {
		top := Rank(rows)
		if top[0].UserID != "a" {
			t.Errorf("expected earliest first report then lowest id to win, got %s", top[0].UserID)
		}
		rows[0], rows[2] = rows[2], rows[0]
	}
}

func TestRawFallback(t *testing.T) {
	now := base
	store := &mockStore{
		rowsErr: harvest.ErrNotSupported,
		reports: []harvest.FeedRow{
			{
				Report: harvest.Report{ID: "1", UserID: "a", CreatedAt: now.Add(-48 * time.Hour),
					Counts: harvest.AggregateCounts{RedDrum: 2, Flounder: 1}},
				FirstName: ptr("Alice"),
			},
			{
				Report: harvest.Report{ID: "2", UserID: "b", CreatedAt: now.Add(-24 * time.Hour),
					Counts: harvest.AggregateCounts{RedDrum: 10},
					Items: harvest.ItemizedCatches{
						{Species: harvest.StripedBass, Count: 1, Lengths: []string{"33.5", "huge"}},
					}},
				FirstName: ptr("Bob"),
			},
			{
				Report: harvest.Report{ID: "3", UserID: "a", CreatedAt: now.Add(-time.Hour),
					Items: harvest.ItemizedCatches{{Species: "speck", Count: 1, Lengths: []string{`19"`}}}},
				FirstName: ptr("Alice"),
			},
		},
	}
	b := New(store, Options{}).WithClock(func() time.Time { return now })
	top := b.WeeklyTop(context.Background())

	if !store.since.Equal(now.AddDate(0, 0, -7)) {
		t.Errorf("expected 7-day window start, got %v", store.since)
	}
	if len(top) != 3 {
		t.Fatalf("expected 3 metrics, got %v", top)
	}
	if top[0].UserID != "a" || top[0].Value != 4 {
		t.Errorf("expected alice with 4 fish, got %+v", top[0])
	}
	if top[1].UserID != "a" || top[1].Value != 3 {
		t.Errorf("expected alice with 3 species, got %+v", top[1])
	}
	if top[2].UserID != "b" || top[2].FormattedValue != `33.5"` {
		t.Errorf("expected bob with 33.5\", got %+v", top[2])
	}
}

func TestAggregateKeepsEarliestReport(t *testing.T) {
	rows := Aggregate([]harvest.FeedRow{
		{Report: harvest.Report{UserID: "a", CreatedAt: base, Counts: harvest.AggregateCounts{Weakfish: 1}}},
		{Report: harvest.Report{UserID: "a", CreatedAt: base.Add(-time.Hour), Counts: harvest.AggregateCounts{Weakfish: 1}}},
	})
	if len(rows) != 1 {
		t.Fatalf("expected one row, got %d", len(rows))
	}
	if !rows[0].FirstReportAt.Equal(base.Add(-time.Hour)) || rows[0].TotalFish != 2 || rows[0].SpeciesCount != 1 {
		t.Errorf("unexpected row %+v", rows[0])
	}
}
