package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/cache"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/kvstore"
)

type fakeStore struct {
	mu          sync.Mutex
	rows        []harvest.FeedRow
	offline     bool
	fetchErr    error
	likeErr     error
	fetchCalls  int
	users       map[string]harvest.User
	stats       map[string]harvest.UserStats
	species     map[string][]harvest.UserSpeciesStat
	likes       map[string]map[string]bool
	likeQueries int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:   make(map[string]harvest.User),
		stats:   make(map[string]harvest.UserStats),
		species: make(map[string][]harvest.UserSpeciesStat),
		likes:   make(map[string]map[string]bool),
	}
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.offline {
		return harvest.ErrUnavailable
	}
	return nil
}

func (f *fakeStore) RecentReports(ctx context.Context, offset, limit int) ([]harvest.FeedRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if offset >= len(f.rows) {
		return nil, nil
	}
	end := min(offset+limit, len(f.rows))
	return append([]harvest.FeedRow(nil), f.rows[offset:end]...), nil
}

func (f *fakeStore) RecentUserReports(ctx context.Context, userID string, limit int) ([]harvest.FeedRow, error) {
	var out []harvest.FeedRow
	for _, r := range f.rows {
		if r.Report.UserID == userID && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*harvest.User, error) {
	if f.offline {
		return nil, harvest.ErrUnavailable
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (f *fakeStore) GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error) {
	s, ok := f.stats[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (f *fakeStore) SpeciesStats(ctx context.Context, userID string) ([]harvest.UserSpeciesStat, error) {
	return f.species[userID], nil
}

func (f *fakeStore) LikeSummary(ctx context.Context, ids []string, viewerID string) (map[string]harvest.LikeState, error) {
	f.likeQueries++
	if f.likeErr != nil {
		return nil, f.likeErr
	}
	out := make(map[string]harvest.LikeState)
	for _, id := range ids {
		if n := len(f.likes[id]); n > 0 {
			out[id] = harvest.LikeState{Count: n, Liked: f.likes[id][viewerID]}
		}
	}
	return out, nil
}

func (f *fakeStore) AddLike(ctx context.Context, reportID, userID string) error {
	if f.likes[reportID] == nil {
		f.likes[reportID] = make(map[string]bool)
	}
	f.likes[reportID][userID] = true
	return nil
}

func (f *fakeStore) RemoveLike(ctx context.Context, reportID, userID string) error {
	delete(f.likes[reportID], userID)
	return nil
}

func (f *fakeStore) CountLikes(ctx context.Context, reportID string) (int, error) {
	return len(f.likes[reportID]), nil
}

func ptr(s string) *string { return &s }

func row(id string, counts harvest.AggregateCounts) harvest.FeedRow {
	return harvest.FeedRow{
		Report:    harvest.Report{ID: id, UserID: "u1", Counts: counts, CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
		FirstName: ptr("Jane"),
		LastName:  ptr("doe"),
	}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newAssembler(t *testing.T, store *fakeStore) (*Assembler, *clock) {
	t.Helper()
	kv, err := kvstore.NewMemory(16)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	clk := &clock{t: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	c := cache.New(kv).WithClock(clk.now)
	return New(store, c, Options{PageSize: 3}), clk
}

func TestNormalizePrefersItemized(t *testing.T) {
	r := row("r1", harvest.AggregateCounts{RedDrum: 4, Flounder: 3})
	r.Report.Items = harvest.ItemizedCatches{
		{Species: "striper", Count: 1, Lengths: []string{"30"}},
		{Species: "weakfish", Count: 2},
	}
	e, ok := Normalize(r)
	if !ok {
		t.Fatal("expected entry")
	}
	if len(e.SpeciesList) != 2 || e.SpeciesList[0].Species != harvest.Weakfish || e.SpeciesList[1].Species != harvest.StripedBass {
		t.Errorf("expected itemized species list, got %v", e.SpeciesList)
	}
	if e.TotalFish != 3 || e.PrimarySpecies != harvest.Weakfish {
		t.Errorf("unexpected totals %d / %s", e.TotalFish, e.PrimarySpecies)
	}
	if e.AnglerName != "Jane D." {
		t.Errorf("expected 'Jane D.', got %q", e.AnglerName)
	}
}

func TestNormalizeDropsEmpty(t *testing.T) {
	if _, ok := Normalize(row("r1", harvest.AggregateCounts{})); ok {
		t.Error("expected empty report to be dropped")
	}
}

func TestCacheTTLBoundary(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{row("a", harvest.AggregateCounts{RedDrum: 1})}
	a, clk := newAssembler(t, store)
	ctx := context.Background()

	a.FetchPage(ctx, PageRequest{})
	if store.fetchCalls != 1 {
		t.Fatalf("expected 1 fetch, got %d", store.fetchCalls)
	}
	written := clk.t

	clk.t = written.Add(DefaultTTL - time.Millisecond)
	page := a.FetchPage(ctx, PageRequest{})
	if store.fetchCalls != 1 || !page.FromCache {
		t.Errorf("expected cached page just before TTL, fetches=%d", store.fetchCalls)
	}

	clk.t = written.Add(DefaultTTL + time.Millisecond)
	page = a.FetchPage(ctx, PageRequest{})
	if store.fetchCalls != 2 || page.FromCache {
		t.Errorf("expected remote fetch just after TTL, fetches=%d", store.fetchCalls)
	}
}

func TestForceRefreshBypassesCache(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{row("a", harvest.AggregateCounts{RedDrum: 1})}
	a, _ := newAssembler(t, store)
	ctx := context.Background()

	a.FetchPage(ctx, PageRequest{})
	a.FetchPage(ctx, PageRequest{ForceRefresh: true})
	if store.fetchCalls != 2 {
		t.Errorf("expected 2 fetches, got %d", store.fetchCalls)
	}
}

func TestPaginationExhaustion(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 10; i++ {
		counts := harvest.AggregateCounts{Flounder: 1}
		if i == 4 {
			counts = harvest.AggregateCounts{}
		}
		store.rows = append(store.rows, row(fmt.Sprintf("r%02d", i), counts))
	}
	a, _ := newAssembler(t, store)
	ctx := context.Background()

	seen := make(map[string]bool)
	offset, pages := 0, 0
	for {
		page := a.FetchPage(ctx, PageRequest{Offset: offset})
		pages++
		for _, e := range page.Entries {
			if seen[e.ID] {
				t.Fatalf("duplicate entry %s", e.ID)
			}
			seen[e.ID] = true
		}
		if !page.HasMore {
			break
		}
		if page.NextOffset <= offset {
			t.Fatalf("offset did not advance: %d -> %d", offset, page.NextOffset)
		}
		offset = page.NextOffset
		if pages > 10 {
			t.Fatal("pagination did not terminate")
		}
	}
	if len(seen) != 9 {
		t.Errorf("expected 9 entries across pages, got %d", len(seen))
	}
	if pages != 4 {
		t.Errorf("expected 4 pages, got %d", pages)
	}
}

func TestOfflineFirstPage(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{
		row("a", harvest.AggregateCounts{RedDrum: 1}),
		row("b", harvest.AggregateCounts{Weakfish: 2}),
	}
	a, clk := newAssembler(t, store)
	ctx := context.Background()
	a.FetchPage(ctx, PageRequest{})

	store.offline = true
	page := a.FetchPage(ctx, PageRequest{Offset: 0})
	if len(page.Entries) != 2 || page.HasMore {
		t.Errorf("expected 2 cached entries and no more, got %d, %v", len(page.Entries), page.HasMore)
	}

	clk.t = clk.t.Add(time.Hour)
	page = a.FetchPage(ctx, PageRequest{Offset: 0})
	if len(page.Entries) != 2 || page.HasMore || !page.Stale || !page.FromCache {
		t.Errorf("expected stale cached page offline, got %+v", page)
	}

	page = a.FetchPage(ctx, PageRequest{Offset: 3})
	if len(page.Entries) != 0 || page.HasMore {
		t.Errorf("expected empty later page offline, got %+v", page)
	}
}

func TestOfflineFullFirstPage(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{
		row("a", harvest.AggregateCounts{RedDrum: 1}),
		row("b", harvest.AggregateCounts{Weakfish: 2}),
		row("c", harvest.AggregateCounts{Flounder: 1}),
		row("d", harvest.AggregateCounts{StripedBass: 1}),
	}
	a, clk := newAssembler(t, store)
	ctx := context.Background()
	a.FetchPage(ctx, PageRequest{})
	fetches := store.fetchCalls

	// A fresh snapshot is served as is, without asking the store.
	store.offline = true
	page := a.FetchPage(ctx, PageRequest{})
	if len(page.Entries) != 3 || !page.HasMore || page.Stale || !page.FromCache {
		t.Errorf("expected fresh full cached page with more, got %+v", page)
	}
	if store.fetchCalls != fetches {
		t.Errorf("expected no store fetch for a fresh snapshot, got %d", store.fetchCalls-fetches)
	}

	clk.t = clk.t.Add(time.Hour)
	page = a.FetchPage(ctx, PageRequest{})
	if len(page.Entries) != 3 || page.HasMore || !page.Stale || !page.FromCache {
		t.Errorf("expected stale full page without more once expired, got %+v", page)
	}
}

func TestOfflineWithoutCache(t *testing.T) {
	store := newFakeStore()
	store.offline = true
	a, _ := newAssembler(t, store)

	page := a.FetchPage(context.Background(), PageRequest{})
	if len(page.Entries) != 0 || page.HasMore {
		t.Errorf("expected empty page, got %+v", page)
	}
	if store.fetchCalls != 0 {
		t.Errorf("expected no fetch while offline, got %d", store.fetchCalls)
	}
}

func TestFetchErrorFallsBack(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{row("a", harvest.AggregateCounts{RedDrum: 1})}
	a, _ := newAssembler(t, store)
	ctx := context.Background()
	a.FetchPage(ctx, PageRequest{})

	store.fetchErr = errors.New("connection reset")
	page := a.FetchPage(ctx, PageRequest{ForceRefresh: true})
	if len(page.Entries) != 1 || !page.FromCache {
		t.Errorf("expected cached fallback, got %+v", page)
	}
}

func TestCacheOverwrittenNotMerged(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{row("a", harvest.AggregateCounts{RedDrum: 1})}
	a, _ := newAssembler(t, store)
	ctx := context.Background()
	a.FetchPage(ctx, PageRequest{})

	store.rows = []harvest.FeedRow{row("b", harvest.AggregateCounts{RedDrum: 1})}
	a.FetchPage(ctx, PageRequest{ForceRefresh: true})

	page := a.FetchPage(ctx, PageRequest{})
	if len(page.Entries) != 1 || page.Entries[0].ID != "b" {
		t.Errorf("expected cache to hold only the latest page, got %+v", page.Entries)
	}
}

func TestClearCache(t *testing.T) {
	store := newFakeStore()
	store.rows = []harvest.FeedRow{row("a", harvest.AggregateCounts{RedDrum: 1})}
	a, _ := newAssembler(t, store)
	ctx := context.Background()
	a.FetchPage(ctx, PageRequest{})

	if err := a.ClearCache(ctx); err != nil {
		t.Fatalf("ClearCache: %v", err)
	}
	store.offline = true
	if page := a.FetchPage(ctx, PageRequest{}); len(page.Entries) != 0 {
		t.Errorf("expected no cached entries after clear, got %d", len(page.Entries))
	}
}

func TestEnrichWithLikes(t *testing.T) {
	store := newFakeStore()
	a, _ := newAssembler(t, store)
	ctx := context.Background()
	entries := []harvest.CatchFeedEntry{{ID: "a"}, {ID: "b"}}

	if n, err := a.Like(ctx, "a", "viewer"); err != nil || n != 1 {
		t.Fatalf("Like: %d, %v", n, err)
	}
	if n, _ := a.Like(ctx, "a", "viewer"); n != 1 {
		t.Errorf("expected repeated like to keep count 1, got %d", n)
	}
	a.Like(ctx, "a", "other")

	out := a.EnrichWithLikes(ctx, entries, "viewer")
	if store.likeQueries != 1 {
		t.Errorf("expected one batched lookup, got %d", store.likeQueries)
	}
	if out[0].LikeCount != 2 || !out[0].LikedByViewer {
		t.Errorf("unexpected like state for a: %+v", out[0])
	}
	if out[1].LikeCount != 0 || out[1].LikedByViewer {
		t.Errorf("unexpected like state for b: %+v", out[1])
	}
	if entries[0].LikeCount != 0 {
		t.Error("expected input entries to be left untouched")
	}

	if n, _ := a.Unlike(ctx, "a", "viewer"); n != 1 {
		t.Errorf("expected 1 like after unlike, got %d", n)
	}
}

func TestEnrichWithLikesDefaultsOnFailure(t *testing.T) {
	store := newFakeStore()
	store.likeErr = errors.New("timeout")
	a, _ := newAssembler(t, store)

	out := a.EnrichWithLikes(context.Background(), []harvest.CatchFeedEntry{{ID: "a", LikeCount: 9, LikedByViewer: true}}, "viewer")
	if out[0].LikeCount != 0 || out[0].LikedByViewer {
		t.Errorf("expected default like state, got %+v", out[0])
	}
}

func TestProfile(t *testing.T) {
	store := newFakeStore()
	store.users["u1"] = harvest.User{ID: "u1", FirstName: ptr("Jane"), LastName: ptr("Doe"), CreatedAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)}
	store.stats["u1"] = harvest.UserStats{UserID: "u1", TotalReports: 8, TotalFish: 20, CurrentStreakDays: 2, LongestStreakDays: 4}
	store.species["u1"] = []harvest.UserSpeciesStat{
		{UserID: "u1", Species: harvest.Weakfish, TotalCount: 5},
		{UserID: "u1", Species: harvest.Flounder, TotalCount: 12},
		{UserID: "u1", Species: harvest.RedDrum, TotalCount: 5},
	}
	for i := 0; i < 8; i++ {
		store.rows = append(store.rows, row(fmt.Sprintf("r%d", i), harvest.AggregateCounts{Flounder: 1}))
	}
	a, _ := newAssembler(t, store)

	p, ok := a.Profile(context.Background(), "u1")
	if !ok {
		t.Fatal("expected profile")
	}
	if p.DisplayName != "Jane D." || p.TotalFish != 20 || p.LongestStreak != 4 {
		t.Errorf("unexpected profile %+v", p)
	}
	if p.TopSpecies == nil || *p.TopSpecies != harvest.Flounder {
		t.Errorf("expected flounder as top species, got %v", p.TopSpecies)
	}
	if p.Species[1].Species != harvest.RedDrum {
		t.Errorf("expected catalog order on ties, got %v", p.Species)
	}
	if len(p.RecentCatches) != DefaultProfileRecent {
		t.Errorf("expected %d recent catches, got %d", DefaultProfileRecent, len(p.RecentCatches))
	}

	if _, ok := a.Profile(context.Background(), "nobody"); ok {
		t.Error("expected no profile for unknown user")
	}
	store.offline = true
	if _, ok := a.Profile(context.Background(), "u1"); ok {
		t.Error("expected no profile when offline")
	}
}
