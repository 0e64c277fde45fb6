// Package feed assembles the community catch feed: paginated reads from the
// remote store, a cached first page that survives going offline, like
// counts, and angler profiles.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/TobiSchelling/catchfeed/internal/cache"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
)

const (
	DefaultPageSize      = 12
	DefaultTTL           = 5 * time.Minute
	DefaultProfileRecent = 6
	maxPageSize          = 100
)

// FirstPageKey is the cache key of the first feed page.
var FirstPageKey = cache.Key("recent_catches")

// Store is the remote store as seen by the feed.
type Store interface {
	Ping(ctx context.Context) error
	RecentReports(ctx context.Context, offset, limit int) ([]harvest.FeedRow, error)
	RecentUserReports(ctx context.Context, userID string, limit int) ([]harvest.FeedRow, error)
	GetUser(ctx context.Context, userID string) (*harvest.User, error)
	GetUserStats(ctx context.Context, userID string) (*harvest.UserStats, error)
	SpeciesStats(ctx context.Context, userID string) ([]harvest.UserSpeciesStat, error)
	LikeSummary(ctx context.Context, reportIDs []string, viewerID string) (map[string]harvest.LikeState, error)
	AddLike(ctx context.Context, reportID, userID string) error
	RemoveLike(ctx context.Context, reportID, userID string) error
	CountLikes(ctx context.Context, reportID string) (int, error)
}

// Options tunes an Assembler. Zero values take the defaults.
type Options struct {
	PageSize      int
	TTL           time.Duration
	ProfileRecent int
}

// PageRequest selects a feed page.
type PageRequest struct {
	Offset       int
	Limit        int
	ForceRefresh bool
}

// Page is one page of the feed.
type Page struct {
	Entries    []harvest.CatchFeedEntry `json:"entries"`
	HasMore    bool                     `json:"hasMore"`
	NextOffset int                      `json:"nextOffset"`
	FromCache  bool                     `json:"fromCache"`
	Stale      bool                     `json:"stale"`
}

// snapshot is the cached form of the first page.
type snapshot struct {
	Entries  []harvest.CatchFeedEntry `json:"entries"`
	Consumed int                      `json:"consumed"`
	Limit    int                      `json:"limit"`
}

// Assembler builds feed pages.
type Assembler struct {
	store Store
	cache *cache.Cache
	opts  Options
}

// New creates an assembler.
func New(store Store, c *cache.Cache, opts Options) *Assembler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.ProfileRecent <= 0 {
		opts.ProfileRecent = DefaultProfileRecent
	}
	return &Assembler{store: store, cache: c, opts: opts}
}

// FetchPage returns a page of recent catches, newest first.
//
// The first page is served from cache while it is fresh unless ForceRefresh
// is set. When the store is unreachable or fails, the first page falls back
// to the cached copy regardless of age and later pages come back empty.
// NextOffset advances by the number of store rows consumed, so rows dropped
// during normalization never shift later pages.
func (a *Assembler) FetchPage(ctx context.Context, req PageRequest) Page {
	if req.Limit <= 0 {
		req.Limit = a.opts.PageSize
	}
	req.Limit = min(req.Limit, maxPageSize)
	req.Offset = max(req.Offset, 0)

	if req.Offset == 0 && !req.ForceRefresh {
		if snap, ok := cache.Read[snapshot](ctx, a.cache, FirstPageKey, a.opts.TTL); ok && snap.Limit == req.Limit {
			return Page{
				Entries:    snap.Entries,
				HasMore:    snap.Consumed >= req.Limit,
				NextOffset: snap.Consumed,
				FromCache:  true,
			}
		}
	}

	if err := a.store.Ping(ctx); err != nil {
		slog.Warn("Feed store unreachable", slog.Any("error", err))
		return a.fallback(ctx, req)
	}

	rows, err := a.store.RecentReports(ctx, req.Offset, req.Limit+1)
	if err != nil {
		slog.Warn("Fetching feed page failed", slog.Int("offset", req.Offset), slog.Any("error", err))
		return a.fallback(ctx, req)
	}

	hasMore := len(rows) > req.Limit
	if hasMore {
		rows = rows[:req.Limit]
	}
	entries := NormalizeAll(rows)
	if dropped := len(rows) - len(entries); dropped > 0 {
		slog.Debug("Dropped feed rows without species", slog.Int("count", dropped))
	}

	page := Page{Entries: entries, HasMore: hasMore, NextOffset: req.Offset + len(rows)}

	if req.Offset == 0 {
		snap := snapshot{Entries: entries, Consumed: len(rows), Limit: req.Limit}
		if err := cache.Write(ctx, a.cache, FirstPageKey, snap); err != nil {
			slog.Warn("Caching feed page failed", slog.Any("error", err))
		}
	}
	return page
}

func (a *Assembler) fallback(ctx context.Context, req PageRequest) Page {
	empty := Page{Entries: []harvest.CatchFeedEntry{}, NextOffset: req.Offset}
	if req.Offset != 0 {
		return empty
	}
	snap, written, ok := cache.ReadStale[snapshot](ctx, a.cache, FirstPageKey)
	if !ok {
		return empty
	}
	slog.Info("Serving cached feed page", slog.Time("written", written), slog.Int("entries", len(snap.Entries)))
	return Page{
		Entries:    snap.Entries,
		NextOffset: snap.Consumed,
		FromCache:  true,
		Stale:      a.cache.Now().Sub(written) >= a.opts.TTL,
	}
}

// ClearCache drops the cached first page.
func (a *Assembler) ClearCache(ctx context.Context) error {
	return a.cache.Clear(ctx, FirstPageKey)
}

// EnrichWithLikes returns a copy of entries carrying like counts and the
// viewer's own like. A failed lookup leaves every entry at zero likes.
func (a *Assembler) EnrichWithLikes(ctx context.Context, entries []harvest.CatchFeedEntry, viewerID string) []harvest.CatchFeedEntry {
	out := make([]harvest.CatchFeedEntry, len(entries))
	copy(out, entries)
	if len(out) == 0 {
		return out
	}

	ids := make([]string, len(out))
	for i, e := range out {
		ids[i] = e.ID
	}

	summary, err := a.store.LikeSummary(ctx, ids, viewerID)
	if err != nil {
		slog.Warn("Like lookup failed", slog.Int("entries", len(ids)), slog.Any("error", err))
		summary = nil
	}
	for i := range out {
		state := summary[out[i].ID]
		out[i].LikeCount = state.Count
		out[i].LikedByViewer = state.Liked
	}
	return out
}

// Like records userID's like of a catch and returns the stored count.
func (a *Assembler) Like(ctx context.Context, catchID, userID string) (int, error) {
	if err := a.store.AddLike(ctx, catchID, userID); err != nil {
		return 0, err
	}
	return a.countLikes(ctx, catchID)
}

// Unlike removes userID's like of a catch and returns the stored count.
func (a *Assembler) Unlike(ctx context.Context, catchID, userID string) (int, error) {
	if err := a.store.RemoveLike(ctx, catchID, userID); err != nil {
		return 0, err
	}
	return a.countLikes(ctx, catchID)
}

func (a *Assembler) countLikes(ctx context.Context, catchID string) (int, error) {
	n, err := a.store.CountLikes(ctx, catchID)
	if err != nil {
		return 0, fmt.Errorf("counting likes: %w", err)
	}
	return n, nil
}

// Profile assembles the public view of an angler. It reports false for an
// unknown angler or when the store cannot be read.
func (a *Assembler) Profile(ctx context.Context, userID string) (*harvest.AnglerProfile, bool) {
	p, err := a.profile(ctx, userID)
	if err != nil {
		slog.Warn("Loading angler profile failed", slog.String("user", userID), slog.Any("error", err))
		return nil, false
	}
	return p, p != nil
}

func (a *Assembler) profile(ctx context.Context, userID string) (*harvest.AnglerProfile, error) {
	user, err := a.store.GetUser(ctx, userID)
	if err != nil || user == nil {
		return nil, err
	}

	stats, err := a.store.GetUserStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	species, err := a.store.SpeciesStats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("species: %w", err)
	}
	rows, err := a.store.RecentUserReports(ctx, userID, a.opts.ProfileRecent)
	if err != nil {
		return nil, fmt.Errorf("recent reports: %w", err)
	}

	p := &harvest.AnglerProfile{
		UserID:        user.ID,
		DisplayName:   harvest.DisplayName(user.FirstName, user.LastName),
		AvatarURL:     user.AvatarURL,
		Species:       sortByVolume(species),
		RecentCatches: NormalizeAll(rows),
		MemberSince:   user.CreatedAt,
	}
	if stats != nil {
		p.TotalReports = stats.TotalReports
		p.TotalFish = stats.TotalFish
		p.CurrentStreak = stats.CurrentStreakDays
		p.LongestStreak = stats.LongestStreakDays
	}
	if len(p.Species) > 0 && p.Species[0].TotalCount > 0 {
		top := p.Species[0].Species
		p.TopSpecies = &top
	}
	return p, nil
}

// sortByVolume orders species by total caught; ties follow the catalog.
func sortByVolume(species []harvest.UserSpeciesStat) []harvest.UserSpeciesStat {
	out := make([]harvest.UserSpeciesStat, len(species))
	copy(out, species)
	rank := func(s harvest.Species) int {
		for i, t := range harvest.TrackedSpecies {
			if t == s {
				return i
			}
		}
		return len(harvest.TrackedSpecies)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TotalCount != out[j].TotalCount {
			return out[i].TotalCount > out[j].TotalCount
		}
		return rank(out[i].Species) < rank(out[j].Species)
	})
	return out
}
