package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/TobiSchelling/catchfeed/internal/cache"
	"github.com/TobiSchelling/catchfeed/internal/config"
	"github.com/TobiSchelling/catchfeed/internal/database"
	"github.com/TobiSchelling/catchfeed/internal/digest"
	"github.com/TobiSchelling/catchfeed/internal/engine"
	"github.com/TobiSchelling/catchfeed/internal/feed"
	"github.com/TobiSchelling/catchfeed/internal/harvest"
	"github.com/TobiSchelling/catchfeed/internal/kvstore"
	"github.com/TobiSchelling/catchfeed/internal/leaderboard"
	"github.com/TobiSchelling/catchfeed/internal/logging"
	"github.com/TobiSchelling/catchfeed/internal/pgstore"
	"github.com/TobiSchelling/catchfeed/internal/server"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "catchfeed",
	Short:   "Harvest statistics, achievements and the community catch feed",
	Long:    "catchfeed turns confirmed harvest reports into angler statistics, achievements, a cached community feed and a weekly leaderboard.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return logging.Setup(os.Stderr, "INFO", verbose)
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return logging.Setup(os.Stderr, cfg.Logging.Level, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(feedCmd)
	rootCmd.AddCommand(leaderboardCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(likeCmd)
	rootCmd.AddCommand(unlikeCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(digestCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("catchfeed", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/catchfeed/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to choose the store driver, cache location and leaderboard window.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show store and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		store, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(ctx)
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Store: %s\n", cfg.Store.Driver)
		if v, ok := store.(interface {
			SchemaVersion(context.Context) (int, error)
		}); ok {
			if n, err := v.SchemaVersion(ctx); err == nil {
				fmt.Printf("Schema version: %d\n", n)
			}
		}
		fmt.Println()
		fmt.Println("Rows:")
		fmt.Printf("  Users: %d\n", st.Users)
		fmt.Printf("  Reports: %d\n", st.Reports)
		fmt.Printf("  Catch lines: %d\n", st.Catches)
		fmt.Printf("  Likes: %d\n", st.Likes)
		fmt.Printf("  Achievements earned: %d\n", st.Achievements)
		fmt.Println("\nCache:")
		if cfg.Cache.MemoryEntries > 0 {
			fmt.Printf("  In memory (%d entries)\n", cfg.Cache.MemoryEntries)
		} else {
			fmt.Printf("  %s\n", cfg.CachePath())
		}
		fmt.Printf("  Feed TTL: %s\n", cfg.FeedTTL())
		return nil
	},
}

// --- serve command ---

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port = servePort
		}
		srv, err := server.New(eng, server.Options{
			Port:        port,
			CORSOrigins: cfg.Server.CORSOrigins,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Starting server at http://localhost:%d\n", port)
		fmt.Println("Press Ctrl+C to stop")
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 8000, "Port to run server on")
}

// --- feed command ---

var (
	feedOffset  int
	feedLimit   int
	feedRefresh bool
	feedViewer  string
	feedJSON    bool
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show a page of recent catches",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		page := eng.FetchRecentCatches(ctx, feed.PageRequest{
			Offset:       feedOffset,
			Limit:        feedLimit,
			ForceRefresh: feedRefresh,
		})
		page.Entries = eng.EnrichCatchesWithLikes(ctx, page.Entries, feedViewer)

		if feedJSON {
			return printJSON(page)
		}

		if len(page.Entries) == 0 {
			fmt.Println("No catches to show.")
			return nil
		}
		source := "store"
		if page.FromCache {
			source = "cache"
			if page.Stale {
				source = "stale cache"
			}
		}
		fmt.Printf("Recent catches (from %s):\n\n", source)
		for _, e := range page.Entries {
			fmt.Printf("  %s  %s  %d fish  %s\n", e.CreatedAt.Local().Format("Jan 02 15:04"), e.AnglerName, e.TotalFish, speciesSummary(e.SpeciesList))
			meta := []string{"id " + e.ID, fmt.Sprintf("%d likes", e.LikeCount)}
			if e.Location != nil && *e.Location != "" {
				meta = append(meta, *e.Location)
			}
			fmt.Printf("        %s\n", strings.Join(meta, " | "))
		}
		if page.HasMore {
			fmt.Printf("\nMore: catchfeed feed --offset %d\n", page.NextOffset)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().IntVar(&feedOffset, "offset", 0, "Store rows to skip")
	feedCmd.Flags().IntVar(&feedLimit, "limit", 0, "Page size (defaults to config)")
	feedCmd.Flags().BoolVar(&feedRefresh, "refresh", false, "Bypass the cached first page")
	feedCmd.Flags().StringVar(&feedViewer, "viewer", "", "User ID whose likes are marked")
	feedCmd.Flags().BoolVar(&feedJSON, "json", false, "Print JSON")
}

// --- leaderboard command ---

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show this week's top anglers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		top := eng.FetchTopAnglers(ctx)
		if len(top) == 0 {
			fmt.Printf("No reports in the last %d days.\n", eng.LeaderboardWindowDays())
			return nil
		}
		fmt.Printf("Top anglers, last %d days:\n\n", eng.LeaderboardWindowDays())
		for _, a := range top {
			fmt.Printf("  %-8s %s (%s %s)\n", a.Metric, a.DisplayName, a.FormattedValue, a.Unit)
		}
		return nil
	},
}

// --- profile command ---

var profileCmd = &cobra.Command{
	Use:   "profile [user-id]",
	Short: "Show an angler's profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		p, ok := eng.FetchAnglerProfile(ctx, args[0])
		if !ok {
			return fmt.Errorf("angler %s not found", args[0])
		}
		fmt.Printf("%s (member since %s)\n\n", p.DisplayName, p.MemberSince.Local().Format("Jan 02, 2006"))
		fmt.Printf("  Reports: %d\n", p.TotalReports)
		fmt.Printf("  Fish: %d\n", p.TotalFish)
		fmt.Printf("  Streak: %d days (longest %d)\n", p.CurrentStreak, p.LongestStreak)
		if len(p.Species) > 0 {
			fmt.Println("\nSpecies:")
			for _, s := range p.Species {
				line := fmt.Sprintf("  %s: %d", s.Species.DisplayName(), s.TotalCount)
				if s.LargestLength != nil {
					line += ", largest " + leaderboard.FormatLength(*s.LargestLength)
				}
				fmt.Println(line)
			}
		}

		earned, err := eng.FetchAnglerAchievements(ctx, args[0])
		if err != nil {
			return err
		}
		if len(earned) > 0 {
			fmt.Println("\nAchievements:")
			for _, a := range earned {
				fmt.Printf("  %s %s\n", a.Icon, a.Name)
			}
		}
		return nil
	},
}

// --- report command ---

var (
	reportUser    string
	reportDate    string
	reportPhoto   string
	reportArea    string
	reportCounts  harvest.AggregateCounts
	reportCatches []string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit a confirmed harvest report",
	Long:  "Submit a harvest report. Use the per-species count flags, or --catch for itemized entries such as --catch \"speckled trout=2@18.5,20\".",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportUser == "" {
			return errors.New("--user is required")
		}
		date := time.Now()
		if reportDate != "" {
			d, err := time.Parse(harvest.DateLayout, reportDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q: expected YYYY-MM-DD", reportDate)
			}
			date = d
		}
		items, err := parseCatches(reportCatches)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		r := harvest.Report{
			ID:          uuid.NewString(),
			UserID:      reportUser,
			HarvestDate: date,
			CreatedAt:   time.Now().UTC(),
			PhotoURL:    optional(reportPhoto),
			AreaLabel:   optional(reportArea),
			Counts:      reportCounts,
			Items:       items,
		}
		res, err := eng.SubmitReport(ctx, r)
		if err != nil {
			return err
		}

		fmt.Printf("Report %s: %d fish\n", r.ID, harvest.TotalFish(r.Catches()))
		printSteps(res.Steps)
		for _, a := range res.AchievementsAwarded {
			fmt.Printf("  Unlocked: %s %s\n", a.Icon, a.Name)
		}
		if !res.Success {
			return fmt.Errorf("report stored but statistics are incomplete: %w", res.Err)
		}
		return nil
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringVar(&reportUser, "user", "", "Reporting user ID")
	f.StringVar(&reportDate, "date", "", "Harvest date, YYYY-MM-DD (defaults to today)")
	f.StringVar(&reportPhoto, "photo", "", "Photo URL")
	f.StringVar(&reportArea, "area", "", "Area label")
	f.IntVar(&reportCounts.RedDrum, "red-drum", 0, "Red drum count")
	f.IntVar(&reportCounts.Flounder, "flounder", 0, "Flounder count")
	f.IntVar(&reportCounts.SpottedSeatrout, "spotted-seatrout", 0, "Spotted seatrout count")
	f.IntVar(&reportCounts.Weakfish, "weakfish", 0, "Weakfish count")
	f.IntVar(&reportCounts.StripedBass, "striped-bass", 0, "Striped bass count")
	f.StringArrayVar(&reportCatches, "catch", nil, "Itemized catch: species=count[@len,len]")
}

// --- backfill command ---

var backfillCmd = &cobra.Command{
	Use:   "backfill [user-id]",
	Short: "Rebuild a user's statistics from their report history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		res := eng.BackfillUserStatsFromReports(ctx, args[0])
		printSteps(res.Steps)
		if !res.Success {
			return fmt.Errorf("backfill failed: %w", res.Err)
		}
		fmt.Printf("\nBackfill complete: %d reports, %d fish, %d species, %d new achievements\n",
			res.TotalReports, res.TotalFish, res.SpeciesUpdated, len(res.AchievementsAwarded))
		return nil
	},
}

// --- like commands ---

var likeUser string

var likeCmd = &cobra.Command{
	Use:   "like [catch-id]",
	Short: "Like a catch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeLike(cmd, args[0], (*engine.Engine).LikeCatch)
	},
}

var unlikeCmd = &cobra.Command{
	Use:   "unlike [catch-id]",
	Short: "Remove a like from a catch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return changeLike(cmd, args[0], (*engine.Engine).UnlikeCatch)
	},
}

func init() {
	likeCmd.Flags().StringVar(&likeUser, "user", "", "Liking user ID")
	unlikeCmd.Flags().StringVar(&likeUser, "user", "", "Liking user ID")
	_ = likeCmd.MarkFlagRequired("user")
	_ = unlikeCmd.MarkFlagRequired("user")
}

func changeLike(cmd *cobra.Command, catchID string, change func(*engine.Engine, context.Context, string, string) (int, error)) error {
	ctx := cmd.Context()
	eng, closeAll, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer closeAll()

	n, err := change(eng, ctx, catchID, likeUser)
	if err != nil {
		return err
	}
	fmt.Printf("Catch %s now has %d likes\n", catchID, n)
	return nil
}

// --- cache command ---

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the local feed cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Drop the cached first feed page",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		if err := eng.ClearCatchFeedCache(ctx); err != nil {
			return err
		}
		fmt.Println("Feed cache cleared.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}

// --- digest command ---

var (
	digestHTML    bool
	digestEntries int
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Print the weekly catch digest",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		eng, closeAll, err := openEngine(ctx)
		if err != nil {
			return err
		}
		defer closeAll()

		d := digest.NewComposer(eng).Compose(ctx, digestEntries)
		if !digestHTML {
			fmt.Print(d.Markdown())
			return nil
		}
		html, err := d.HTML()
		if err != nil {
			return err
		}
		fmt.Print(html)
		return nil
	},
}

func init() {
	digestCmd.Flags().BoolVar(&digestHTML, "html", false, "Render HTML instead of markdown")
	digestCmd.Flags().IntVar(&digestEntries, "entries", 10, "Recent catches to include")
}

// backend is a remote store the CLI can open.
type backend interface {
	engine.Store
	Stats(ctx context.Context) (*harvest.StoreStatus, error)
	Close() error
}

func openStore(ctx context.Context) (backend, error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		dsn, err := cfg.PostgresDSN()
		if err != nil {
			return nil, err
		}
		pg, err := pgstore.Open(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		return pg, nil
	default:
		db, err := database.OpenContext(ctx, cfg.SQLitePath())
		if err != nil {
			return nil, err
		}
		return db, nil
	}
}

func openCache() (*cache.Cache, func(), error) {
	if cfg.Cache.MemoryEntries > 0 {
		kv, err := kvstore.NewMemory(cfg.Cache.MemoryEntries)
		if err != nil {
			return nil, nil, err
		}
		return cache.New(kv), func() {}, nil
	}
	kv, err := kvstore.OpenSQLite(cfg.CachePath())
	if err != nil {
		return nil, nil, fmt.Errorf("opening cache: %w", err)
	}
	return cache.New(kv), func() { kv.Close() }, nil
}

func openEngine(ctx context.Context) (*engine.Engine, func(), error) {
	st, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	c, closeCache, err := openCache()
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	eng := engine.New(st, c, engine.Options{
		Feed: feed.Options{
			PageSize:      cfg.Feed.PageSize,
			TTL:           cfg.FeedTTL(),
			ProfileRecent: cfg.Feed.ProfileRecent,
		},
		Leaderboard: leaderboard.Options{
			WindowDays: cfg.Leaderboard.WindowDays,
			Limit:      cfg.Leaderboard.Limit,
		},
	})
	return eng, func() {
		closeCache()
		st.Close()
	}, nil
}

func printSteps(steps []engine.StepResult) {
	for i, step := range steps {
		fmt.Printf("\nStep %d/%d: %s\n", i+1, len(steps), step.Name)
		if step.Err != nil {
			fmt.Printf("  Error: %v\n", step.Err)
		} else {
			fmt.Printf("  %s\n", step.Summary)
		}
	}
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func speciesSummary(list []harvest.SpeciesCatch) string {
	parts := make([]string, len(list))
	for i, c := range list {
		parts[i] = fmt.Sprintf("%s x%d", c.Species.DisplayName(), c.Count)
	}
	return strings.Join(parts, ", ")
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
