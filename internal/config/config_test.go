package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestEmbeddedDefaults(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("parse embedded defaults: %v", err)
	}

	if cfg.Store.Driver != DriverSQLite {
		t.Errorf("expected driver 'sqlite', got %q", cfg.Store.Driver)
	}
	if cfg.FeedTTL() != 5*time.Minute {
		t.Errorf("expected 5m feed ttl, got %v", cfg.FeedTTL())
	}
	if cfg.Feed.PageSize != 12 || cfg.Feed.ProfileRecent != 6 {
		t.Errorf("unexpected feed config %+v", cfg.Feed)
	}
	if cfg.Leaderboard.WindowDays != 7 {
		t.Errorf("expected 7 day window, got %d", cfg.Leaderboard.WindowDays)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("expected port 8000, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		t.Error("expected cors origins to be populated")
	}
}

func TestPartialYAMLKeepsDefaults(t *testing.T) {
	data := []byte(`
store:
  driver: postgres
server:
  port: 9000
`)
	cfg, err := parse(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("expected driver 'postgres', got %q", cfg.Store.Driver)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Store.PostgresDSNEnv != "CATCHFEED_POSTGRES_DSN" {
		t.Errorf("expected default dsn env, got %q", cfg.Store.PostgresDSNEnv)
	}
	if cfg.Cache.FeedTTLSeconds != 300 {
		t.Errorf("expected default ttl, got %d", cfg.Cache.FeedTTLSeconds)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, "config.toml", []byte(`
[cache]
memory_entries = 64
feed_ttl_seconds = 60

[leaderboard]
limit = 3
`))

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cache.MemoryEntries != 64 || cfg.FeedTTL() != time.Minute {
		t.Errorf("unexpected cache config %+v", cfg.Cache)
	}
	if cfg.Leaderboard.Limit != 3 || cfg.Leaderboard.WindowDays != 7 {
		t.Errorf("unexpected leaderboard config %+v", cfg.Leaderboard)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", DefaultConfigYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("expected level INFO, got %q", cfg.Logging.Level)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CATCHFEED_DATA_DIR", "/tmp/catchfeed-test")
	t.Setenv("CATCHFEED_PORT", "9100")
	t.Setenv("CATCHFEED_STORE_DRIVER", "POSTGRES")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	if cfg.GetDataDir() != "/tmp/catchfeed-test" {
		t.Errorf("unexpected data dir %q", cfg.GetDataDir())
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Store.Driver != DriverPostgres {
		t.Errorf("expected postgres driver, got %q", cfg.Store.Driver)
	}

	t.Setenv("CATCHFEED_PORT", "abc")
	if _, err := Default(); err == nil {
		t.Error("expected error for invalid port")
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := defaults()
	cfg.Store.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestPaths(t *testing.T) {
	cfg := &Config{}
	if cfg.GetDataDir() == "" {
		t.Error("data dir should fall back to the XDG location")
	}

	cfg.Output.DataDir = "/custom/path"
	if cfg.SQLitePath() != filepath.Join("/custom/path", "catchfeed.db") {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath())
	}
	if cfg.CachePath() != filepath.Join("/custom/path", "cache.db") {
		t.Errorf("unexpected cache path %q", cfg.CachePath())
	}

	cfg.Store.SQLitePath = "/elsewhere/store.db"
	if cfg.SQLitePath() != "/elsewhere/store.db" {
		t.Errorf("unexpected sqlite path %q", cfg.SQLitePath())
	}
}

func TestPostgresDSN(t *testing.T) {
	cfg := defaults()
	t.Setenv("CATCHFEED_POSTGRES_DSN", "")
	if _, err := cfg.PostgresDSN(); err == nil {
		t.Error("expected error when dsn variable is empty")
	}
	t.Setenv("CATCHFEED_POSTGRES_DSN", "postgres://localhost/catchfeed")
	if dsn, err := cfg.PostgresDSN(); err != nil || dsn != "postgres://localhost/catchfeed" {
		t.Errorf("unexpected dsn %q, %v", dsn, err)
	}
}
