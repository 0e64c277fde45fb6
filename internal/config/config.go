package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store       Store       `yaml:"store" toml:"store"`
	Cache       Cache       `yaml:"cache" toml:"cache"`
	Feed        Feed        `yaml:"feed" toml:"feed"`
	Leaderboard Leaderboard `yaml:"leaderboard" toml:"leaderboard"`
	Server      Server      `yaml:"server" toml:"server"`
	Logging     Logging     `yaml:"logging" toml:"logging"`
	Output      Output      `yaml:"output" toml:"output"`
}

type Store struct {
	Driver         string `yaml:"driver" toml:"driver"`
	SQLitePath     string `yaml:"sqlite_path" toml:"sqlite_path"`
	PostgresDSNEnv string `yaml:"postgres_dsn_env" toml:"postgres_dsn_env"`
}

type Cache struct {
	Path           string `yaml:"path" toml:"path"`
	MemoryEntries  int    `yaml:"memory_entries" toml:"memory_entries"`
	FeedTTLSeconds int    `yaml:"feed_ttl_seconds" toml:"feed_ttl_seconds"`
}

type Feed struct {
	PageSize      int `yaml:"page_size" toml:"page_size"`
	ProfileRecent int `yaml:"profile_recent" toml:"profile_recent"`
}

type Leaderboard struct {
	WindowDays int `yaml:"window_days" toml:"window_days"`
	Limit      int `yaml:"limit" toml:"limit"`
}

type Server struct {
	Port        int      `yaml:"port" toml:"port"`
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

type Logging struct {
	Level string `yaml:"level" toml:"level"`
}

type Output struct {
	DataDir string `yaml:"data_dir" toml:"data_dir"`
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ConfigDir returns the XDG config directory for catchfeed.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "catchfeed")
}

// DataDir returns the XDG data directory for catchfeed.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "catchfeed")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/catchfeed/config.{yaml,toml} > ./config.{yaml,toml}
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	candidates := []string{
		filepath.Join(ConfigDir(), "config.yaml"),
		filepath.Join(ConfigDir(), "config.toml"),
		"config.yaml",
		"config.toml",
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c, nil
		}
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n\nRun 'catchfeed init' to create a default config",
		strings.Join(candidates, "\n  "),
	)
}

// Load reads a YAML or TOML config file, chosen by extension, and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		cfg, err = parseTOML(data)
	default:
		cfg, err = parse(data)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides.
func Default() (*Config, error) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Store: Store{
			Driver:         DriverSQLite,
			PostgresDSNEnv: "CATCHFEED_POSTGRES_DSN",
		},
		Cache:       Cache{FeedTTLSeconds: 300},
		Feed:        Feed{PageSize: 12, ProfileRecent: 6},
		Leaderboard: Leaderboard{WindowDays: 7, Limit: 10},
		Server:      Server{Port: 8000},
		Logging:     Logging{Level: "INFO"},
	}
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// parseTOML parses TOML bytes into a Config, applying defaults.
func parseTOML(data []byte) (*Config, error) {
	cfg := defaults()
	if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CATCHFEED_DATA_DIR"); v != "" {
		c.Output.DataDir = v
	}
	if v := os.Getenv("CATCHFEED_STORE_DRIVER"); v != "" {
		c.Store.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("CATCHFEED_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid CATCHFEED_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// Validate checks values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// SQLitePath returns the store database path.
func (c *Config) SQLitePath() string {
	if c.Store.SQLitePath != "" {
		return c.Store.SQLitePath
	}
	return filepath.Join(c.GetDataDir(), "catchfeed.db")
}

// CachePath returns the local cache database path.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.GetDataDir(), "cache.db")
}

// PostgresDSN reads the connection string from the configured variable.
func (c *Config) PostgresDSN() (string, error) {
	dsn := os.Getenv(c.Store.PostgresDSNEnv)
	if dsn == "" {
		return "", fmt.Errorf("%s is not set", c.Store.PostgresDSNEnv)
	}
	return dsn, nil
}

// FeedTTL returns the first-page cache lifetime.
func (c *Config) FeedTTL() time.Duration {
	return time.Duration(c.Cache.FeedTTLSeconds) * time.Second
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
