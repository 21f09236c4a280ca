package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "BTSTRM_"

type Config struct {
	Lang          string         `yaml:"lang"`
	JackettURL    string         `yaml:"jackett_url"`
	JackettAPIKey string         `yaml:"jackett_api_key"`
	UserAgent     string         `yaml:"user_agent"`
	Search        SearchConfig   `yaml:"search"`
	Mount         MountConfig    `yaml:"mount"`
	Progress      ProgressConfig `yaml:"progress"`
	Players       []string       `yaml:"players"`
	Cache         CacheConfig    `yaml:"cache"`
	History       HistoryConfig  `yaml:"history"`
	TMDB          TMDBConfig     `yaml:"tmdb"`
	Log           LogConfig      `yaml:"log"`
	Metrics       MetricsConfig  `yaml:"metrics"`
}

type SearchConfig struct {
	Concurrency    int           `yaml:"concurrency"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RatePerSecond  float64       `yaml:"rate_per_second"`
}

type MountConfig struct {
	Binary        string        `yaml:"binary"`
	UnmountBinary string        `yaml:"unmount_binary"`
	CacheDir      string        `yaml:"cache_dir"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	ReadyTimeout  time.Duration `yaml:"ready_timeout"`
	Keep          bool          `yaml:"keep"`
}

// DataDir is where btfs persists downloaded state; it is shared by all sessions.
func (m MountConfig) DataDir() string {
	return filepath.Join(m.CacheDir, "download")
}

// TorrentDir holds .torrent files fetched from Jackett download links.
func (m MountConfig) TorrentDir() string {
	return filepath.Join(m.CacheDir, "torrents")
}

type ProgressConfig struct {
	Interval time.Duration `yaml:"interval"`
}

type CacheConfig struct {
	Disabled bool          `yaml:"disabled"`
	TTL      time.Duration `yaml:"ttl"`
	RedisURL string        `yaml:"redis_url"`
}

type HistoryConfig struct {
	MongoURI string `yaml:"mongo_uri"`
	Database string `yaml:"database"`
}

type TMDBConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Textfile string `yaml:"textfile"`
}

func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Lang:       "es-ES",
		JackettURL: "http://127.0.0.1:9117",
		UserAgent:  "btstrm/1.0",
		Search: SearchConfig{
			Concurrency:    20,
			RequestTimeout: 20 * time.Second,
			RatePerSecond:  10,
		},
		Mount: MountConfig{
			Binary:        "btfs",
			UnmountBinary: "fusermount",
			CacheDir:      filepath.Join(home, ".cache", "btstrm"),
			PollInterval:  250 * time.Millisecond,
			ReadyTimeout:  5 * time.Minute,
		},
		Progress: ProgressConfig{Interval: 2 * time.Second},
		Players: []string{
			"omxplayer --timeout 60",
			"mpv --really-quiet --cache=no",
			"vlc --file-caching 10000",
		},
		Cache:   CacheConfig{TTL: 30 * time.Minute},
		History: HistoryConfig{Database: "btstrm"},
		TMDB:    TMDBConfig{BaseURL: "https://api.themoviedb.org/3"},
		Log:     LogConfig{Level: "warn", Format: "text"},
	}
}

// DefaultPath is ~/.config/btstrm/config.yaml.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "btstrm", "config.yaml")
}

// Load layers defaults, the YAML file, an optional .env and BTSTRM_* variables.
// A missing file at path is created with the defaults so users have something to edit.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if writeErr := cfg.WriteYAML(path); writeErr != nil {
			return cfg, fmt.Errorf("create default config: %w", writeErr)
		}
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// .env is a convenience for development; its absence is normal.
	_ = godotenv.Load()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Lang = getEnv("LANG_CODE", c.Lang)
	c.JackettURL = strings.TrimRight(getEnv("JACKETT_URL", c.JackettURL), "/")
	c.JackettAPIKey = getEnv("JACKETT_API_KEY", c.JackettAPIKey)
	c.UserAgent = getEnv("USER_AGENT", c.UserAgent)

	c.Search.Concurrency = getEnvInt("SEARCH_CONCURRENCY", c.Search.Concurrency)
	c.Search.RequestTimeout = getEnvDuration("SEARCH_TIMEOUT", c.Search.RequestTimeout)

	c.Mount.Binary = getEnv("MOUNT_BINARY", c.Mount.Binary)
	c.Mount.UnmountBinary = getEnv("UNMOUNT_BINARY", c.Mount.UnmountBinary)
	c.Mount.CacheDir = getEnv("CACHE_DIR", c.Mount.CacheDir)
	c.Mount.ReadyTimeout = getEnvDuration("READY_TIMEOUT", c.Mount.ReadyTimeout)
	c.Mount.Keep = getEnvBool("KEEP", c.Mount.Keep)

	c.Cache.Disabled = getEnvBool("CACHE_DISABLED", c.Cache.Disabled)
	c.Cache.TTL = getEnvDuration("CACHE_TTL", c.Cache.TTL)
	c.Cache.RedisURL = getEnv("REDIS_URL", c.Cache.RedisURL)

	c.History.MongoURI = getEnv("MONGO_URI", c.History.MongoURI)
	c.History.Database = getEnv("MONGO_DB", c.History.Database)

	c.TMDB.APIKey = getEnv("TMDB_API_KEY", c.TMDB.APIKey)

	c.Log.Level = strings.ToLower(getEnv("LOG_LEVEL", c.Log.Level))
	c.Log.Format = strings.ToLower(getEnv("LOG_FORMAT", c.Log.Format))
	c.Metrics.Textfile = getEnv("METRICS_TEXTFILE", c.Metrics.Textfile)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JackettURL) == "" {
		return errors.New("config: jackett_url is required")
	}
	if c.Search.Concurrency <= 0 {
		return fmt.Errorf("config: search.concurrency must be > 0, got %d", c.Search.Concurrency)
	}
	if c.Search.RequestTimeout <= 0 {
		return errors.New("config: search.request_timeout must be > 0")
	}
	if c.Mount.PollInterval <= 0 {
		return errors.New("config: mount.poll_interval must be > 0")
	}
	if c.Mount.ReadyTimeout <= 0 {
		return errors.New("config: mount.ready_timeout must be > 0")
	}
	if c.Progress.Interval <= 0 {
		return errors.New("config: progress.interval must be > 0")
	}
	if strings.TrimSpace(c.Mount.CacheDir) == "" {
		return errors.New("config: mount.cache_dir is required")
	}
	return nil
}

func (c Config) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(envPrefix + key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(envPrefix + key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	raw := strings.ToLower(strings.TrimSpace(os.Getenv(envPrefix + key)))
	if raw == "" {
		return fallback
	}
	switch raw {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
