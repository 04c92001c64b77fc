package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/i474232898/gdelt-news-cache/internal/gdelt"
	"github.com/i474232898/gdelt-news-cache/internal/news"
	"github.com/i474232898/gdelt-news-cache/internal/store"
)

const appDir = "gdelt-news"

// Storage backends selectable with NEWS_STORAGE.
const (
	StorageLocal  = "local"
	StorageRemote = "remote"
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

type AppConfig struct {
	BaseURL     string
	UserAgent   string
	HTTPTimeout time.Duration
	HTTPRetries int

	// RequestInterval spaces uncached API requests across all workers.
	RequestInterval time.Duration
	MaxRecords      int
	Workers         int
	Resolution      news.Resolution

	Storage    string
	CacheDir   string
	DataDir    string
	SQLitePath string
	Remote     store.RemoteConfig

	// Keywords narrow exported clips to snippets mentioning any of them.
	Keywords []string

	// SearchesFile lists searches the scheduler replays besides stored ones.
	SearchesFile    string
	RefreshInterval time.Duration

	Port    string
	Verbose bool
	LogJSON bool
}

// Load reads configuration from environment with sensible defaults.
func Load(logger *slog.Logger) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Debug("no .env file loaded", "err", err)
	}
	cfg := &AppConfig{}

	cfg.BaseURL = getenvDefault("GDELT_BASE_URL", gdelt.DefaultBaseURL)
	cfg.UserAgent = getenvDefault("NEWS_USER_AGENT", "gdelt-news-cache/1.0")
	cfg.HTTPRetries = getenvInt("NEWS_HTTP_RETRIES", 0)
	cfg.MaxRecords = getenvInt("NEWS_MAX_RECORDS", news.DefaultMaxRecords)
	cfg.Workers = getenvInt("NEWS_WORKERS", news.DefaultWorkers)
	cfg.Port = getenvDefault("PORT", "8080")
	cfg.Verbose = getenvBool("NEWS_VERBOSE", false)
	cfg.LogJSON = getenvBool("NEWS_LOG_JSON", false)

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("NEWS_HTTP_TIMEOUT", "30s"); err != nil {
		return nil, err
	}
	if cfg.RequestInterval, err = getenvDuration("NEWS_REQUEST_INTERVAL", news.DefaultRequestInterval.String()); err != nil {
		return nil, err
	}
	if cfg.RefreshInterval, err = getenvDuration("NEWS_REFRESH_INTERVAL", "24h"); err != nil {
		return nil, err
	}
	if cfg.Resolution, err = news.ParseResolution(os.Getenv("NEWS_RESOLUTION")); err != nil {
		return nil, fmt.Errorf("invalid NEWS_RESOLUTION: %w", err)
	}

	cfg.Storage = strings.ToLower(getenvDefault("NEWS_STORAGE", StorageLocal))
	cfg.CacheDir = getenvDefault("NEWS_CACHE_DIR", filepath.Join(xdg.CacheHome, appDir))
	cfg.DataDir = getenvDefault("NEWS_DATA_DIR", filepath.Join(xdg.DataHome, appDir))
	cfg.SQLitePath = getenvDefault("NEWS_SQLITE_PATH", filepath.Join(xdg.DataHome, appDir, "cache.db"))
	cfg.Remote = store.RemoteConfig{
		Endpoint:  os.Getenv("S3_ENDPOINT"),
		AccessKey: os.Getenv("S3_ACCESS_KEY"),
		SecretKey: os.Getenv("S3_SECRET_KEY"),
		Bucket:    os.Getenv("S3_BUCKET"),
		UseSSL:    getenvBool("S3_USE_SSL", true),
	}
	cfg.SearchesFile = os.Getenv("NEWS_SEARCHES_FILE")
	cfg.Keywords = getenvList("NEWS_KEYWORDS")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	switch c.Storage {
	case StorageLocal, StorageSQLite, StorageMemory:
	case StorageRemote:
		if c.Remote.Endpoint == "" || c.Remote.Bucket == "" {
			return fmt.Errorf("NEWS_STORAGE=remote requires S3_ENDPOINT and S3_BUCKET")
		}
		if c.Remote.AccessKey == "" || c.Remote.SecretKey == "" {
			return fmt.Errorf("NEWS_STORAGE=remote requires S3_ACCESS_KEY and S3_SECRET_KEY")
		}
	default:
		return fmt.Errorf("invalid NEWS_STORAGE %q", c.Storage)
	}
	if c.MaxRecords <= 0 {
		return fmt.Errorf("invalid NEWS_MAX_RECORDS: %d", c.MaxRecords)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid NEWS_WORKERS: %d", c.Workers)
	}
	return nil
}

// SavedSearches is the layout of a searches file.
type SavedSearches struct {
	Searches []news.Metadata `toml:"searches" yaml:"searches"`
}

// LoadSearches reads a .toml, .yaml or .yml file of searches. An empty path
// yields none; so does a missing file.
func LoadSearches(path string) ([]news.Metadata, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read searches file: %w", err)
	}

	var saved SavedSearches
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		err = toml.Unmarshal(data, &saved)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &saved)
	default:
		return nil, fmt.Errorf("unsupported searches file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("parse searches file %s: %w", path, err)
	}

	validate := validator.New()
	for i, meta := range saved.Searches {
		if err := validate.Struct(meta); err != nil {
			return nil, fmt.Errorf("search %d in %s: %w", i+1, path, err)
		}
	}
	return saved.Searches, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getenvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
