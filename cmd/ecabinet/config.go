package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/hazyhaar/ecabinet/bincache"
	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/fetch"
	"github.com/hazyhaar/ecabinet/observability"
	"github.com/hazyhaar/ecabinet/shield"
	"gopkg.in/yaml.v3"
)

// Config holds the full ecabinet configuration.
type Config struct {
	Listen   string `yaml:"listen"`
	DBPath   string `yaml:"db_path"`
	CacheDB  string `yaml:"cache_db"`
	EventsDB string `yaml:"events_db"`

	// FilesDir holds uploaded binaries when no GCS bucket is configured.
	FilesDir      string `yaml:"files_dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	GCSBucket     string `yaml:"gcs_bucket"`
	// DatabaseURL switches documents and meetings to Postgres.
	DatabaseURL string `yaml:"database_url"`

	Seed       bool     `yaml:"seed"`
	MCPEnabled bool     `yaml:"mcp_enabled"`
	DemoIDs    []string `yaml:"demo_ids"`

	Cache     bincache.Config               `yaml:"cache"`
	Fetch     fetch.Config                  `yaml:"fetch"`
	Docpipe   docpipe.Config                `yaml:"docpipe"`
	Retention observability.RetentionConfig `yaml:"retention"`

	MaxUploadMB  int                    `yaml:"max_upload_mb"`
	UploadLimit  shield.RateLimitConfig `yaml:"upload_limit"`
	PreviewLimit shield.RateLimitConfig `yaml:"preview_limit"`
	FeedInterval time.Duration          `yaml:"feed_interval"`
	// FeedKeepDays bounds the SQLite change_log. Zero keeps everything.
	FeedKeepDays int `yaml:"feed_keep_days"`
	// SessionIdle closes preview sessions untouched for this long. Zero keeps them.
	SessionIdle time.Duration `yaml:"session_idle"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:        ":8080",
		DBPath:        "data/ecabinet.db",
		CacheDB:       "data/cache.db",
		EventsDB:      "data/events.db",
		FilesDir:      "data/files",
		PublicBaseURL: "http://localhost:8080",
		Seed:          true,
		MCPEnabled:    true,
		Cache: bincache.Config{
			MaxBytes: 512 << 20,
			MaxAge:   7 * 24 * time.Hour,
		},
		Docpipe: docpipe.Config{MaxFileSize: 100 << 20},
		Retention: observability.RetentionConfig{
			HTTPLogsDays:  14,
			EventLogsDays: 90,
		},
		MaxUploadMB:  100,
		UploadLimit:  shield.RateLimitConfig{MaxRequests: 30, Window: time.Minute},
		PreviewLimit: shield.RateLimitConfig{MaxRequests: 600, Window: time.Minute},
		FeedInterval: 500 * time.Millisecond,
		FeedKeepDays: 7,
		SessionIdle:  30 * time.Minute,
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen is required")
	}
	if c.DatabaseURL == "" && c.DBPath == "" {
		return fmt.Errorf("db_path or database_url is required")
	}
	if c.CacheDB == "" {
		return fmt.Errorf("cache_db is required")
	}
	if c.EventsDB == "" {
		return fmt.Errorf("events_db is required")
	}
	if c.GCSBucket == "" && c.FilesDir == "" {
		return fmt.Errorf("files_dir or gcs_bucket is required")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("max_upload_mb must be > 0")
	}
	if c.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must be >= 0")
	}
	if c.FeedInterval < 0 {
		return fmt.Errorf("feed_interval must be >= 0")
	}
	if c.SessionIdle < 0 {
		return fmt.Errorf("session_idle must be >= 0")
	}
	return nil
}

// MaxUploadBytes returns the upload body cap in bytes.
func (c *Config) MaxUploadBytes() int64 { return int64(c.MaxUploadMB) * 1024 * 1024 }

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + v
	}
	c.DBPath = env("DB_PATH", c.DBPath)
	c.CacheDB = env("CACHE_DB", c.CacheDB)
	c.EventsDB = env("EVENTS_DB", c.EventsDB)
	c.FilesDir = env("FILES_DIR", c.FilesDir)
	c.PublicBaseURL = env("PUBLIC_BASE_URL", c.PublicBaseURL)
	c.GCSBucket = env("GCS_BUCKET", c.GCSBucket)
	c.DatabaseURL = env("DATABASE_URL", c.DatabaseURL)
	if v, err := strconv.ParseBool(os.Getenv("MCP_ENABLED")); err == nil {
		c.MCPEnabled = v
	}
}

// loadConfig reads ECABINET_CONFIG when set, then applies env overrides.
func loadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("ECABINET_CONFIG"); path != "" {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
