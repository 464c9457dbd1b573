// CLAUDE:SUMMARY Opens the eCabinet SQLite files (app store, binary cache, event log) with per-connection DSN pragmas and inline schema.
// Package dbopen opens the SQLite databases used by eCabinet: the document and
// meeting store, the local binary cache and the business event log.
//
// Pragmas travel in the DSN as _pragma parameters, so every pooled
// connection gets them, not only the first one:
//
//	busy_timeout = 10000
//	foreign_keys = ON
//	journal_mode = WAL
//	synchronous  = NORMAL
//
// Usage:
//
//	db, err := dbopen.Open("data/cache.db", dbopen.WithMkdirAll(), dbopen.ForCache())
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(schema))
package dbopen

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

type config struct {
	busyTimeout int
	cacheSize   int
	synchronous string
	mkdirAll    bool
	schemas     []string
	ping        bool
	maxConns    int
}

func defaults() config {
	return config{
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		ping:        true,
	}
}

// Option customises Open.
type Option func(*config)

// WithBusyTimeout sets busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithCacheSize sets cache_size. Negative values are KiB.
func WithCacheSize(pages int) Option { return func(c *config) { c.cacheSize = pages } }

// WithSynchronous sets the synchronous mode. Default: "NORMAL".
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// ForCache tunes a database whose contents can be re-fetched: a 64 MiB page
// cache and no fsync on commit.
func ForCache() Option {
	return func(c *config) {
		c.cacheSize = -64_000
		c.synchronous = "OFF"
	}
}

// WithMkdirAll creates parent directories of the database path before opening.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues inline SQL executed once the database is open.
// Schemas must be idempotent (CREATE ... IF NOT EXISTS).
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// WithoutPing skips the connectivity check after opening.
func WithoutPing() Option { return func(c *config) { c.ping = false } }

// Open opens the SQLite database at path, applying pragmas and schemas.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := defaults()
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != memoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(path, cfg))
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if cfg.maxConns > 0 {
		db.SetMaxOpenConns(cfg.maxConns)
	}
	if cfg.ping {
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: ping %s: %w", path, err)
		}
	}
	for i, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			db.Close()
			return nil, fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	return db, nil
}

// OpenMemory opens an in-memory database closed by t.Cleanup. It is limited
// to one connection: every connection to ":memory:" is a separate database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	opts = append(opts, func(c *config) { c.maxConns = 1 })
	db, err := Open(memoryPath, opts...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// dsn builds the driver connection string for path.
func dsn(path string, cfg config) string {
	q := url.Values{}
	pragma := func(name string, v any) { q.Add("_pragma", fmt.Sprintf("%s(%v)", name, v)) }
	pragma("busy_timeout", cfg.busyTimeout)
	pragma("foreign_keys", 1)
	pragma("journal_mode", "WAL")
	pragma("synchronous", cfg.synchronous)
	if cfg.cacheSize != 0 {
		pragma("cache_size", cfg.cacheSize)
	}

	name := path
	if path != memoryPath {
		name = uriEscaper.Replace(path)
	}
	return "file:" + name + "?" + q.Encode()
}

var uriEscaper = strings.NewReplacer("%", "%25", "?", "%3f", "#", "%23")
