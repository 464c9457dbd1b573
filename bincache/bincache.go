// CLAUDE:SUMMARY Durable local key/value store of document binaries in SQLite; best-effort, LRU by byte budget plus optional TTL.
// Package bincache keeps document binaries on local disk so previews keep
// working offline and after a restart. It is best-effort: Put never fails
// and Get reports any failure as a miss. Entries are keyed by document id,
// last write wins, and nothing here is ever synchronized to the backend.
//
// Usage:
//
//	db, _ := dbopen.Open("data/cache.db", dbopen.WithMkdirAll())
//	cache, err := bincache.New(db, bincache.Config{MaxBytes: 256 << 20})
//	cache.Put(ctx, "d9", data)
//	if b := cache.Get(ctx, "d9"); b != nil { ... }
package bincache

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hazyhaar/ecabinet/dbopen"
)

// Schema creates the binary_cache table. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS binary_cache (
	id          TEXT PRIMARY KEY,
	data        BLOB NOT NULL,
	size        INTEGER NOT NULL,
	digest      TEXT NOT NULL,
	stored_at   INTEGER NOT NULL,
	accessed_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_binary_cache_accessed ON binary_cache(accessed_at);
`

// Config configures a Cache.
type Config struct {
	// MaxBytes is the total byte budget. Least recently accessed entries are
	// evicted past it (default: 512 MiB).
	MaxBytes int64 `json:"max_bytes" yaml:"max_bytes"`

	// MaxAge expires entries stored longer ago than this. 0 disables expiry.
	MaxAge time.Duration `json:"max_age" yaml:"max_age"`

	Logger *slog.Logger `json:"-" yaml:"-"`

	// Now is the clock (default: time.Now). Tests override it.
	Now func() time.Time `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.MaxBytes <= 0 {
		c.MaxBytes = 512 << 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Stats summarizes the cache contents.
type Stats struct {
	Entries int   `json:"entries"`
	Bytes   int64 `json:"bytes"`
}

// Cache is a SQLite-backed binary store. Safe for concurrent use.
type Cache struct {
	db     *sql.DB
	cfg    Config
	logger *slog.Logger
}

// New applies the schema on db and returns a Cache.
func New(db *sql.DB, cfg Config) (*Cache, error) {
	cfg.defaults()
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("bincache: schema: %w", err)
	}
	return &Cache{db: db, cfg: cfg, logger: cfg.Logger}, nil
}

// Digest returns the hex BLAKE2b-256 digest of data.
func Digest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Put stores data under id, replacing any previous entry. Failures are
// logged and swallowed. Binaries larger than the byte budget are not stored.
func (c *Cache) Put(ctx context.Context, id string, data []byte) {
	if id == "" || len(data) == 0 {
		return
	}
	size := int64(len(data))
	if size > c.cfg.MaxBytes {
		c.logger.Warn("bincache: binary exceeds budget, not cached",
			"id", id, "size", size, "max_bytes", c.cfg.MaxBytes)
		return
	}

	now := c.cfg.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, c.db, `
		INSERT INTO binary_cache (id, data, size, digest, stored_at, accessed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data, size = excluded.size, digest = excluded.digest,
			stored_at = excluded.stored_at, accessed_at = excluded.accessed_at`,
		id, data, size, Digest(data), now, now)
	if err != nil {
		c.logger.Warn("bincache: put failed", "id", id, "size", size, "error", err)
		return
	}

	if _, err := c.evict(ctx, id); err != nil {
		c.logger.Warn("bincache: eviction failed", "error", err)
	}
}

// Get returns the binary stored under id, or nil when absent, expired or
// unreadable. A hit refreshes the entry's access time.
func (c *Cache) Get(ctx context.Context, id string) []byte {
	var (
		data     []byte
		digest   string
		storedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT data, digest, stored_at FROM binary_cache WHERE id = ?`, id,
	).Scan(&data, &digest, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		c.logger.Warn("bincache: get failed", "id", id, "error", err)
		return nil
	}

	now := c.cfg.Now()
	if c.expired(storedAt, now) {
		if err := c.Delete(ctx, id); err != nil {
			c.logger.Debug("bincache: drop expired entry", "id", id, "error", err)
		}
		return nil
	}
	if Digest(data) != digest {
		c.logger.Warn("bincache: digest mismatch, dropping entry", "id", id)
		if err := c.Delete(ctx, id); err != nil {
			c.logger.Debug("bincache: drop corrupt entry", "id", id, "error", err)
		}
		return nil
	}

	if _, err := c.db.ExecContext(ctx,
		`UPDATE binary_cache SET accessed_at = ? WHERE id = ?`, now.UnixMilli(), id); err != nil {
		c.logger.Debug("bincache: touch failed", "id", id, "error", err)
	}
	return data
}

// Delete removes the entry for id. Deleting a missing id is not an error.
func (c *Cache) Delete(ctx context.Context, id string) error {
	if _, err := dbopen.Exec(ctx, c.db, `DELETE FROM binary_cache WHERE id = ?`, id); err != nil {
		return fmt.Errorf("bincache: delete %s: %w", id, err)
	}
	return nil
}

// Stats returns the entry count and total stored bytes.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM binary_cache`,
	).Scan(&s.Entries, &s.Bytes)
	if err != nil {
		return Stats{}, fmt.Errorf("bincache: stats: %w", err)
	}
	return s, nil
}

// Prune drops expired entries and evicts down to the byte budget.
// It returns the number of entries removed.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	return c.evict(ctx, "")
}

func (c *Cache) expired(storedAt int64, now time.Time) bool {
	return c.cfg.MaxAge > 0 && now.Sub(time.UnixMilli(storedAt)) > c.cfg.MaxAge
}

// evict removes expired entries, then least recently accessed ones until the
// total fits MaxBytes. keep is never evicted for size.
func (c *Cache) evict(ctx context.Context, keep string) (int, error) {
	removed := 0
	err := dbopen.RunTx(ctx, c.db, func(tx *sql.Tx) error {
		removed = 0
		if c.cfg.MaxAge > 0 {
			cutoff := c.cfg.Now().Add(-c.cfg.MaxAge).UnixMilli()
			res, err := tx.ExecContext(ctx, `DELETE FROM binary_cache WHERE stored_at < ?`, cutoff)
			if err != nil {
				return fmt.Errorf("expire: %w", err)
			}
			n, _ := res.RowsAffected()
			removed += int(n)
		}

		var total int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(size), 0) FROM binary_cache`).Scan(&total); err != nil {
			return fmt.Errorf("total: %w", err)
		}
		if total <= c.cfg.MaxBytes {
			return nil
		}

		rows, err := tx.QueryContext(ctx,
			`SELECT id, size FROM binary_cache WHERE id != ? ORDER BY accessed_at ASC, id ASC`, keep)
		if err != nil {
			return fmt.Errorf("scan lru: %w", err)
		}
		var victims []string
		for rows.Next() && total > c.cfg.MaxBytes {
			var (
				id   string
				size int64
			)
			if err := rows.Scan(&id, &size); err != nil {
				rows.Close()
				return fmt.Errorf("scan lru: %w", err)
			}
			victims = append(victims, id)
			total -= size
		}
		rows.Close()

		for _, id := range victims {
			if _, err := tx.ExecContext(ctx, `DELETE FROM binary_cache WHERE id = ?`, id); err != nil {
				return fmt.Errorf("evict %s: %w", id, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("bincache: evict: %w", err)
	}
	if removed > 0 {
		c.logger.Debug("bincache: evicted", "entries", removed)
	}
	return removed, nil
}
