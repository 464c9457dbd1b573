// CLAUDE:SUMMARY Change feed over a trigger-fed change_log table: poll MAX(seq), read new rows, stream backend.Event to subscribers.
// CLAUDE:DEPENDS backend, dbopen
// Package feed turns the SQLite change_log table into a stream of
// backend.Event. Triggers on the watched tables append rows; each
// subscriber polls the head sequence and reads what it has not seen yet.
//
// Typical usage:
//
//	f := feed.New(db, feed.Options{Interval: 500 * time.Millisecond})
//	events, err := f.Subscribe(ctx)
//	for ev := range events { ... }
package feed

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/dbopen"
)

// Schema creates the change_log table. Apply it before any Triggers.
const Schema = `
CREATE TABLE IF NOT EXISTS change_log (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	tbl        TEXT NOT NULL,
	op         TEXT NOT NULL,
	row_id     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_change_log_created ON change_log(created_at);
`

// Triggers returns the DDL that records insert, update and delete on table
// into change_log. table and its key column are trusted identifiers.
func Triggers(table, key string) string {
	var b strings.Builder
	for _, op := range []struct{ name, when, row string }{
		{backend.OpInsert, "INSERT", "NEW"},
		{backend.OpUpdate, "UPDATE", "NEW"},
		{backend.OpDelete, "DELETE", "OLD"},
	} {
		fmt.Fprintf(&b, `
CREATE TRIGGER IF NOT EXISTS trg_%[1]s_%[2]s AFTER %[3]s ON %[1]s
BEGIN
	INSERT INTO change_log (tbl, op, row_id, created_at)
	VALUES ('%[1]s', '%[2]s', %[4]s.%[5]s, CAST(strftime('%%s','now') AS INTEGER) * 1000);
END;
`, table, op.name, op.when, op.row, key)
	}
	return b.String()
}

// Options tunes the feed.
type Options struct {
	// Interval is the polling frequency. Default: 500ms.
	Interval time.Duration
	// Buffer is the per-subscriber channel capacity. Default: 64.
	Buffer int
	// Batch caps the rows read per poll. Default: 256.
	Batch  int
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = 500 * time.Millisecond
	}
	if o.Buffer <= 0 {
		o.Buffer = 64
	}
	if o.Batch <= 0 {
		o.Batch = 256
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Feed reads change_log. It is safe for concurrent use.
type Feed struct {
	db   *sql.DB
	opts Options

	checks    atomic.Int64
	delivered atomic.Int64
	errors    atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks    int64 `json:"checks"`
	Delivered int64 `json:"delivered"`
	Errors    int64 `json:"errors"`
}

// New creates a Feed on a database where Schema has been applied.
func New(db *sql.DB, opts Options) *Feed {
	opts.defaults()
	return &Feed{db: db, opts: opts}
}

// Stats returns the current counters.
func (f *Feed) Stats() Stats {
	return Stats{
		Checks:    f.checks.Load(),
		Delivered: f.delivered.Load(),
		Errors:    f.errors.Load(),
	}
}

// Head returns the highest sequence number in change_log, 0 when empty.
func (f *Feed) Head(ctx context.Context) (int64, error) {
	var v int64
	err := f.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM change_log").Scan(&v)
	return v, err
}

// Since returns up to limit events with seq > after, oldest first.
func (f *Feed) Since(ctx context.Context, after int64, limit int) ([]backend.Event, error) {
	rows, err := f.db.QueryContext(ctx, `
		SELECT seq, tbl, op, row_id FROM change_log
		WHERE seq > ? ORDER BY seq LIMIT ?`, after, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []backend.Event
	for rows.Next() {
		var e backend.Event
		if err := rows.Scan(&e.Seq, &e.Table, &e.Op, &e.ID); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Subscribe streams events recorded after the call until ctx is cancelled,
// then closes the channel.
func (f *Feed) Subscribe(ctx context.Context) (<-chan backend.Event, error) {
	cursor, err := f.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("feed: read head: %w", err)
	}
	ch := make(chan backend.Event, f.opts.Buffer)
	go f.poll(ctx, cursor, ch)
	return ch, nil
}

func (f *Feed) poll(ctx context.Context, cursor int64, ch chan<- backend.Event) {
	defer close(ch)
	log := f.opts.Logger

	ticker := time.NewTicker(f.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		f.checks.Add(1)
		head, err := f.Head(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.errors.Add(1)
			log.Warn("feed: head check failed", "error", err)
			continue
		}
		for cursor < head {
			events, err := f.Since(ctx, cursor, f.opts.Batch)
			if err != nil {
				if ctx.Err() == nil {
					f.errors.Add(1)
					log.Warn("feed: read failed", "error", err, "after", cursor)
				}
				break
			}
			if len(events) == 0 {
				// Rows pruned underneath us.
				cursor = head
				break
			}
			for _, e := range events {
				select {
				case ch <- e:
					f.delivered.Add(1)
				case <-ctx.Done():
					return
				}
				cursor = e.Seq
			}
		}
	}
}

// Prune deletes change_log rows older than before. Subscribers that lag
// behind pruned rows skip them.
func (f *Feed) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := dbopen.Exec(ctx, f.db, "DELETE FROM change_log WHERE created_at < ?", before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("feed: prune: %w", err)
	}
	return res.RowsAffected()
}
