package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/ecabinet/dbopen"
)

func TestOpen_Pragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		t.Fatal(err)
	}
	// :memory: reports "memory" instead of "wal".
	if journalMode != "wal" && journalMode != "memory" {
		t.Fatalf("journal_mode = %q, want wal or memory", journalMode)
	}

	var fk int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if fk != 1 {
		t.Fatalf("foreign_keys = %d, want 1", fk)
	}

	var busyTimeout int
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busyTimeout); err != nil {
		t.Fatal(err)
	}
	if busyTimeout != 10_000 {
		t.Fatalf("busy_timeout = %d, want 10000", busyTimeout)
	}
}

func TestForCache(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.ForCache())

	var cs, sync int
	if err := db.QueryRow("PRAGMA cache_size").Scan(&cs); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if cs != -64000 || sync != 0 {
		t.Fatalf("cache_size = %d synchronous = %d, want -64000 and 0 (OFF)", cs, sync)
	}
}

// WHAT: pragmas reach every pooled connection, not only the first.
// WHY: busy_timeout and foreign_keys are per-connection settings.
func TestOpen_PragmasOnEveryConnection(t *testing.T) {
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "app.db"), dbopen.WithBusyTimeout(4321))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	ctx := context.Background()
	var conns []*sql.Conn
	for range 3 {
		c, err := db.Conn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		conns = append(conns, c)
	}
	for i, c := range conns {
		var bt, fk int
		if err := c.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&bt); err != nil {
			t.Fatal(err)
		}
		if err := c.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
			t.Fatal(err)
		}
		if bt != 4321 || fk != 1 {
			t.Errorf("conn %d: busy_timeout = %d foreign_keys = %d", i, bt, fk)
		}
		c.Close()
	}
}

func TestOpen_PathWithQuestionMark(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "what?#")
	db, err := dbopen.Open(filepath.Join(dir, "x.db"), dbopen.WithMkdirAll())
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Join(dir, "x.db")); err != nil {
		t.Fatalf("database not created at escaped path: %v", err)
	}
}

func TestWithSchema(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE blobs (id TEXT PRIMARY KEY, data BLOB);`))

	if _, err := db.Exec(`INSERT INTO blobs (id, data) VALUES ('d1', x'00ff')`); err != nil {
		t.Fatalf("insert into schema-created table: %v", err)
	}
	var data []byte
	if err := db.QueryRow(`SELECT data FROM blobs WHERE id = 'd1'`).Scan(&data); err != nil {
		t.Fatal(err)
	}
	if len(data) != 2 || data[1] != 0xff {
		t.Fatalf("data = %x", data)
	}
}

func TestWithMkdirAll(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "deep", "cache.db")

	db, err := dbopen.Open(dbPath, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open with mkdirall: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(filepath.Dir(dbPath)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
}

// lockedDB opens a file database with no busy wait and holds its write
// lock on a dedicated connection until release is called.
func lockedDB(t *testing.T) (db *sql.DB, release func()) {
	t.Helper()
	db, err := dbopen.Open(filepath.Join(t.TempDir(), "busy.db"),
		dbopen.WithBusyTimeout(0),
		dbopen.WithSchema(`CREATE TABLE IF NOT EXISTS docs (id TEXT PRIMARY KEY)`))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	holder, err := db.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := holder.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		t.Fatal(err)
	}
	var once sync.Once
	release = func() {
		once.Do(func() {
			holder.ExecContext(ctx, "ROLLBACK")
			holder.Close()
		})
	}
	t.Cleanup(release)
	return db, release
}

func TestIsBusy_DriverError(t *testing.T) {
	db, _ := lockedDB(t)

	_, err := db.Exec(`INSERT INTO docs (id) VALUES ('d1')`)
	if err == nil {
		t.Fatal("expected SQLITE_BUSY while another connection holds the write lock")
	}
	if !dbopen.IsBusy(err) {
		t.Fatalf("IsBusy(%v) = false", err)
	}
	if !dbopen.IsBusy(fmt.Errorf("store: insert: %w", err)) {
		t.Fatal("IsBusy must see through wrapping")
	}
}

func TestExec_RetriesUntilUnlocked(t *testing.T) {
	db, release := lockedDB(t)
	time.AfterFunc(150*time.Millisecond, release)

	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO docs (id) VALUES (?)`, "d1"); err != nil {
		t.Fatalf("Exec should succeed once the lock is released: %v", err)
	}
}

func TestExec_GivesUp(t *testing.T) {
	db, _ := lockedDB(t)

	_, err := dbopen.Exec(context.Background(), db, `INSERT INTO docs (id) VALUES (?)`, "d1")
	if !dbopen.IsBusy(err) {
		t.Fatalf("Exec error = %v, want BUSY after retries", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("some other error"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("database is locked"), true},
		{errors.New("database table is locked"), true},
		{errors.New("prefix: SQLITE_BUSY (5)"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestRunTx(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE tx_test (id TEXT PRIMARY KEY, val TEXT)`))

	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO tx_test (id, val) VALUES ('1', 'hello')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	var val string
	if err := db.QueryRow(`SELECT val FROM tx_test WHERE id = '1'`).Scan(&val); err != nil {
		t.Fatal(err)
	}
	if val != "hello" {
		t.Fatalf("val = %q, want hello", val)
	}
}

func TestRunTxRollback(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE tx_rb_test (id TEXT PRIMARY KEY)`))

	sentinel := errors.New("rollback me")
	err := dbopen.RunTx(context.Background(), db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO tx_rb_test (id) VALUES ('1')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var count int
	db.QueryRow(`SELECT COUNT(*) FROM tx_rb_test`).Scan(&count)
	if count != 0 {
		t.Fatalf("count = %d, want 0 after rollback", count)
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE exec_test (id TEXT PRIMARY KEY)`))

	if _, err := dbopen.Exec(context.Background(), db, `INSERT INTO exec_test (id) VALUES (?)`, "1"); err != nil {
		t.Fatalf("Exec: %v", err)
	}
	var count int
	db.QueryRow(`SELECT COUNT(*) FROM exec_test`).Scan(&count)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestRunTxContextCancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
