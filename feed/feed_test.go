package feed

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/dbopen"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t,
		dbopen.WithSchema(Schema),
		dbopen.WithSchema(`CREATE TABLE items (id TEXT PRIMARY KEY, v INTEGER);`),
		dbopen.WithSchema(Triggers("items", "id")),
	)
}

func next(t *testing.T, ch <-chan backend.Event) backend.Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return backend.Event{}
}

func TestTriggers_RecordChanges(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := New(db, Options{})

	db.Exec(`INSERT INTO items VALUES ('a', 1)`)
	db.Exec(`UPDATE items SET v = 2 WHERE id = 'a'`)
	db.Exec(`DELETE FROM items WHERE id = 'a'`)

	events, err := f.Since(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{backend.OpInsert, backend.OpUpdate, backend.OpDelete}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d", len(events), len(want))
	}
	for i, e := range events {
		if e.Op != want[i] || e.Table != "items" || e.ID != "a" {
			t.Errorf("event %d = %+v", i, e)
		}
	}
	head, _ := f.Head(ctx)
	if head != events[2].Seq {
		t.Errorf("head = %d, want %d", head, events[2].Seq)
	}
}

// WHAT: a subscriber only sees changes made after it subscribed, in order.
func TestSubscribe_StreamsNewEvents(t *testing.T) {
	db := testDB(t)
	db.Exec(`INSERT INTO items VALUES ('old', 1)`)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := New(db, Options{Interval: 10 * time.Millisecond})
	ch, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	db.Exec(`INSERT INTO items VALUES ('b', 1)`)
	db.Exec(`UPDATE items SET v = 5 WHERE id = 'b'`)

	e1, e2 := next(t, ch), next(t, ch)
	if e1.ID != "b" || e1.Op != backend.OpInsert || e2.Op != backend.OpUpdate {
		t.Errorf("events = %+v, %+v", e1, e2)
	}
	if e2.Seq <= e1.Seq {
		t.Errorf("seq not increasing: %d, %d", e1.Seq, e2.Seq)
	}

	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			// Drain any in-flight event, then expect close.
			for range ch {
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
	if f.Stats().Delivered < 2 {
		t.Errorf("delivered = %d", f.Stats().Delivered)
	}
}

func TestSubscribe_BatchesLargeBursts(t *testing.T) {
	db := testDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := New(db, Options{Interval: 10 * time.Millisecond, Batch: 3})
	ch, err := f.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range strings.Split("a b c d e f g", " ") {
		db.Exec(`INSERT INTO items VALUES (?, 0)`, id)
	}
	var got []string
	for range 7 {
		got = append(got, next(t, ch).ID)
	}
	if strings.Join(got, "") != "abcdefg" {
		t.Errorf("order = %v", got)
	}
}

func TestPrune(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	f := New(db, Options{})

	db.Exec(`INSERT INTO items VALUES ('a', 1)`)
	n, err := f.Prune(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if events, _ := f.Since(ctx, 0, 10); len(events) != 0 {
		t.Errorf("events after prune = %d", len(events))
	}
}

func TestSubscribe_ClosedDB(t *testing.T) {
	db := testDB(t)
	db.Close()
	if _, err := New(db, Options{}).Subscribe(context.Background()); err == nil {
		t.Error("expected error on closed db")
	}
}
