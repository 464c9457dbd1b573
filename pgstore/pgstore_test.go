package pgstore

import (
	"context"
	"errors"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/idgen"
)

// testStore connects to DATABASE_URL; the integration tests skip without it.
func testStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s, err := Connect(ctx, url, Config{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestDecodeEvent(t *testing.T) {
	e, err := decodeEvent(`{"seq":7,"table":"meetings","op":"update","id":"m1"}`)
	if err != nil {
		t.Fatal(err)
	}
	if e != (backend.Event{Seq: 7, Table: "meetings", Op: backend.OpUpdate, ID: "m1"}) {
		t.Errorf("event = %+v", e)
	}
	for _, bad := range []string{`not json`, `{"seq":1}`, `{"table":"documents"}`} {
		if _, err := decodeEvent(bad); err == nil {
			t.Errorf("decodeEvent(%q) succeeded", bad)
		}
	}
}

func TestStore_Roundtrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	docID, meetingID := "t-"+idgen.New(), "t-"+idgen.New()
	t.Cleanup(func() {
		s.DB.Exec(context.Background(), `DELETE FROM documents WHERE id = $1`, docID)
		s.DB.Exec(context.Background(), `DELETE FROM meetings WHERE id = $1`, meetingID)
	})

	if err := s.InsertDocument(ctx, document.Ref{ID: docID, Name: "x.pdf", RemoteURL: "https://store/x.pdf"}); err != nil {
		t.Fatal(err)
	}
	ref, err := s.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if ref.Type != document.TypePDF || ref.Origin != document.OriginRemote {
		t.Errorf("ref = %+v", ref)
	}

	if err := s.InsertMeeting(ctx, backend.Meeting{ID: meetingID, Title: "t"}); err != nil {
		t.Fatal(err)
	}
	m, _ := s.GetMeeting(ctx, meetingID)
	m.DocumentIDs = append(m.DocumentIDs, docID)
	if err := s.UpdateMeeting(ctx, m); err != nil {
		t.Fatal(err)
	}
	m, _ = s.GetMeeting(ctx, meetingID)
	if !slices.Equal(m.DocumentIDs, []string{docID}) {
		t.Errorf("document ids = %v", m.DocumentIDs)
	}

	if _, err := s.GetDocument(ctx, "t-missing"); !errors.Is(err, backend.ErrNotFound) {
		t.Errorf("missing: %v", err)
	}
}

func TestStore_Subscribe(t *testing.T) {
	s := testStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	id := "t-" + idgen.New()
	t.Cleanup(func() { s.DB.Exec(context.Background(), `DELETE FROM documents WHERE id = $1`, id) })

	ch, err := s.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.InsertDocument(ctx, document.Ref{ID: id, Name: "n.docx"}); err != nil {
		t.Fatal(err)
	}
	deadline := time.After(10 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.ID == id {
				if e.Table != "documents" || e.Op != backend.OpInsert || e.Seq == 0 {
					t.Errorf("event = %+v", e)
				}
				return
			}
		case <-deadline:
			t.Fatal("no notification")
		}
	}
}
