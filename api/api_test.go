package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/dbopen"
	"github.com/hazyhaar/ecabinet/docpipe/docpipetest"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/meeting"
	"github.com/hazyhaar/ecabinet/observability"
	"github.com/hazyhaar/ecabinet/preview"
	"github.com/hazyhaar/ecabinet/store"
)

func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()
	st, err := store.New(dbopen.OpenMemory(t), store.Config{FeedInterval: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Seed(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	orch := preview.New(preview.Config{})
	t.Cleanup(orch.Close)
	svc := meeting.New(meeting.Config{Store: st, Uploads: orch.Uploads()})

	srv := New(Config{Store: st, Preview: orch, Meetings: svc, Keepalive: time.Hour})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func do(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func multipartBody(t *testing.T, field string, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, data := range files {
		fw, err := mw.CreateFormFile(field, name)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(data)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func upload(t *testing.T, url, field string, files map[string][]byte) (*http.Response, []byte) {
	t.Helper()
	body, ct := multipartBody(t, field, files)
	req, _ := http.NewRequest("POST", url, body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set("X-User-ID", "u1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)
	return resp, data
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := do(t, "GET", ts.URL+"/health", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `"status":"ok"`) {
		t.Errorf("health = %d %s", resp.StatusCode, body)
	}
	if csp := resp.Header.Get("Content-Security-Policy"); !strings.Contains(csp, "https://docs.google.com") {
		t.Errorf("CSP = %q", csp)
	}
}

func TestDocuments(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, body := do(t, "GET", ts.URL+"/api/documents", nil)
	var docs []document.Ref
	json.Unmarshal(body, &docs)
	if resp.StatusCode != 200 || len(docs) != len(store.SeedDocuments) {
		t.Fatalf("list = %d, %d docs", resp.StatusCode, len(docs))
	}

	resp, _ = do(t, "GET", ts.URL+"/api/documents/nope", nil)
	if resp.StatusCode != 404 {
		t.Errorf("missing = %d", resp.StatusCode)
	}

	resp, body = upload(t, ts.URL+"/api/documents", "file", map[string][]byte{"Q3 plan.pdf": docpipetest.PDF("q3")})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload = %d %s", resp.StatusCode, body)
	}
	var ref document.Ref
	json.Unmarshal(body, &ref)
	if ref.OwnerID != "u1" || ref.Type != document.TypePDF || !document.IsTransient(ref.RemoteURL) {
		t.Errorf("ref = %+v", ref)
	}
	resp, _ = do(t, "GET", ts.URL+"/api/documents/"+ref.ID, nil)
	if resp.StatusCode != 200 {
		t.Errorf("get uploaded = %d", resp.StatusCode)
	}
}

func TestMeetingAttachments(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := do(t, "GET", ts.URL+"/api/meetings/m1/documents", nil)
	var docs []document.Ref
	json.Unmarshal(body, &docs)
	if len(docs) != 2 || docs[0].ID != "d1" || docs[1].ID != "d3" {
		t.Errorf("attached = %s", body)
	}

	resp, body := do(t, "PUT", ts.URL+"/api/meetings/m1/documents/d2", nil)
	if resp.StatusCode != 200 || !strings.Contains(string(body), `["d1","d3","d2"]`) {
		t.Errorf("attach = %d %s", resp.StatusCode, body)
	}
	_, body = do(t, "GET", ts.URL+"/api/meetings/m1/documents/available", nil)
	json.Unmarshal(body, &docs)
	if len(docs) != len(store.SeedDocuments)-3 {
		t.Errorf("available = %d", len(docs))
	}

	for _, path := range []string{"/api/meetings/m1/documents/zz", "/api/meetings/zz/documents/d2"} {
		if resp, _ := do(t, "PUT", ts.URL+path, nil); resp.StatusCode != 404 {
			t.Errorf("PUT %s = %d", path, resp.StatusCode)
		}
	}
}

func TestUploadBatch(t *testing.T) {
	ts, st := newTestServer(t)

	six := map[string][]byte{}
	for i := range 6 {
		six[fmt.Sprintf("f%d.pdf", i)] = []byte("x")
	}
	if resp, _ := upload(t, ts.URL+"/api/meetings/m2/uploads", "files", six); resp.StatusCode != http.StatusRequestEntityTooLarge {
		t.Errorf("6 files = %d", resp.StatusCode)
	}

	resp, body := upload(t, ts.URL+"/api/meetings/m2/uploads", "files", map[string][]byte{"a.docx": []byte("x"), "b.pdf": []byte("y")})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload = %d %s", resp.StatusCode, body)
	}
	var refs []document.Ref
	json.Unmarshal(body, &refs)
	m, _ := st.GetMeeting(context.Background(), "m2")
	if len(refs) != 2 || len(m.DocumentIDs) != 3 || !strings.HasPrefix(m.DocumentIDs[1], "doc-live-") {
		t.Errorf("refs = %+v, attached = %v", refs, m.DocumentIDs)
	}
}

func TestLiveView(t *testing.T) {
	ts, _ := newTestServer(t)

	if resp, body := do(t, "POST", ts.URL+"/api/meetings/m1/chat", map[string]string{"text": "ready"}); resp.StatusCode != 201 {
		t.Errorf("chat = %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, "POST", ts.URL+"/api/meetings/m1/chat", map[string]string{"text": " "}); resp.StatusCode != 400 {
		t.Errorf("blank chat = %d", resp.StatusCode)
	}
	if resp, _ := do(t, "PUT", ts.URL+"/api/meetings/m1/sidebar", map[string]string{"sidebar": "chat"}); resp.StatusCode != 200 {
		t.Errorf("sidebar = %d", resp.StatusCode)
	}
	if resp, _ := do(t, "PUT", ts.URL+"/api/meetings/m1/sidebar", map[string]string{"sidebar": "video"}); resp.StatusCode != 400 {
		t.Errorf("bad sidebar = %d", resp.StatusCode)
	}

	resp, body := do(t, "GET", ts.URL+"/api/meetings/m1/live", nil)
	var v meeting.View
	json.Unmarshal(body, &v)
	if resp.StatusCode != 200 || v.Sidebar != meeting.SidebarChat || len(v.Chat) != 2 || len(v.Tiles) != 3 {
		t.Errorf("live = %d %+v", resp.StatusCode, v)
	}
}

func TestPreviewSession(t *testing.T) {
	ts, _ := newTestServer(t)

	_, body := upload(t, ts.URL+"/api/documents", "file", map[string][]byte{"deck.pdf": docpipetest.PDF("one", "two")})
	var ref document.Ref
	json.Unmarshal(body, &ref)

	resp, body := do(t, "POST", ts.URL+"/api/previews", map[string]any{"document_id": ref.ID})
	var snap preview.Snapshot
	json.Unmarshal(body, &snap)
	if resp.StatusCode != 201 || snap.Strategy != preview.StrategyLocalPDF || snap.PDF == nil || snap.PDF.TotalPages != 2 {
		t.Fatalf("create = %d %s", resp.StatusCode, body)
	}
	base := ts.URL + "/api/previews/" + snap.SessionID

	_, body = do(t, "POST", base+"/page", map[string]int{"delta": 1})
	json.Unmarshal(body, &snap)
	if snap.PDF.CurrentPage != 2 {
		t.Errorf("page = %d", snap.PDF.CurrentPage)
	}
	_, body = do(t, "POST", base+"/zoom", map[string]float64{"zoom": 9})
	json.Unmarshal(body, &snap)
	if snap.PDF.Zoom != preview.MaxZoom {
		t.Errorf("zoom = %v", snap.PDF.Zoom)
	}
	if resp, _ := do(t, "POST", base+"/zoom", map[string]any{}); resp.StatusCode != 400 {
		t.Errorf("empty zoom = %d", resp.StatusCode)
	}
	_, body = do(t, "POST", base+"/fit", map[string]float64{"width": 316, "height": 2000})
	json.Unmarshal(body, &snap)
	if snap.PDF.Zoom != 0.5 {
		t.Errorf("fit zoom = %v", snap.PDF.Zoom)
	}
	if resp, _ := do(t, "PUT", base+"/scroll", map[string]float64{"x": 0, "y": 120}); resp.StatusCode != 200 {
		t.Errorf("scroll = %d", resp.StatusCode)
	}

	resp, body = do(t, "GET", base+"/render", nil)
	if resp.StatusCode != 200 || resp.Header.Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(body, []byte("%PDF")) {
		t.Errorf("render = %d %s", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if resp.Header.Get("X-Page") != "2" || resp.Header.Get("X-Width") != "306" {
		t.Errorf("render headers = %v", resp.Header)
	}

	// WHAT: paging a non-PDF preview conflicts.
	_, body = do(t, "POST", base+"/select", map[string]any{"document_id": "d3"})
	json.Unmarshal(body, &snap)
	if snap.Strategy != preview.StrategyLocalDocx || !snap.Demo {
		t.Errorf("demo select = %s", body)
	}
	if resp, _ := do(t, "POST", base+"/page", map[string]int{"delta": 1}); resp.StatusCode != 409 {
		t.Errorf("page on docx = %d", resp.StatusCode)
	}

	if resp, _ := do(t, "DELETE", base, nil); resp.StatusCode != 204 {
		t.Errorf("delete = %d", resp.StatusCode)
	}
	if resp, _ := do(t, "GET", base, nil); resp.StatusCode != 404 {
		t.Errorf("get closed = %d", resp.StatusCode)
	}
}

func TestDocumentActivity(t *testing.T) {
	st, err := store.New(dbopen.OpenMemory(t), store.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.Seed(context.Background(), st); err != nil {
		t.Fatal(err)
	}
	events := observability.NewEventLogger(dbopen.OpenMemory(t, dbopen.WithSchema(observability.Schema)))
	orch := preview.New(preview.Config{Events: events})
	t.Cleanup(orch.Close)
	svc := meeting.New(meeting.Config{Store: st, Uploads: orch.Uploads(), Events: events})
	ts := httptest.NewServer(New(Config{Store: st, Preview: orch, Meetings: svc, Activity: events}).Handler())
	t.Cleanup(ts.Close)

	_, body := upload(t, ts.URL+"/api/documents", "file", map[string][]byte{"deck.pdf": docpipetest.PDF("one")})
	var ref document.Ref
	json.Unmarshal(body, &ref)
	for range 2 {
		if resp, body := do(t, "POST", ts.URL+"/api/previews", map[string]any{"document_id": ref.ID}); resp.StatusCode != 201 {
			t.Fatalf("create preview = %d %s", resp.StatusCode, body)
		}
	}

	resp, body := do(t, "GET", ts.URL+"/api/documents/"+ref.ID+"/activity", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("activity = %d %s", resp.StatusCode, body)
	}
	var got struct {
		DocumentID string                      `json:"document_id"`
		Outcomes   []observability.Outcome     `json:"outcomes"`
		Events     []observability.StoredEvent `json:"events"`
	}
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Outcomes) != 1 || got.Outcomes[0].Strategy != string(preview.StrategyLocalPDF) || got.Outcomes[0].Resolutions != 2 {
		t.Errorf("outcomes = %+v", got.Outcomes)
	}
	// WHAT: two resolutions plus the upload itself.
	if len(got.Events) != 3 {
		t.Errorf("events = %d, want 3", len(got.Events))
	}

	if resp, _ := do(t, "GET", ts.URL+"/api/documents/nope/activity", nil); resp.StatusCode != 404 {
		t.Errorf("unknown document activity = %d", resp.StatusCode)
	}
}

func TestPreviewSession_ErrorState(t *testing.T) {
	ts, st := newTestServer(t)
	st.InsertDocument(context.Background(), document.Ref{ID: "lost", Name: "lost.pdf"})

	resp, body := do(t, "POST", ts.URL+"/api/previews", map[string]any{"document_id": "lost"})
	var snap preview.Snapshot
	json.Unmarshal(body, &snap)
	if resp.StatusCode != 201 || snap.State != preview.StateError || snap.Strategy != preview.StrategyNone || snap.Error == "" {
		t.Errorf("error snapshot = %d %s", resp.StatusCode, body)
	}
	if resp, _ := do(t, "POST", ts.URL+"/api/previews", map[string]any{"document_id": "zz"}); resp.StatusCode != 404 {
		t.Errorf("unknown document = %d", resp.StatusCode)
	}

	resp, body = do(t, "POST", ts.URL+"/api/previews", map[string]any{"document_id": "d1", "async": true})
	json.Unmarshal(body, &snap)
	_, body = do(t, "GET", ts.URL+"/api/previews/"+snap.SessionID+"?wait=1", nil)
	json.Unmarshal(body, &snap)
	if snap.State == preview.StateLoading || !snap.Demo {
		t.Errorf("awaited = %s", body)
	}
}

func TestEvents_SSE(t *testing.T) {
	ts, st := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, "GET", ts.URL+"/api/events", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	st.InsertDocument(context.Background(), document.Ref{ID: "fresh", Name: "fresh.pdf"})

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed")
			}
			if data, found := strings.CutPrefix(line, "data: "); found {
				var ev map[string]any
				json.Unmarshal([]byte(data), &ev)
				if ev["type"] != "com.ecabinet.documents.insert" || ev["subject"] != "fresh" || ev["specversion"] != "1.0" {
					t.Errorf("event = %s", data)
				}
				return
			}
		case <-deadline:
			t.Fatal("no event")
		}
	}
}

func TestChangeEvent(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	ev, err := ChangeEvent(backend.Event{Seq: 42, Table: "meetings", Op: backend.OpUpdate, ID: "m1"}, now)
	if err != nil {
		t.Fatal(err)
	}
	if ev.ID() != "42" || ev.Type() != "com.ecabinet.meetings.update" || ev.Source() != "/ecabinet/meetings" || ev.Subject() != "m1" {
		t.Errorf("event = %s", ev)
	}
	var data backend.Event
	if err := ev.DataAs(&data); err != nil || data.ID != "m1" {
		t.Errorf("data = %+v, %v", data, err)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", backend.ErrNotFound), 404},
		{errSessionNotFound, 404},
		{preview.ErrStale, 409},
		{preview.ErrNotPaged, 409},
		{meeting.ErrTooManyFiles, 413},
		{&http.MaxBytesError{Limit: 1}, 413},
		{errors.Join(errBadRequest, errors.New("eof")), 400},
		{meeting.ErrInvalidSidebar, 400},
		{fmt.Errorf("select: %w", context.Canceled), statusClientClosed},
		{context.DeadlineExceeded, 504},
		{errors.New("boom"), 500},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
