package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"google.golang.org/api/googleapi"

	"github.com/hazyhaar/ecabinet/backend"
)

func TestObjectPath(t *testing.T) {
	tests := []struct{ id, name, want string }{
		{"doc-1", "report.pdf", "documents/doc-1/report.pdf"},
		{"doc-1", "../../etc/passwd", "documents/doc-1/passwd"},
		{"doc-1", `C:\Users\me\plan.docx`, "documents/doc-1/plan.docx"},
		{"doc-1", "", "documents/doc-1/file"},
	}
	for _, tt := range tests {
		if got := ObjectPath(tt.id, tt.name); got != tt.want {
			t.Errorf("ObjectPath(%q, %q) = %q, want %q", tt.id, tt.name, got, tt.want)
		}
	}
}

func TestSafePath(t *testing.T) {
	base := t.TempDir()
	if p, err := SafePath(base, "documents/a/b.pdf"); err != nil || p != filepath.Join(base, "documents/a/b.pdf") {
		t.Errorf("SafePath = %q, %v", p, err)
	}
	for _, bad := range []string{"../x", "a/../../x", "", "/"} {
		if _, err := SafePath(base, bad); !errors.Is(err, ErrPathTraversal) {
			t.Errorf("SafePath(%q) err = %v", bad, err)
		}
	}
}

func TestFS_UploadAndServe(t *testing.T) {
	dir := t.TempDir()
	fs, err := NewFS(dir, "http://files.test/files/")
	if err != nil {
		t.Fatal(err)
	}

	p := ObjectPath("d 1", "minutes.pdf")
	u, err := fs.Upload(context.Background(), p, []byte("%PDF-1.4"))
	if err != nil {
		t.Fatal(err)
	}
	if u != "http://files.test/files/documents/d%201/minutes.pdf" {
		t.Errorf("url = %q", u)
	}
	data, err := os.ReadFile(filepath.Join(dir, "documents", "d 1", "minutes.pdf"))
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("stored = %q, %v", data, err)
	}

	srv := httptest.NewServer(http.StripPrefix("/files", fs.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/documents/d%201/minutes.pdf")
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != "%PDF-1.4" {
		t.Errorf("GET = %d %q", resp.StatusCode, body)
	}

	// WHAT: directories are not listed.
	resp, err = http.Get(srv.URL + "/files/documents/")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("dir listing status = %d", resp.StatusCode)
	}
}

func TestFS_UploadErrorsWrapStorage(t *testing.T) {
	fs, err := NewFS(t.TempDir(), "http://x/files")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Upload(context.Background(), "../escape", []byte("x")); !errors.Is(err, backend.ErrStorage) {
		t.Errorf("traversal err = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Upload(ctx, "a.pdf", []byte("x")); !errors.Is(err, backend.ErrStorage) {
		t.Errorf("cancelled err = %v", err)
	}
}

func TestGCS_PublicURL(t *testing.T) {
	g := &GCS{name: "cabinet-docs"}
	got := g.PublicURL("documents/doc-live-1/Budget Q3.xlsx")
	want := "https://storage.googleapis.com/cabinet-docs/documents/doc-live-1/Budget%20Q3.xlsx"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

func TestGCS_Classify(t *testing.T) {
	err := classify("a.pdf", fmt.Errorf("upload: %w", &googleapi.Error{Code: 403, Message: "forbidden"}))
	if !errors.Is(err, backend.ErrStorage) {
		t.Fatalf("err = %v", err)
	}
	if got := err.Error(); got != "backend: storage error: gcs a.pdf: status 403: forbidden" {
		t.Errorf("message = %q", got)
	}

	plain := errors.New("dial tcp: timeout")
	err = classify("a.pdf", plain)
	if !errors.Is(err, backend.ErrStorage) || !errors.Is(err, plain) {
		t.Errorf("err = %v", err)
	}
}

func TestContentType(t *testing.T) {
	if got := contentType("a.pdf", nil); got != "application/pdf" {
		t.Errorf("pdf = %q", got)
	}
	if got := contentType("noext", []byte("hello")); got != "text/plain; charset=utf-8" {
		t.Errorf("sniffed = %q", got)
	}
}
