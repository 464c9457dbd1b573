package blobstore

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/ecabinet/backend"
)

// FS stores blobs under Dir and publishes them under BaseURL.
type FS struct {
	Dir     string
	BaseURL string // e.g. "http://localhost:8080/files"
}

var _ backend.Blobs = (*FS)(nil)

// NewFS creates dir if needed.
func NewFS(dir, baseURL string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: mkdir %s: %w", dir, err)
	}
	return &FS{Dir: dir, BaseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

// Upload writes data atomically at p and returns its public URL.
func (f *FS) Upload(ctx context.Context, p string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", backend.ErrStorage, err)
	}
	dst, err := SafePath(f.Dir, p)
	if err != nil {
		return "", fmt.Errorf("%w: %w", backend.ErrStorage, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("%w: mkdir: %w", backend.ErrStorage, err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("%w: create: %w", backend.ErrStorage, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("%w: write: %w", backend.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%w: close: %w", backend.ErrStorage, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", fmt.Errorf("%w: rename: %w", backend.ErrStorage, err)
	}
	return f.PublicURL(p), nil
}

// PublicURL returns the URL the API serves p at.
func (f *FS) PublicURL(p string) string {
	return f.BaseURL + "/" + escapePath(p)
}

// Handler serves the stored files read-only. Mount it with the public
// prefix stripped.
func (f *FS) Handler() http.Handler {
	return http.FileServer(noDirFS{http.Dir(f.Dir)})
}

// noDirFS hides directory listings.
type noDirFS struct{ fs http.FileSystem }

func (n noDirFS) Open(name string) (http.File, error) {
	file, err := n.fs.Open(name)
	if err != nil {
		return nil, err
	}
	st, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if st.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
