package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/hazyhaar/ecabinet/backend"
)

// GCS stores blobs in a Google Cloud Storage bucket readable by allUsers.
type GCS struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
}

var _ backend.Blobs = (*GCS)(nil)

// NewGCS opens a client with application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("blobstore: gcs client: %w", err)
	}
	return &GCS{client: client, bucket: client.Bucket(bucket), name: bucket}, nil
}

// Close releases the client.
func (g *GCS) Close() error { return g.client.Close() }

// Upload writes data to object p, replacing any previous version.
func (g *GCS) Upload(ctx context.Context, p string, data []byte) (string, error) {
	w := g.bucket.Object(p).NewWriter(ctx)
	w.ContentType = contentType(p, data)
	w.CacheControl = "public, max-age=3600"

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", classify(p, err)
	}
	if err := w.Close(); err != nil {
		return "", classify(p, err)
	}
	return g.PublicURL(p), nil
}

// PublicURL returns https://storage.googleapis.com/<bucket>/<object>.
func (g *GCS) PublicURL(p string) string {
	return "https://storage.googleapis.com/" + g.name + "/" + escapePath(p)
}

func contentType(p string, data []byte) string {
	if ct := mime.TypeByExtension(path.Ext(p)); ct != "" {
		return ct
	}
	return http.DetectContentType(data)
}

// classify wraps a GCS failure in backend.ErrStorage, keeping the HTTP
// status of API errors in the message.
func classify(object string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return fmt.Errorf("%w: gcs %s: status %d: %s", backend.ErrStorage, object, gerr.Code, gerr.Message)
	}
	return fmt.Errorf("%w: gcs %s: %w", backend.ErrStorage, object, err)
}
