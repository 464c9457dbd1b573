// CLAUDE:SUMMARY Object storage for uploaded documents: local directory served under /files/ and Google Cloud Storage; failures wrap backend.ErrStorage.
// CLAUDE:DEPENDS backend
// Package blobstore implements backend.Blobs. FS writes under a local
// directory that the API serves read-only; GCS writes to a public bucket.
package blobstore

import (
	"errors"
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// ErrPathTraversal is returned when an object path escapes the store root.
var ErrPathTraversal = errors.New("blobstore: path traversal detected")

// ObjectPath builds the object path for a document upload:
// documents/<id>/<base name of filename>.
func ObjectPath(id, filename string) string {
	name := path.Base(strings.ReplaceAll(filename, `\`, "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	return "documents/" + id + "/" + name
}

// SafePath joins base and a user-supplied relative path, rejecting any
// result outside base.
func SafePath(base, p string) (string, error) {
	if p == "" || strings.Contains(p, "..") {
		return "", ErrPathTraversal
	}
	base = filepath.Clean(base)
	cleaned := filepath.Join(base, filepath.Clean("/"+p))
	if !strings.HasPrefix(cleaned, base+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return cleaned, nil
}

// escapePath escapes each segment of an object path for use in a URL.
func escapePath(p string) string {
	segs := strings.Split(strings.TrimPrefix(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
