// CLAUDE:SUMMARY DocumentRef model, coarse type detection by extension, and the Origin tag resolved once at construction.
// Package document defines the document reference previewed by eCabinet and
// the pure helpers around it: type detection from a file name, size labels,
// and the Origin tag that tells the preview pipeline where bytes can come from.
package document

import (
	"net/url"
	"strings"
)

// Type is the coarse document type derived from a file extension.
type Type string

const (
	TypePDF   Type = "pdf"
	TypeDoc   Type = "doc"
	TypeXls   Type = "xls"
	TypePpt   Type = "ppt"
	TypeOther Type = "other"
)

var extTypes = map[string]Type{
	"pdf":  TypePDF,
	"doc":  TypeDoc,
	"docx": TypeDoc,
	"xls":  TypeXls,
	"xlsx": TypeXls,
	"csv":  TypeXls,
	"ppt":  TypePpt,
	"pptx": TypePpt,
}

// DetectType maps a file name to its coarse type. Total and pure: the text
// after the last '.' is lower-cased and looked up; anything else is TypeOther.
func DetectType(name string) Type {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return TypeOther
	}
	if t, ok := extTypes[strings.ToLower(name[i+1:])]; ok {
		return t
	}
	return TypeOther
}

// Origin tags where a document's bytes can be obtained besides the local
// binary lookup. It is computed once when the Ref is built.
type Origin string

const (
	// OriginRemote: RemoteURL is set and publicly fetchable.
	OriginRemote Origin = "remote"
	// OriginDemo: built-in demonstration document without a RemoteURL.
	OriginDemo Origin = "demo"
	// OriginLocal: only a local upload (or a transient session reference) exists.
	OriginLocal Origin = "local"
)

// Ref identifies a document to preview.
type Ref struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      Type   `json:"type"`
	RemoteURL string `json:"url,omitempty"`
	SizeLabel string `json:"size"`
	UpdatedAt string `json:"updated_at"`
	OwnerID   string `json:"owner_id"`
	Origin    Origin `json:"origin"`
}

// NewRef builds a Ref, deriving Type from name and classifying its Origin.
func NewRef(id, name, remoteURL string, demo DemoSet) Ref {
	r := Ref{ID: id, Name: name, Type: DetectType(name), RemoteURL: remoteURL}
	r.Origin = r.Classify(demo)
	return r
}

// Classify computes the Origin of r. Refs loaded from a store carry their
// persisted Type; only Origin is recomputed.
func (r Ref) Classify(demo DemoSet) Origin {
	switch {
	case r.RemoteURL != "" && !IsTransient(r.RemoteURL):
		return OriginRemote
	case r.RemoteURL == "" && demo.Contains(r.ID):
		return OriginDemo
	default:
		return OriginLocal
	}
}

// WithOrigin returns a copy of r with Origin classified against demo.
func (r Ref) WithOrigin(demo DemoSet) Ref {
	r.Origin = r.Classify(demo)
	return r
}

// TransientScheme prefixes references that only live in the current process,
// handed out when an upload to object storage fails.
const TransientScheme = "session"

// TransientURL returns the session-local reference for a document id.
func TransientURL(id string) string {
	return TransientScheme + ":" + url.PathEscape(id)
}

// IsTransient reports whether u is a session-local reference (session: or a
// browser blob: URL) that no remote viewer can reach.
func IsTransient(u string) bool {
	scheme, _, ok := strings.Cut(u, ":")
	if !ok {
		return false
	}
	switch strings.ToLower(scheme) {
	case TransientScheme, "blob":
		return true
	}
	return false
}

// DemoSet is the fixed set of built-in demonstration document ids.
type DemoSet map[string]struct{}

// NewDemoSet builds a DemoSet from ids.
func NewDemoSet(ids ...string) DemoSet {
	s := make(DemoSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// DefaultDemoIDs are the sample documents seeded with a fresh store.
var DefaultDemoIDs = []string{"d1", "d2", "d3", "d4", "d5", "d6", "d7", "d8"}

// Contains reports whether id is a demo document. Nil sets contain nothing.
func (s DemoSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}
