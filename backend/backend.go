// CLAUDE:SUMMARY Persistence and object-storage contracts consumed by the preview pipeline: Store, Blobs, Meeting, change Event.
// Package backend defines what eCabinet needs from its persistence
// collaborators. Implementations live in store (SQLite), pgstore (Postgres)
// and blobstore (filesystem, GCS).
package backend

import (
	"context"
	"errors"

	"github.com/hazyhaar/ecabinet/document"
)

var (
	// ErrNotFound is returned when a document or meeting id does not exist.
	ErrNotFound = errors.New("backend: not found")
	// ErrStorage is wrapped by every object-storage upload failure.
	ErrStorage = errors.New("backend: storage error")
)

// Meeting statuses.
const (
	StatusUpcoming = "upcoming"
	StatusOngoing  = "ongoing"
	StatusFinished = "finished"
)

// Meeting is a scheduled cabinet meeting and the documents attached to it.
type Meeting struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	RoomID       string   `json:"room_id"`
	HostID       string   `json:"host_id"`
	StartTime    string   `json:"start_time"`
	EndTime      string   `json:"end_time"`
	Date         string   `json:"date"`
	Status       string   `json:"status"`
	Participants []string `json:"participants"`
	DocumentIDs  []string `json:"document_ids"`
}

// Change operations carried by Event.
const (
	OpInsert = "insert"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Event is one row change on the documents or meetings table.
type Event struct {
	Seq   int64  `json:"seq"`
	Table string `json:"table"` // "documents" | "meetings"
	Op    string `json:"op"`
	ID    string `json:"id"`
}

// Store persists documents and meetings.
type Store interface {
	ListDocuments(ctx context.Context) ([]document.Ref, error)
	GetDocument(ctx context.Context, id string) (document.Ref, error)
	InsertDocument(ctx context.Context, ref document.Ref) error
	DeleteDocument(ctx context.Context, id string) error

	ListMeetings(ctx context.Context) ([]Meeting, error)
	GetMeeting(ctx context.Context, id string) (Meeting, error)
	InsertMeeting(ctx context.Context, m Meeting) error
	UpdateMeeting(ctx context.Context, m Meeting) error

	// Subscribe streams change events until ctx is cancelled, then closes
	// the channel.
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Blobs stores uploaded document binaries and hands out their public URLs.
type Blobs interface {
	// Upload stores data at path and returns its public URL. Failures wrap
	// ErrStorage.
	Upload(ctx context.Context, path string, data []byte) (string, error)
	PublicURL(path string) string
}
