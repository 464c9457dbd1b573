// CLAUDE:SUMMARY Attachment manager: idempotent per-meeting attach with serialized read-modify-write, plus id-to-document resolution.
// CLAUDE:DEPENDS backend
// Package attach links documents to meetings. Attach is idempotent and
// serialized per meeting so two concurrent attaches never lose each other's
// write.
package attach

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/observability"
)

// Meetings is the subset of backend.Store the manager needs.
type Meetings interface {
	GetMeeting(ctx context.Context, id string) (backend.Meeting, error)
	UpdateMeeting(ctx context.Context, m backend.Meeting) error
}

// EventLogger records business events. Implemented by *observability.EventLogger.
type EventLogger interface {
	LogEvent(ctx context.Context, event observability.BusinessEvent)
}

// Config configures a Manager.
type Config struct {
	Events EventLogger // optional
	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager attaches documents to meetings.
type Manager struct {
	store  Meetings
	events EventLogger
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Manager persisting through store.
func New(store Meetings, cfg Config) *Manager {
	cfg.defaults()
	return &Manager{
		store:  store,
		events: cfg.Events,
		logger: cfg.Logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(meetingID string) func() {
	m.mu.Lock()
	l, ok := m.locks[meetingID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[meetingID] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Attach adds documentID to the meeting and returns the resulting id list.
// Attaching an id already present is a no-op and skips the write.
func (m *Manager) Attach(ctx context.Context, meetingID, documentID string) ([]string, error) {
	return m.AttachMany(ctx, meetingID, documentID)
}

// AttachMany appends ids in order, skipping empty ids and ids already
// attached (including duplicates within ids).
func (m *Manager) AttachMany(ctx context.Context, meetingID string, ids ...string) ([]string, error) {
	unlock := m.lock(meetingID)
	defer unlock()

	mt, err := m.store.GetMeeting(ctx, meetingID)
	if err != nil {
		return nil, fmt.Errorf("attach: get meeting %s: %w", meetingID, err)
	}

	var added []string
	for _, id := range ids {
		if id == "" || slices.Contains(mt.DocumentIDs, id) {
			continue
		}
		mt.DocumentIDs = append(mt.DocumentIDs, id)
		added = append(added, id)
	}
	if len(added) == 0 {
		return mt.DocumentIDs, nil
	}

	if err := m.store.UpdateMeeting(ctx, mt); err != nil {
		return nil, fmt.Errorf("attach: update meeting %s: %w", meetingID, err)
	}
	m.logger.Info("attach: documents attached", "meeting", meetingID, "added", added)
	if m.events != nil {
		for _, id := range added {
			m.events.LogEvent(ctx, observability.BusinessEvent{
				EventType:  "meeting.document_attached",
				EntityType: "meeting",
				EntityID:   meetingID,
				Action:     "attach",
				Details:    fmt.Sprintf(`{"document_id":%q}`, id),
				Success:    true,
			})
		}
	}
	return mt.DocumentIDs, nil
}

// Resolve maps ids to documents, preserving the order of ids. Ids with no
// matching document are dropped.
func Resolve(ids []string, docs []document.Ref) []document.Ref {
	byID := make(map[string]document.Ref, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}
	out := make([]document.Ref, 0, len(ids))
	for _, id := range ids {
		if d, ok := byID[id]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Available lists the documents not yet attached, in library order.
func Available(ids []string, docs []document.Ref) []document.Ref {
	out := make([]document.Ref, 0, len(docs))
	for _, d := range docs {
		if !slices.Contains(ids, d.ID) {
			out = append(out, d)
		}
	}
	return out
}
