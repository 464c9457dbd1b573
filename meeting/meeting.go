// CLAUDE:SUMMARY Live meeting view (attachments, sidebar, static tiles, mock chat) and document uploads with transient-ref fallback on storage failure.
// CLAUDE:DEPENDS attach, backend, blobstore, preview
// Package meeting assembles what a participant sees in a live meeting and
// handles the documents uploaded from it. Video tiles are static
// placeholders and chat lives in memory only.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/ecabinet/attach"
	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/observability"
	"github.com/hazyhaar/ecabinet/preview"
)

var (
	// ErrTooManyFiles is returned when an upload batch exceeds MaxUploadFiles.
	ErrTooManyFiles = fmt.Errorf("meeting: at most %d files per upload", MaxUploadFiles)
	// ErrEmptyMessage is returned for a blank chat message.
	ErrEmptyMessage = errors.New("meeting: empty chat message")
	// ErrInvalidSidebar is returned for an unknown sidebar panel.
	ErrInvalidSidebar = errors.New("meeting: invalid sidebar")
)

const (
	// MaxUploadFiles caps a live upload batch.
	MaxUploadFiles = 5
	// MaxTiles caps the video tiles shown for other participants.
	MaxTiles = 4

	maxChatMessages = 200
)

// Sidebar is the panel open next to the video grid.
type Sidebar string

const (
	SidebarDocs Sidebar = "docs"
	SidebarChat Sidebar = "chat"
	SidebarNone Sidebar = "none"
)

// ParseSidebar validates s. The empty string means SidebarNone.
func ParseSidebar(s string) (Sidebar, error) {
	switch Sidebar(s) {
	case SidebarDocs, SidebarChat, SidebarNone:
		return Sidebar(s), nil
	case "":
		return SidebarNone, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidSidebar, s)
}

// Toggle returns the panel shown after clicking requested while current is
// open: clicking the open panel closes it.
func Toggle(current, requested Sidebar) Sidebar {
	if current == requested {
		return SidebarNone
	}
	return requested
}

// Tile is a static video placeholder for one participant.
type Tile struct {
	ParticipantID string `json:"participant_id"`
	Initial       string `json:"initial"`
}

// ChatMessage is one mock chat line.
type ChatMessage struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// View is the live meeting screen for one participant.
type View struct {
	Meeting   backend.Meeting `json:"meeting"`
	Documents []document.Ref  `json:"documents"`
	Available []document.Ref  `json:"available"`
	Sidebar   Sidebar         `json:"sidebar"`
	Tiles     []Tile          `json:"tiles"`
	Chat      []ChatMessage   `json:"chat"`
}

// EventLogger records business events. Implemented by *observability.EventLogger.
type EventLogger interface {
	LogEvent(ctx context.Context, event observability.BusinessEvent)
}

// Config wires a Service.
type Config struct {
	Store   backend.Store
	Blobs   backend.Blobs // nil: every upload gets a transient ref
	Attach  *attach.Manager
	Uploads *preview.Uploads
	Cache   preview.BinaryCache // optional
	Events  EventLogger         // optional
	Logger  *slog.Logger
	Now     func() time.Time
}

func (c *Config) defaults() {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Attach == nil {
		c.Attach = attach.New(c.Store, attach.Config{Events: c.Events, Logger: c.Logger})
	}
	if c.Uploads == nil {
		c.Uploads = preview.NewUploads()
	}
}

type room struct {
	sidebar Sidebar
	chat    []ChatMessage
}

// Service serves live meetings.
type Service struct {
	cfg Config

	mu    sync.Mutex
	rooms map[string]*room
}

// New creates a Service.
func New(cfg Config) *Service {
	cfg.defaults()
	return &Service{cfg: cfg, rooms: make(map[string]*room)}
}

// roomLocked returns the in-memory state of a meeting, seeding the chat.
func (s *Service) roomLocked(meetingID string) *room {
	r, ok := s.rooms[meetingID]
	if !ok {
		r = &room{
			sidebar: SidebarDocs,
			chat: []ChatMessage{{
				Sender: "Host",
				Text:   "Has everyone reviewed the attached documents?",
				SentAt: s.cfg.Now(),
			}},
		}
		s.rooms[meetingID] = r
	}
	return r
}

// Live loads the meeting and the document library concurrently and
// assembles the view for viewerID.
func (s *Service) Live(ctx context.Context, meetingID, viewerID string) (View, error) {
	var (
		m    backend.Meeting
		docs []document.Ref
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		m, err = s.cfg.Store.GetMeeting(gctx, meetingID)
		return err
	})
	g.Go(func() error {
		var err error
		docs, err = s.cfg.Store.ListDocuments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return View{}, fmt.Errorf("meeting: live %s: %w", meetingID, err)
	}

	s.mu.Lock()
	r := s.roomLocked(meetingID)
	sidebar := r.sidebar
	chat := append([]ChatMessage(nil), r.chat...)
	s.mu.Unlock()

	return View{
		Meeting:   m,
		Documents: attach.Resolve(m.DocumentIDs, docs),
		Available: attach.Available(m.DocumentIDs, docs),
		Sidebar:   sidebar,
		Tiles:     tiles(m.Participants, viewerID),
		Chat:      chat,
	}, nil
}

// initial is the upper-cased first rune of id.
func initial(id string) string {
	r, _ := utf8.DecodeRuneInString(id)
	return strings.ToUpper(string(r))
}

func tiles(participants []string, viewerID string) []Tile {
	out := make([]Tile, 0, MaxTiles)
	for _, p := range participants {
		if p == viewerID || p == "" {
			continue
		}
		out = append(out, Tile{ParticipantID: p, Initial: initial(p)})
		if len(out) == MaxTiles {
			break
		}
	}
	return out
}

// SetSidebar sets the open panel of a meeting.
func (s *Service) SetSidebar(meetingID string, sb Sidebar) {
	s.mu.Lock()
	s.roomLocked(meetingID).sidebar = sb
	s.mu.Unlock()
}

// PostChat appends a message to the mock chat. Nothing is persisted.
func (s *Service) PostChat(meetingID, sender, text string) (ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ChatMessage{}, ErrEmptyMessage
	}
	msg := ChatMessage{Sender: sender, Text: text, SentAt: s.cfg.Now()}

	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.roomLocked(meetingID)
	r.chat = append(r.chat, msg)
	if len(r.chat) > maxChatMessages {
		r.chat = r.chat[len(r.chat)-maxChatMessages:]
	}
	return msg, nil
}
