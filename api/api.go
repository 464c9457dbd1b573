// CLAUDE:SUMMARY chi HTTP surface: documents, meetings/attachments/live view, preview sessions, SSE change stream, /files and /mcp mounts.
// CLAUDE:DEPENDS preview, meeting, attach, backend, shield
// Package api exposes eCabinet over HTTP. Handlers stay thin: decode,
// call the domain package, map its sentinel errors to a status code.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ecabinet/attach"
	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/meeting"
	"github.com/hazyhaar/ecabinet/observability"
	"github.com/hazyhaar/ecabinet/preview"
	"github.com/hazyhaar/ecabinet/shield"
	"github.com/hazyhaar/ecabinet/viewer"
)

// ActivityLog reads back business events. Implemented by
// *observability.EventLogger.
type ActivityLog interface {
	Recent(ctx context.Context, entityType, entityID string, limit int) ([]observability.StoredEvent, error)
	PreviewOutcomes(ctx context.Context, documentID string) ([]observability.Outcome, error)
}

// Config wires the API.
type Config struct {
	Store    backend.Store
	Preview  *preview.Orchestrator
	Meetings *meeting.Service
	Attach   *attach.Manager

	// Activity serves GET /api/documents/{id}/activity when set.
	Activity ActivityLog
	// Files serves the filesystem blob store under /files/ (optional).
	Files http.Handler
	// MCP is mounted at /mcp when set.
	MCP *mcp.Server
	// RequestLog is an extra middleware recording each request (optional).
	RequestLog func(http.Handler) http.Handler

	// MaxUploadBytes caps multipart upload bodies. Default: 100 MiB.
	MaxUploadBytes int64
	UploadLimit    shield.RateLimitConfig
	PreviewLimit   shield.RateLimitConfig
	// Keepalive is the SSE comment interval. Default: 15s.
	Keepalive time.Duration
	Logger    *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 100 << 20
	}
	if c.Keepalive <= 0 {
		c.Keepalive = 15 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Attach == nil {
		c.Attach = attach.New(c.Store, attach.Config{Logger: c.Logger})
	}
}

// Server holds the handlers.
type Server struct {
	cfg     Config
	limiter *shield.RateLimiter
}

// New creates a Server.
func New(cfg Config) *Server {
	cfg.defaults()
	return &Server{cfg: cfg, limiter: shield.NewRateLimiter()}
}

// Limiter exposes the rate limiter so callers can start its GC.
func (s *Server) Limiter() *shield.RateLimiter { return s.limiter }

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	for _, mw := range shield.DefaultStack(viewer.Hosts()) {
		r.Use(mw)
	}
	if s.cfg.RequestLog != nil {
		r.Use(s.cfg.RequestLog)
	}
	r.Use(userFromHeader)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, 200, map[string]any{"status": "ok", "sessions": s.cfg.Preview.SessionCount()})
	})

	upload := r.With(shield.MaxBody(s.cfg.MaxUploadBytes), s.limiter.Limit("uploads", s.cfg.UploadLimit))

	r.Get("/api/documents", s.listDocuments)
	upload.Post("/api/documents", s.uploadDocument)
	r.Get("/api/documents/{id}", s.getDocument)
	if s.cfg.Activity != nil {
		r.Get("/api/documents/{id}/activity", s.documentActivity)
	}

	r.Get("/api/meetings", s.listMeetings)
	r.Get("/api/meetings/{id}", s.getMeeting)
	r.Get("/api/meetings/{id}/documents", s.meetingDocuments)
	r.Get("/api/meetings/{id}/documents/available", s.availableDocuments)
	r.Put("/api/meetings/{id}/documents/{docID}", s.attachDocument)
	upload.Post("/api/meetings/{id}/uploads", s.uploadBatch)
	r.Get("/api/meetings/{id}/live", s.liveView)
	r.Post("/api/meetings/{id}/chat", s.postChat)
	r.Put("/api/meetings/{id}/sidebar", s.setSidebar)

	r.Route("/api/previews", func(r chi.Router) {
		r.With(s.limiter.Limit("previews", s.cfg.PreviewLimit)).Post("/", s.createPreview)
		r.Route("/{sid}", func(r chi.Router) {
			r.Use(sessionScope)
			r.Get("/", s.getPreview)
			r.Delete("/", s.closePreview)
			r.Post("/select", s.selectDocument)
			r.Post("/retry", s.retryPreview)
			r.Post("/page", s.changePage)
			r.Post("/zoom", s.zoom)
			r.Post("/fit", s.fit)
			r.Put("/scroll", s.scroll)
			r.Get("/render", s.render)
		})
	})

	r.Get("/api/events", s.events)

	if s.cfg.Files != nil {
		r.Handle("/files/*", http.StripPrefix("/files", s.cfg.Files))
	}
	if s.cfg.MCP != nil {
		srv := s.cfg.MCP
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))
	}
	return r
}

// userFromHeader carries the caller id set by the fronting proxy.
// Authentication itself happens upstream.
func userFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get("X-User-ID"); id != "" {
			r = r.WithContext(kit.WithUserID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func sessionScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := kit.WithSessionID(r.Context(), chi.URLParam(r, "sid"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
