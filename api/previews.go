package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/preview"
)

type selectReq struct {
	DocumentID string `json:"document_id"`
	Async      bool   `json:"async"`
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*preview.Session, bool) {
	sess, ok := s.cfg.Preview.Session(kit.GetSessionID(r.Context()))
	if !ok {
		writeError(w, r, errSessionNotFound)
		return nil, false
	}
	return sess, true
}

// open selects req.DocumentID in sess. A resolution ending in the Error
// state is a normal snapshot, not an HTTP error.
func (s *Server) open(r *http.Request, sess *preview.Session, req selectReq) (preview.Snapshot, error) {
	if req.DocumentID == "" {
		return preview.Snapshot{}, fmt.Errorf("%w: document_id is required", errBadRequest)
	}
	ref, err := s.cfg.Store.GetDocument(r.Context(), req.DocumentID)
	if err != nil {
		return preview.Snapshot{}, err
	}
	if req.Async {
		return sess.OpenAsync(ref)
	}
	return sess.Open(r.Context(), ref)
}

func (s *Server) createPreview(w http.ResponseWriter, r *http.Request) {
	var req selectReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sess := s.cfg.Preview.NewSession()
	if req.DocumentID == "" {
		writeJSON(w, http.StatusCreated, sess.Snapshot())
		return
	}
	snap, err := s.open(r, sess, req)
	if err != nil {
		s.cfg.Preview.CloseSession(sess.ID())
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

func (s *Server) getPreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("wait") != "" {
		snap, err := sess.Await(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, 200, snap)
		return
	}
	writeJSON(w, 200, sess.Snapshot())
}

func (s *Server) closePreview(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Preview.CloseSession(kit.GetSessionID(r.Context())); err != nil {
		writeError(w, r, errSessionNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) selectDocument(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	var req selectReq
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	snap, err := s.open(r, sess, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, snap)
}

func (s *Server) retryPreview(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(sess *preview.Session) (preview.Snapshot, error) {
		return sess.Retry(r.Context())
	})
}

func (s *Server) changePage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(sess *preview.Session) (preview.Snapshot, error) {
		return sess.ChangePage(req.Delta)
	})
}

func (s *Server) zoom(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta *float64 `json:"delta"`
		Zoom  *float64 `json:"zoom"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(sess *preview.Session) (preview.Snapshot, error) {
		switch {
		case req.Zoom != nil:
			return sess.SetZoom(*req.Zoom)
		case req.Delta != nil:
			return sess.ZoomBy(*req.Delta)
		}
		return preview.Snapshot{}, fmt.Errorf("%w: delta or zoom is required", errBadRequest)
	})
}

func (s *Server) fit(w http.ResponseWriter, r *http.Request) {
	var viewport docpipe.Size
	if err := decode(r, &viewport); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(sess *preview.Session) (preview.Snapshot, error) {
		return sess.FitToScreen(viewport)
	})
}

func (s *Server) scroll(w http.ResponseWriter, r *http.Request) {
	var req preview.Scroll
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	s.mutate(w, r, func(sess *preview.Session) (preview.Snapshot, error) {
		return sess.SetScroll(req.X, req.Y)
	})
}

func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(*preview.Session) (preview.Snapshot, error)) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	snap, err := fn(sess)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, snap)
}

// render returns the current page as a standalone PDF, or as JSON with its
// text when the client accepts JSON.
func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	page, err := sess.Render()
	if err != nil {
		writeError(w, r, err)
		return
	}
	setRenderHeaders(w, page.Page, page.Width, page.Height, page.Zoom)
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		writeJSON(w, 200, page)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.WriteHeader(200)
	w.Write(page.PDF)
}
