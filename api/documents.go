package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/ecabinet/attach"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/meeting"
	"github.com/hazyhaar/ecabinet/observability"
)

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.cfg.Store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, docs)
}

func (s *Server) getDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.cfg.Store.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, doc)
}

type activity struct {
	DocumentID string                      `json:"document_id"`
	Outcomes   []observability.Outcome     `json:"outcomes"`
	Events     []observability.StoredEvent `json:"events"`
}

// documentActivity reports how a document has been previewed and the
// latest events recorded for it.
func (s *Server) documentActivity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	doc, err := s.cfg.Store.GetDocument(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit := 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	out := activity{DocumentID: doc.ID}
	if out.Outcomes, err = s.cfg.Activity.PreviewOutcomes(ctx, doc.ID); err != nil {
		writeError(w, r, err)
		return
	}
	if out.Events, err = s.cfg.Activity.Recent(ctx, "document", doc.ID, limit); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, out)
}

func (s *Server) uploadDocument(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(r, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(files) != 1 {
		writeError(w, r, fmt.Errorf("%w: exactly one file expected", errBadRequest))
		return
	}
	ref, err := s.cfg.Meetings.UploadDocument(r.Context(), kit.GetUserID(r.Context()), files[0])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ref)
}

func (s *Server) listMeetings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.cfg.Store.ListMeetings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, ms)
}

func (s *Server) getMeeting(w http.ResponseWriter, r *http.Request) {
	m, err := s.cfg.Store.GetMeeting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, m)
}

func (s *Server) meetingDocuments(w http.ResponseWriter, r *http.Request) {
	s.withAttachments(w, r, attach.Resolve)
}

func (s *Server) availableDocuments(w http.ResponseWriter, r *http.Request) {
	s.withAttachments(w, r, attach.Available)
}

func (s *Server) withAttachments(w http.ResponseWriter, r *http.Request, pick func([]string, []document.Ref) []document.Ref) {
	m, err := s.cfg.Store.GetMeeting(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	docs, err := s.cfg.Store.ListDocuments(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, pick(m.DocumentIDs, docs))
}

func (s *Server) attachDocument(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "docID")
	if _, err := s.cfg.Store.GetDocument(r.Context(), docID); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := s.cfg.Attach.Attach(r.Context(), chi.URLParam(r, "id"), docID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, map[string]any{"document_ids": ids})
}

func (s *Server) uploadBatch(w http.ResponseWriter, r *http.Request) {
	files, err := readFiles(r, "files")
	if err != nil {
		writeError(w, r, err)
		return
	}
	refs, err := s.cfg.Meetings.UploadBatch(r.Context(), chi.URLParam(r, "id"), kit.GetUserID(r.Context()), files)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, refs)
}

func (s *Server) liveView(w http.ResponseWriter, r *http.Request) {
	v, err := s.cfg.Meetings.Live(r.Context(), chi.URLParam(r, "id"), kit.GetUserID(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, 200, v)
}

func (s *Server) postChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sender := kit.GetUserID(r.Context())
	if sender == "" {
		sender = "guest"
	}
	msg, err := s.cfg.Meetings.PostChat(chi.URLParam(r, "id"), sender, req.Text)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) setSidebar(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sidebar string `json:"sidebar"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	sb, err := meeting.ParseSidebar(req.Sidebar)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.cfg.Meetings.SetSidebar(chi.URLParam(r, "id"), sb)
	writeJSON(w, 200, map[string]string{"sidebar": string(sb)})
}

// readFiles parses a multipart body and reads every part named field.
func readFiles(r *http.Request, field string) ([]meeting.File, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, errors.Join(errBadRequest, err)
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, fmt.Errorf("%w: no %q part", errBadRequest, field)
	}
	if field == "files" && len(headers) > meeting.MaxUploadFiles {
		return nil, meeting.ErrTooManyFiles
	}
	out := make([]meeting.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readPart(fh)
		if err != nil {
			return nil, err
		}
		out = append(out, meeting.File{Name: fh.Filename, Data: data})
	}
	return out, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %s: %w", fh.Filename, err)
	}
	defer f.Close()
	return io.ReadAll(f)
}
