package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/meeting"
	"github.com/hazyhaar/ecabinet/preview"
	"github.com/hazyhaar/ecabinet/shield"
)

// statusClientClosed is reported when the caller went away before the
// response was ready. Nobody reads it; it keeps such requests out of the 5xx logs.
const statusClientClosed = 499

var (
	errSessionNotFound = errors.New("preview session not found")
	errBadRequest      = errors.New("bad request")
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// statusFor maps domain sentinels to HTTP status codes.
func statusFor(err error) int {
	var mbe *http.MaxBytesError
	switch {
	case errors.Is(err, backend.ErrNotFound), errors.Is(err, errSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, preview.ErrStale), errors.Is(err, preview.ErrClosed),
		errors.Is(err, preview.ErrNotPaged), errors.Is(err, preview.ErrNoDocument):
		return http.StatusConflict
	case errors.Is(err, meeting.ErrTooManyFiles), errors.As(err, &mbe):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, errBadRequest), errors.Is(err, meeting.ErrEmptyMessage),
		errors.Is(err, meeting.ErrInvalidSidebar):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return statusClientClosed
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code >= 500 {
		attrs := append([]any{"status", code, "error", err}, kit.LogAttrs(r.Context())...)
		shield.GetLogger(r.Context()).Error("api: request failed", attrs...)
	}
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.Join(errBadRequest, err)
	}
	return nil
}

func setRenderHeaders(w http.ResponseWriter, page, width, height int, zoom float64) {
	h := w.Header()
	h.Set("X-Page", strconv.Itoa(page))
	h.Set("X-Zoom", strconv.FormatFloat(zoom, 'f', -1, 64))
	h.Set("X-Width", strconv.Itoa(width))
	h.Set("X-Height", strconv.Itoa(height))
}
