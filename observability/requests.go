// CLAUDE:SUMMARY HTTP middleware that records method, path, status, bytes and latency into http_request_logs.
package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger returns middleware that writes one http_request_logs row per
// request. traceID extracts the request's trace id (may be nil).
func RequestLogger(db *sql.DB, traceID func(context.Context) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			var tid string
			if traceID != nil {
				tid = traceID(r.Context())
			}
			_, err := db.ExecContext(context.WithoutCancel(r.Context()), `
				INSERT INTO http_request_logs (method, path, status_code, bytes_out, duration_ms, trace_id, ip_address, user_agent)
				VALUES (?,?,?,?,?,?,?,?)`,
				r.Method, r.URL.Path, sw.status, sw.bytes, time.Since(start).Milliseconds(), tid, r.RemoteAddr, r.UserAgent())
			if err != nil {
				slog.Warn("observability request log failed", "error", err, "path", r.URL.Path)
			}
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush lets streaming handlers (SSE) flush through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
