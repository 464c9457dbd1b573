package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/ecabinet/idgen"
	"github.com/hazyhaar/ecabinet/kit"
)

// TraceHeader carries the trace id in both directions.
const TraceHeader = "X-Trace-ID"

var newTraceID = idgen.NanoID(12)

// TraceID propagates the trace id set by a fronting proxy in TraceHeader,
// or generates one, and echoes it on the response. The id is stored with
// kit.WithTraceID and a logger carrying it under LoggerKey.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(TraceHeader)
		if !validTraceID(id) {
			id = newTraceID()
		}
		w.Header().Set(TraceHeader, id)

		logger := slog.Default().With("trace_id", id, "method", r.Method, "path", r.URL.Path)
		ctx := kit.WithTraceID(r.Context(), id)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request", "remote_addr", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// validTraceID accepts 8 to 64 characters of [A-Za-z0-9_-], which keeps
// client-supplied ids out of log injection range.
func validTraceID(s string) bool {
	if len(s) < 8 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// GetLogger returns the per-request logger, or slog.Default() outside a
// traced request.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
