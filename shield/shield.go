// CLAUDE:SUMMARY HTTP middleware for the eCabinet API: security headers with viewer frame-src, body limits, trace ids, rate limits, HEAD handling.
// Package shield provides the HTTP security middleware of the eCabinet
// service.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(viewer.Hosts()) {
//	    r.Use(mw)
//	}
//	r.With(shield.MaxBody(100 << 20)).Post("/api/documents", upload)
package shield

import "net/http"

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the middleware applied to every route, in order:
// HeadToGet, SecurityHeaders (frames allowed from frameHosts), TraceID.
func DefaultStack(frameHosts []string) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders(frameHosts...)),
		TraceID,
	}
}

// HeadToGet serves HEAD through the GET routes, so viewers probing
// /files or a rendered page get 200 instead of 405. net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
