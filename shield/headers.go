package shield

import (
	"net/http"
	"strings"
)

// HeaderConfig defines the security headers applied to every response.
// Empty fields are not sent.
type HeaderConfig struct {
	CSP                 string
	XFrameOptions       string
	XContentTypeOptions string
	ReferrerPolicy      string
	PermissionsPolicy   string
}

// DefaultHeaders returns the eCabinet header set. frameHosts are the hosts
// of the remote viewers a preview may embed over https. Rendered PDF pages
// are shown through blob: URLs, and the live meeting room needs the camera
// and microphone of its own origin.
func DefaultHeaders(frameHosts ...string) HeaderConfig {
	frames := []string{"'self'"}
	for _, h := range frameHosts {
		frames = append(frames, "https://"+h)
	}
	csp := []string{
		"default-src 'self'",
		"script-src 'self'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: blob: https:",
		"frame-src " + strings.Join(frames, " "),
		"object-src 'self' blob:",
		"frame-ancestors 'self'",
	}
	return HeaderConfig{
		CSP:                 strings.Join(csp, "; "),
		XFrameOptions:       "SAMEORIGIN",
		XContentTypeOptions: "nosniff",
		ReferrerPolicy:      "strict-origin-when-cross-origin",
		PermissionsPolicy:   "camera=(self), microphone=(self), geolocation=()",
	}
}

// SecurityHeaders returns middleware setting the configured headers.
func SecurityHeaders(cfg HeaderConfig) func(http.Handler) http.Handler {
	var set [][2]string
	for _, h := range [][2]string{
		{"Content-Security-Policy", cfg.CSP},
		{"X-Frame-Options", cfg.XFrameOptions},
		{"X-Content-Type-Options", cfg.XContentTypeOptions},
		{"Referrer-Policy", cfg.ReferrerPolicy},
		{"Permissions-Policy", cfg.PermissionsPolicy},
	} {
		if h[1] != "" {
			set = append(set, h)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, h := range set {
				w.Header().Set(h[0], h[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}
