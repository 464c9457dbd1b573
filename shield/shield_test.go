package shield

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/ecabinet/kit"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders_FrameSrc(t *testing.T) {
	h := SecurityHeaders(DefaultHeaders("view.officeapps.live.com", "docs.google.com"))(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	csp := rec.Header().Get("Content-Security-Policy")
	if !strings.Contains(csp, "frame-src 'self' https://view.officeapps.live.com https://docs.google.com") {
		t.Errorf("CSP = %q", csp)
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	// WHY: the live meeting room asks for the local camera.
	if pp := rec.Header().Get("Permissions-Policy"); !strings.Contains(pp, "camera=(self)") {
		t.Errorf("Permissions-Policy = %q", pp)
	}
}

func TestSecurityHeaders_EmptyFieldsOmitted(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XContentTypeOptions: "nosniff"})(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if _, set := rec.Header()["Content-Security-Policy"]; set {
		t.Error("empty CSP should not be sent")
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
}

func TestHeadToGet(t *testing.T) {
	var method string
	h := HeadToGet(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { method = r.Method }))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("HEAD", "/", nil))
	if method != "GET" {
		t.Errorf("method = %s", method)
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("POST", "/", strings.NewReader("too long")))
	var mbe *http.MaxBytesError
	if readErr == nil || !errors.As(readErr, &mbe) {
		t.Errorf("err = %v, want MaxBytesError", readErr)
	}
}

func TestTraceID(t *testing.T) {
	var traceID string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = kit.GetTraceID(r.Context())
		if GetLogger(r.Context()) == slog.Default() {
			t.Error("expected a per-request logger")
		}
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if len(traceID) != 12 || rec.Header().Get(TraceHeader) != traceID {
		t.Errorf("generated trace id = %q, header = %q", traceID, rec.Header().Get(TraceHeader))
	}

	// WHAT: a well-formed upstream id is kept, a malformed one replaced.
	cases := []struct {
		in   string
		keep bool
	}{
		{"lb-7f3a9c21", true},
		{"short", false},
		{"bad id\nwith=newline", false},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set(TraceHeader, tc.in)
		h.ServeHTTP(httptest.NewRecorder(), req)
		if (traceID == tc.in) != tc.keep {
			t.Errorf("upstream %q: got %q, keep=%v", tc.in, traceID, tc.keep)
		}
	}
}

func TestRateLimit(t *testing.T) {
	rl := NewRateLimiter()
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	h := rl.Limit("uploads", RateLimitConfig{MaxRequests: 2, Window: time.Minute})(ok)

	do := func(ip string) int {
		req := httptest.NewRequest("POST", "/api/documents", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i, want := range []int{200, 200, 429} {
		if got := do("10.0.0.1"); got != want {
			t.Errorf("request %d = %d, want %d", i, got, want)
		}
	}
	// WHAT: buckets are per IP.
	if got := do("10.0.0.2"); got != 200 {
		t.Errorf("other ip = %d", got)
	}
	// WHAT: the window resets.
	now = now.Add(2 * time.Minute)
	if got := do("10.0.0.1"); got != 200 {
		t.Errorf("after window = %d", got)
	}
	rl.gc()
	if n := len(rl.buckets); n != 1 {
		t.Errorf("buckets after gc = %d, want 1", n)
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := NewRateLimiter().Limit("x", RateLimitConfig{})(ok)
	for range 10 {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		if rec.Code != 200 {
			t.Fatalf("code = %d", rec.Code)
		}
	}
}

func TestExtractIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Forwarded-For", " 1.2.3.4 , 5.6.7.8")
	if got := ExtractIP(req); got != "1.2.3.4" {
		t.Errorf("xff = %q", got)
	}
	req = httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "9.9.9.9:80"
	if got := ExtractIP(req); got != "9.9.9.9" {
		t.Errorf("remote = %q", got)
	}
}
