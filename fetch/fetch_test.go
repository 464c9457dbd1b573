package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func allowAll(string) error { return nil }

func TestFetch_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "ecabinet-preview/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll})
	res, err := f.Fetch(context.Background(), srv.URL+"/d9.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if string(res.Body) != "%PDF-1.4" || res.ContentType != "application/pdf" {
		t.Errorf("result = %+v", res)
	}
}

func TestFetch_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		}
	}))
	defer srv.Close()

	f := New(Config{URLValidator: allowAll, MaxBytes: 16})
	for _, path := range []string{"/missing", "/big"} {
		t.Run(path, func(t *testing.T) {
			_, err := f.Fetch(context.Background(), srv.URL+path)
			if !errors.Is(err, ErrNetwork) {
				t.Fatalf("err = %v, want ErrNetwork", err)
			}
		})
	}

	srv.Close()
	if _, err := f.Fetch(context.Background(), srv.URL+"/gone"); !errors.Is(err, ErrNetwork) {
		t.Fatalf("closed server: err = %v, want ErrNetwork", err)
	}
}

func TestFetch_BlocksLoopbackByDefault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached loopback server")
	}))
	defer srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestFetch_RedirectValidated(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer target.Close()
	redir := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/internal", http.StatusFound)
	}))
	defer redir.Close()

	validate := func(u string) error {
		if strings.HasSuffix(u, "/internal") {
			return ErrSSRF
		}
		return nil
	}
	_, err := New(Config{URLValidator: validate}).Fetch(context.Background(), redir.URL+"/start")
	if !errors.Is(err, ErrNetwork) {
		t.Fatalf("err = %v, want ErrNetwork", err)
	}
}

func TestValidateURL(t *testing.T) {
	orig := lookupHost
	t.Cleanup(func() { lookupHost = orig })
	lookupHost = func(host string) ([]string, error) {
		switch host {
		case "internal.example":
			return []string{"10.1.2.3"}, nil
		case "store.example":
			return []string{"93.184.216.34"}, nil
		}
		return nil, errors.New("no such host")
	}

	tests := []struct {
		url  string
		want error
	}{
		{"https://store.example/d9.pdf", nil},
		{"https://unresolvable.example/x", nil},
		{"https://93.184.216.34/x", nil},
		{"ftp://store.example/x", ErrUnsafeScheme},
		{"session:d9", ErrUnsafeScheme},
		{"http://127.0.0.1/x", ErrSSRF},
		{"http://[::1]/x", ErrSSRF},
		{"http://192.168.1.10/x", ErrSSRF},
		{"http://169.254.169.254/latest", ErrSSRF},
		{"http://internal.example/x", ErrSSRF},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if tt.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
