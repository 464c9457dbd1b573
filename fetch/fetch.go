// CLAUDE:SUMMARY HTTP fetcher for cache warm-up: SSRF-checked GET with timeout, redirect cap and body size cap.
// Package fetch downloads remote document binaries so they can be cached
// locally. Every failure wraps ErrNetwork; callers warming the cache log
// and drop them.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrNetwork is wrapped by every fetch failure: blocked URL, transport
// error, non-2xx status, oversized body.
var ErrNetwork = errors.New("fetch: network error")

// Result contains the outcome of a fetch.
type Result struct {
	Body        []byte
	StatusCode  int
	ContentType string
}

// Config configures the fetcher.
type Config struct {
	Timeout  time.Duration `json:"timeout" yaml:"timeout"`     // HTTP timeout. Default: 30s.
	MaxBytes int64         `json:"max_bytes" yaml:"max_bytes"` // Max response body size. Default: 100MB.
	// UserAgent sent with requests.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
	// URLValidator validates URLs before fetch and on every redirect (SSRF prevention).
	// Default: ValidateURL.
	URLValidator func(string) error `json:"-" yaml:"-"`
	// Transport overrides the HTTP transport. Nil uses http.DefaultTransport.
	Transport http.RoundTripper `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 100 * 1024 * 1024
	}
	if c.UserAgent == "" {
		c.UserAgent = "ecabinet-preview/1.0"
	}
	if c.URLValidator == nil {
		c.URLValidator = ValidateURL
	}
}

// Fetcher performs GET requests for document binaries.
type Fetcher struct {
	client *http.Client
	config Config
}

// New creates a Fetcher with SSRF protection on redirects.
func New(cfg Config) *Fetcher {
	cfg.defaults()
	validate := cfg.URLValidator
	return &Fetcher{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects (%d)", len(via))
				}
				if err := validate(req.URL.String()); err != nil {
					return fmt.Errorf("redirect blocked (SSRF): %w", err)
				}
				return nil
			},
		},
		config: cfg,
	}
}

// Fetch retrieves rawURL and returns its body.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Result, error) {
	if err := f.config.URLValidator(rawURL); err != nil {
		return nil, fmt.Errorf("%w: URL blocked (SSRF): %v", ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: new request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: http get: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &Result{StatusCode: resp.StatusCode}, fmt.Errorf("%w: http %d", ErrNetwork, resp.StatusCode)
	}
	if resp.ContentLength > f.config.MaxBytes {
		return nil, fmt.Errorf("%w: body of %d bytes exceeds %d", ErrNetwork, resp.ContentLength, f.config.MaxBytes)
	}

	body, err := limitedReadAll(resp.Body, f.config.MaxBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrNetwork, err)
	}

	return &Result{
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// limitedReadAll reads at most maxBytes from r and fails past the limit
// instead of truncating.
func limitedReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("response exceeds %d bytes", maxBytes)
	}
	return data, nil
}
