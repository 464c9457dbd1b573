package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/fetch"
)

// memCache is an in-memory BinaryCache. Get blocks on gates[id] when set.
type memCache struct {
	mu    sync.Mutex
	data  map[string][]byte
	gates map[string]chan struct{}
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, gates: map[string]chan struct{}{}}
}

func (c *memCache) Get(_ context.Context, id string) []byte {
	c.mu.Lock()
	gate := c.gates[id]
	c.mu.Unlock()
	if gate != nil {
		<-gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data[id]
}

func (c *memCache) Put(_ context.Context, id string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[id] = data
}

func (c *memCache) gate(id string) chan struct{} {
	ch := make(chan struct{})
	c.mu.Lock()
	c.gates[id] = ch
	c.mu.Unlock()
	return ch
}

// fakeFetcher serves bodies by URL and reports each fetch on fetched.
type fakeFetcher struct {
	mu      sync.Mutex
	bodies  map[string][]byte
	calls   int
	fetched chan string
}

func newFakeFetcher(bodies map[string][]byte) *fakeFetcher {
	return &fakeFetcher{bodies: bodies, fetched: make(chan string, 16)}
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (*fetch.Result, error) {
	f.mu.Lock()
	f.calls++
	body, ok := f.bodies[url]
	f.mu.Unlock()
	defer func() { f.fetched <- url }()
	if !ok {
		return nil, fmt.Errorf("%w: http 404", fetch.ErrNetwork)
	}
	return &fetch.Result{Body: body, StatusCode: 200}, nil
}

var demo = document.NewDemoSet(document.DefaultDemoIDs...)

func ref(id, name, url string) document.Ref {
	return document.NewRef(id, name, url, demo)
}

func newOrch(t *testing.T, cache BinaryCache, f Fetcher) *Orchestrator {
	t.Helper()
	cfg := Config{Demo: demo}
	if cache != nil {
		cfg.Cache = cache
	}
	if f != nil {
		cfg.Fetcher = f
	}
	o := New(cfg)
	t.Cleanup(o.Close)
	return o
}

func mustNotFound(t *testing.T, err error) {
	t.Helper()
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
