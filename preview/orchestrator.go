// CLAUDE:SUMMARY Preview orchestrator: DI of cache/fetcher/renderers, resolver chain, singleflight cache warm-up, session registry.
// CLAUDE:DEPENDS preview/resolver.go, preview/session.go
// Package preview decides how a document is shown: rendered from local
// bytes, embedded in a remote viewer, or replaced by sample content. It owns
// the per-viewer preview sessions and warms the binary cache in the
// background so later opens take the local path.
//
// Usage:
//
//	orch := preview.New(preview.Config{Cache: cache, Fetcher: fetcher})
//	defer orch.Close()
//	s := orch.NewSession()
//	snap, err := s.Open(ctx, ref)
package preview

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/fetch"
	"github.com/hazyhaar/ecabinet/idgen"
	"github.com/hazyhaar/ecabinet/observability"
)

// BinaryCache is the local binary store. Implemented by *bincache.Cache.
type BinaryCache interface {
	Get(ctx context.Context, id string) []byte
	Put(ctx context.Context, id string, data []byte)
}

// Fetcher downloads remote binaries. Implemented by *fetch.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetch.Result, error)
}

// EventLogger records business events. Implemented by *observability.EventLogger.
type EventLogger interface {
	LogEvent(ctx context.Context, event observability.BusinessEvent)
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Cache    BinaryCache       // nil: no cache lookups or warm-ups
	Fetcher  Fetcher           // nil: no warm-ups
	Pipeline *docpipe.Pipeline // default: docpipe.New with defaults
	Demo     document.DemoSet  // default: document.DefaultDemoIDs
	Uploads  *Uploads          // default: a fresh map
	Events   EventLogger       // optional
	Logger   *slog.Logger

	// SessionIDs generates session ids (default: 12-char NanoID).
	SessionIDs idgen.Generator

	Now func() time.Time // default: time.Now
}

func (c *Config) defaults() {
	if c.Pipeline == nil {
		c.Pipeline = docpipe.New(docpipe.Config{Logger: c.Logger})
	}
	if c.Demo == nil {
		c.Demo = document.NewDemoSet(document.DefaultDemoIDs...)
	}
	if c.Uploads == nil {
		c.Uploads = NewUploads()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.SessionIDs == nil {
		c.SessionIDs = idgen.NanoID(12)
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// Orchestrator resolves previews and owns the live sessions.
type Orchestrator struct {
	cache     BinaryCache
	fetcher   Fetcher
	pipe      *docpipe.Pipeline
	demo      document.DemoSet
	uploads   *Uploads
	events    EventLogger
	logger    *slog.Logger
	newID     idgen.Generator
	now       func() time.Time
	resolvers []Resolver

	// warm-ups run on baseCtx, not on any session's context.
	baseCtx context.Context
	cancel  context.CancelFunc
	flight  singleflight.Group
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	cfg.defaults()
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cache:    cfg.Cache,
		fetcher:  cfg.Fetcher,
		pipe:     cfg.Pipeline,
		demo:     cfg.Demo,
		uploads:  cfg.Uploads,
		events:   cfg.Events,
		logger:   cfg.Logger,
		newID:    cfg.SessionIDs,
		now:      cfg.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
	}
	o.resolvers = []Resolver{localBinary{o}, remoteViewer{o}, demoPlaceholder{}}
	return o
}

// Uploads returns the in-process upload map consulted before the cache.
func (o *Orchestrator) Uploads() *Uploads { return o.uploads }

// Pipeline returns the renderers used for local binaries.
func (o *Orchestrator) Pipeline() *docpipe.Pipeline { return o.pipe }

// Demo returns the demo document set used to classify refs.
func (o *Orchestrator) Demo() document.DemoSet { return o.demo }

// Resolve runs the resolver chain for ref without touching any session.
// When nothing applies it returns the Error resolution together with an
// error wrapping ErrNotFound.
func (o *Orchestrator) Resolve(ctx context.Context, ref document.Ref) (Resolution, error) {
	if ref.Origin == "" {
		ref = ref.WithOrigin(o.demo)
	}
	res, err := o.runChain(ctx, ref)
	if err == nil || res.State == StateError {
		o.logEvent(ref, res)
	}
	return res, err
}

// warm fetches ref.RemoteURL in the background and stores the bytes in the
// cache. Concurrent warm-ups of the same id share one fetch. Failures are
// logged at debug level and otherwise ignored.
func (o *Orchestrator) warm(ref document.Ref) {
	if o.fetcher == nil || o.cache == nil || o.baseCtx.Err() != nil {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, err, shared := o.flight.Do(ref.ID, func() (any, error) {
			res, err := o.fetcher.Fetch(o.baseCtx, ref.RemoteURL)
			if err != nil {
				return nil, err
			}
			o.cache.Put(o.baseCtx, ref.ID, res.Body)
			return len(res.Body), nil
		})
		if err != nil {
			o.logger.Debug("preview: cache warm-up failed", "document", ref.ID, "url", ref.RemoteURL, "error", err)
			return
		}
		if !shared {
			o.logger.Debug("preview: cache warmed", "document", ref.ID)
		}
	}()
}

// Wait blocks until in-flight warm-ups finish.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// NewSession creates and registers a preview session.
func (o *Orchestrator) NewSession() *Session {
	s := newSession(o, o.newID())
	s.touch(o.now())
	o.mu.Lock()
	o.sessions[s.id] = s
	o.mu.Unlock()
	return s
}

// Session returns a registered session.
func (o *Orchestrator) Session(id string) (*Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, ok := o.sessions[id]
	if ok {
		s.touch(o.now())
	}
	return s, ok
}

// CloseSession closes and unregisters a session.
func (o *Orchestrator) CloseSession(id string) error {
	o.mu.Lock()
	s, ok := o.sessions[id]
	delete(o.sessions, id)
	o.mu.Unlock()
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrClosed)
	}
	s.Close()
	return nil
}

// Reap closes and unregisters sessions not looked up for longer than
// maxIdle. It returns the number of sessions closed.
func (o *Orchestrator) Reap(maxIdle time.Duration) int {
	cutoff := o.now().Add(-maxIdle)
	var idle []*Session
	o.mu.Lock()
	for id, s := range o.sessions {
		if s.lastUsed().Before(cutoff) {
			idle = append(idle, s)
			delete(o.sessions, id)
		}
	}
	o.mu.Unlock()
	for _, s := range idle {
		s.Close()
		o.logger.Debug("preview: idle session closed", "session", s.id)
	}
	return len(idle)
}

// SessionCount returns the number of registered sessions.
func (o *Orchestrator) SessionCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// Close closes every session, cancels warm-ups and waits for them.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	sessions := o.sessions
	o.sessions = make(map[string]*Session)
	o.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
	o.cancel()
	o.wg.Wait()
}

func (o *Orchestrator) logEvent(ref document.Ref, res Resolution) {
	if o.events == nil {
		return
	}
	o.events.LogEvent(o.baseCtx, observability.BusinessEvent{
		EventType:   "preview.resolved",
		ServiceName: "ecabinet",
		EntityType:  "document",
		EntityID:    ref.ID,
		Action:      string(res.Strategy),
		Success:     res.State != StateError,
	})
}
