// CLAUDE:SUMMARY Preview session state machine with a generation counter; stale resolutions are discarded, close stops mutation.
package preview

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/document"
)

// Session is one open preview. Every selection bumps the generation; a
// resolution commits only if its generation is still current, so the most
// recently requested document always wins.
type Session struct {
	id     string
	o      *Orchestrator
	ctx    context.Context
	cancel context.CancelFunc
	used   atomic.Int64 // unix nanoseconds of the last registry lookup

	mu      sync.Mutex
	gen     uint64
	closed  bool
	settled chan struct{} // closed when the current generation leaves Loading

	doc       *document.Ref
	state     State
	strategy  Strategy
	errMsg    string
	manualURL string
	embedURL  string
	html      string
	demo      bool
	pdf       *docpipe.PDF
	page      int
	zoom      float64
	scroll    Scroll
}

func newSession(o *Orchestrator, id string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	settled := make(chan struct{})
	close(settled)
	return &Session{id: id, o: o, ctx: ctx, cancel: cancel, state: StateIdle, settled: settled}
}

func (s *Session) touch(t time.Time) { s.used.Store(t.UnixNano()) }

func (s *Session) lastUsed() time.Time { return time.Unix(0, s.used.Load()) }

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Open selects ref and resolves it synchronously. A resolution that ends in
// the Error state is committed and returned without error; the returned error
// is ErrStale when a newer selection superseded this one, ErrClosed when the
// session closed meanwhile, or the context error. A cancelled Open leaves the
// document selected in the Idle state.
func (s *Session) Open(ctx context.Context, ref document.Ref) (Snapshot, error) {
	gen, err := s.begin(ref)
	if err != nil {
		return Snapshot{}, err
	}
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	unhook := context.AfterFunc(s.ctx, stop)
	defer unhook()
	return s.resolve(ctx, gen, ref)
}

// OpenAsync selects ref, returns the Loading snapshot immediately and
// resolves in the background. Use Await to observe the settled state.
func (s *Session) OpenAsync(ref document.Ref) (Snapshot, error) {
	gen, err := s.begin(ref)
	if err != nil {
		return Snapshot{}, err
	}
	snap := s.Snapshot()
	go s.resolve(s.ctx, gen, ref)
	return snap, nil
}

// Retry re-runs the full resolution for the current document.
func (s *Session) Retry(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	doc := s.doc
	s.mu.Unlock()
	if doc == nil {
		return Snapshot{}, ErrNoDocument
	}
	return s.Open(ctx, *doc)
}

// Await blocks until the current selection settles, then returns the
// snapshot. Superseded selections are followed to the newest one.
func (s *Session) Await(ctx context.Context) (Snapshot, error) {
	for {
		s.mu.Lock()
		ch, state, closed := s.settled, s.state, s.closed
		s.mu.Unlock()
		if closed {
			return Snapshot{}, ErrClosed
		}
		if state != StateLoading {
			return s.Snapshot(), nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
}

// begin starts a new generation for ref and enters Loading.
func (s *Session) begin(ref document.Ref) (uint64, error) {
	if ref.Origin == "" {
		ref = ref.WithOrigin(s.o.demo)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	s.gen++
	s.reset()
	s.doc = &ref
	s.state = StateLoading
	s.signal()
	s.settled = make(chan struct{})
	return s.gen, nil
}

// resolve runs the chain outside the lock and commits if gen is current.
func (s *Session) resolve(ctx context.Context, gen uint64, ref document.Ref) (Snapshot, error) {
	res, err := s.o.Resolve(ctx, ref)
	if err != nil && res.State != StateError {
		// Cancelled before any resolver answered. Nothing is committed: the
		// selection stays on the document, idle, for a later Retry.
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return Snapshot{}, ErrClosed
		}
		if gen != s.gen {
			return Snapshot{}, ErrStale
		}
		s.state = StateIdle
		s.signal()
		return s.snapshotLocked(), err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if gen != s.gen {
		s.o.logger.Debug("preview: discarding stale resolution", "session", s.id, "document", ref.ID, "generation", gen, "current", s.gen)
		return Snapshot{}, ErrStale
	}
	s.commitLocked(res)
	return s.snapshotLocked(), nil
}

func (s *Session) commitLocked(res Resolution) {
	s.state = res.State
	s.strategy = res.Strategy
	s.errMsg = res.Error
	s.manualURL = res.ManualURL
	s.embedURL = res.EmbedURL
	s.html = res.HTML
	s.demo = res.Demo
	s.pdf = res.PDF
	if res.PDF != nil {
		s.page = 1
		s.zoom = 1.0
	}
	s.signal()
}

// reset clears everything but the generation. Caller holds mu.
func (s *Session) reset() {
	s.doc = nil
	s.state = StateIdle
	s.strategy = ""
	s.errMsg = ""
	s.manualURL = ""
	s.embedURL = ""
	s.html = ""
	s.demo = false
	s.pdf = nil
	s.page = 0
	s.zoom = 0
	s.scroll = Scroll{}
}

// signal wakes Await callers of the current generation. Caller holds mu.
func (s *Session) signal() {
	select {
	case <-s.settled:
	default:
		close(s.settled)
	}
}

// ChangePage moves by delta pages. Moving outside [1, TotalPages] is a no-op.
// Zoom is preserved.
func (s *Session) ChangePage(delta int) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pagedLocked(); err != nil {
		return Snapshot{}, err
	}
	next := s.page + delta
	if next >= 1 && next <= s.pdf.PageCount() {
		s.page = next
	}
	return s.snapshotLocked(), nil
}

// ZoomBy adds delta to the zoom, clamped to [MinZoom, MaxZoom]. The page is
// preserved.
func (s *Session) ZoomBy(delta float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pagedLocked(); err != nil {
		return Snapshot{}, err
	}
	s.zoom = ClampZoom(s.zoom + delta)
	return s.snapshotLocked(), nil
}

// SetZoom sets the zoom, clamped to [MinZoom, MaxZoom].
func (s *Session) SetZoom(z float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pagedLocked(); err != nil {
		return Snapshot{}, err
	}
	s.zoom = ClampZoom(z)
	return s.snapshotLocked(), nil
}

// FitToScreen sets the zoom that fits the current page in viewport,
// clamped to [MinZoom, MaxZoom].
func (s *Session) FitToScreen(viewport docpipe.Size) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.pagedLocked(); err != nil {
		return Snapshot{}, err
	}
	size, err := s.pdf.PageSize(s.page)
	if err != nil {
		return Snapshot{}, err
	}
	s.zoom = ClampZoom(docpipe.FitZoom(size, viewport, docpipe.FitPadding))
	return s.snapshotLocked(), nil
}

// Render renders the current page at the current zoom.
func (s *Session) Render() (*docpipe.RenderedPage, error) {
	s.mu.Lock()
	if err := s.pagedLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	pdf, page, zoom := s.pdf, s.page, s.zoom
	s.mu.Unlock()
	return pdf.RenderPage(page, zoom)
}

// SetScroll records the viewport scroll position for the current document.
func (s *Session) SetScroll(x, y float64) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	if s.doc == nil {
		return Snapshot{}, ErrNoDocument
	}
	s.scroll = Scroll{X: max(0, x), Y: max(0, y)}
	return s.snapshotLocked(), nil
}

// Snapshot returns a copy of the visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Close cancels pending work and resets to Idle. Later resolutions of this
// session are dropped and every method returns ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cancel()
	s.reset()
	s.signal()
}

func (s *Session) pagedLocked() error {
	if s.closed {
		return ErrClosed
	}
	if s.state != StateShowingLocalPDF || s.pdf == nil {
		return ErrNotPaged
	}
	return nil
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		SessionID:  s.id,
		Generation: s.gen,
		State:      s.state,
		Strategy:   s.strategy,
		Loading:    s.state == StateLoading,
		Error:      s.errMsg,
		ManualURL:  s.manualURL,
		EmbedURL:   s.embedURL,
		HTML:       s.html,
		Demo:       s.demo,
		Scroll:     s.scroll,
	}
	if s.doc != nil {
		doc := *s.doc
		snap.Document = &doc
	}
	if s.pdf != nil {
		snap.PDF = &PDFState{CurrentPage: s.page, TotalPages: s.pdf.PageCount(), Zoom: s.zoom}
	}
	return snap
}
