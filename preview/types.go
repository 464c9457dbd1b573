// CLAUDE:SUMMARY Preview states, strategies, snapshots and the tagged resolver Outcome.
package preview

import (
	"errors"
	"math"

	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/document"
)

var (
	// ErrNotFound: no local binary, no usable remote URL, not a demo document.
	ErrNotFound = errors.New("preview: no renderable source found")
	// ErrStale: a newer selection superseded this resolution; its result was discarded.
	ErrStale = errors.New("preview: resolution superseded by a newer selection")
	// ErrClosed: the session was closed.
	ErrClosed = errors.New("preview: session closed")
	// ErrNotPaged: page or zoom control requested while no local PDF is shown.
	ErrNotPaged = errors.New("preview: no local PDF open")
	// ErrNoDocument: retry requested before any document was selected.
	ErrNoDocument = errors.New("preview: no document selected")
)

// State is the preview session state.
type State string

const (
	StateIdle             State = "idle"
	StateLoading          State = "loading"
	StateShowingLocalPDF  State = "showing_local_pdf"
	StateShowingLocalDocx State = "showing_local_docx"
	StateShowingRemote    State = "showing_remote"
	StateError            State = "error"
)

// Terminal reports whether s is one of the four settled states.
func (s State) Terminal() bool {
	switch s {
	case StateShowingLocalPDF, StateShowingLocalDocx, StateShowingRemote, StateError:
		return true
	}
	return false
}

// Strategy is the rendering path a resolution settled on.
type Strategy string

const (
	StrategyLocalPDF        Strategy = "local-pdf"
	StrategyLocalDocx       Strategy = "local-docx"
	StrategyRemoteMicrosoft Strategy = "remote-microsoft"
	StrategyRemoteGoogle    Strategy = "remote-google"
	StrategyNone            Strategy = "none"
)

// Zoom bounds enforced on sessions. Renderers accept any positive zoom.
const (
	MinZoom  = 0.5
	MaxZoom  = 3.0
	ZoomStep = 0.1
)

// ClampZoom bounds z to [MinZoom, MaxZoom], rounded to two decimals so
// repeated steps do not accumulate float drift.
func ClampZoom(z float64) float64 {
	if math.IsNaN(z) {
		return 1
	}
	z = math.Round(z*100) / 100
	return math.Max(MinZoom, math.Min(MaxZoom, z))
}

// Resolution is a settled rendering choice for one document.
type Resolution struct {
	Strategy  Strategy
	State     State
	PDF       *docpipe.PDF // StrategyLocalPDF
	HTML      string       // StrategyLocalDocx (converted or demo)
	Demo      bool         // HTML is the sample placeholder
	EmbedURL  string       // remote strategies
	ManualURL string       // StateError: raw RemoteURL, if any
	Error     string       // StateError: user-facing message
}

// OutcomeKind tags a resolver result.
type OutcomeKind int

const (
	NotApplicable OutcomeKind = iota
	Resolved
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	}
	return "not_applicable"
}

// Outcome is what one resolver step returns: Resolved with a Resolution,
// NotApplicable, or Failed with a reason. Failed does not stop the chain.
type Outcome struct {
	Kind       OutcomeKind
	Resolution Resolution
	Reason     error
}

func resolved(r Resolution) Outcome { return Outcome{Kind: Resolved, Resolution: r} }

func failed(reason error) Outcome { return Outcome{Kind: Failed, Reason: reason} }

func notApplicable() Outcome { return Outcome{Kind: NotApplicable} }

// PDFState is the pagination and zoom of a local PDF preview.
type PDFState struct {
	CurrentPage int     `json:"current_page"`
	TotalPages  int     `json:"total_pages"`
	Zoom        float64 `json:"zoom"`
}

// Scroll is the viewport scroll position, restored by clients after re-render.
type Scroll struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Snapshot is a copy of a session's visible state.
type Snapshot struct {
	SessionID  string        `json:"session_id"`
	Generation uint64        `json:"generation"`
	Document   *document.Ref `json:"document,omitempty"`
	State      State         `json:"state"`
	Strategy   Strategy      `json:"strategy,omitempty"`
	Loading    bool          `json:"loading"`
	Error      string        `json:"error,omitempty"`
	ManualURL  string        `json:"manual_url,omitempty"`
	EmbedURL   string        `json:"embed_url,omitempty"`
	HTML       string        `json:"html,omitempty"`
	Demo       bool          `json:"demo,omitempty"`
	PDF        *PDFState     `json:"pdf,omitempty"`
	Scroll     Scroll        `json:"scroll"`
}
