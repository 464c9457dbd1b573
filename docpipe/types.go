// CLAUDE:SUMMARY Size and RenderedPage types, plus the fit-to-screen zoom computation.
package docpipe

import "math"

// Size is a width/height pair. Page sizes are in PDF points at zoom 1.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RenderedPage is one PDF page rendered at a zoom factor.
type RenderedPage struct {
	Page   int     `json:"page"`
	Zoom   float64 `json:"zoom"`
	Width  int     `json:"width"`  // pixels at Zoom
	Height int     `json:"height"` // pixels at Zoom
	Text   string  `json:"text"`
	PDF    []byte  `json:"-"` // the page alone, as a standalone PDF
}

// FitPadding is the padding allowance used by fit-to-screen.
const FitPadding = 10

// FitZoom returns the zoom factor that fits page inside viewport, keeping
// padding free on each axis: the smaller of the two axis ratios.
// Degenerate sizes yield 1.
func FitZoom(page, viewport Size, padding float64) float64 {
	if page.Width <= 0 || page.Height <= 0 {
		return 1
	}
	w := (viewport.Width - padding) / page.Width
	h := (viewport.Height - padding) / page.Height
	z := math.Min(w, h)
	if z <= 0 || math.IsNaN(z) || math.IsInf(z, 0) {
		return 1
	}
	return z
}
