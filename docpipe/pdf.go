// CLAUDE:SUMMARY PDF handle backed by pdfcpu — page count, natural page sizes, deterministic per-page render.
// CLAUDE:DEPENDS docpipe/pdftext.go
package docpipe

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"strconv"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PDF is an opened, validated PDF document. The page count is fixed at open
// time. Safe for concurrent use.
type PDF struct {
	mu    sync.Mutex
	data  []byte
	ctx   *model.Context
	dims  []Size
	pages int
}

func openPDF(data []byte) (*PDF, error) {
	conf := model.NewDefaultConfiguration()
	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("%w: pdfcpu read: %v", ErrDecode, err)
	}
	if ctx.PageCount < 1 {
		return nil, fmt.Errorf("%w: pdf has no pages", ErrDecode)
	}

	dims, err := ctx.PageDims()
	if err != nil {
		return nil, fmt.Errorf("%w: page dimensions: %v", ErrDecode, err)
	}
	sizes := make([]Size, len(dims))
	for i, d := range dims {
		sizes[i] = Size{Width: d.Width, Height: d.Height}
	}

	return &PDF{data: data, ctx: ctx, dims: sizes, pages: ctx.PageCount}, nil
}

// PageCount returns the number of pages.
func (d *PDF) PageCount() int { return d.pages }

// PageSize returns the natural size of page n (1-indexed) at zoom 1.
func (d *PDF) PageSize(n int) (Size, error) {
	if n < 1 || n > d.pages {
		return Size{}, fmt.Errorf("page %d out of range [1, %d]", n, d.pages)
	}
	if n-1 < len(d.dims) {
		return d.dims[n-1], nil
	}
	// pdfcpu reported fewer dims than pages; fall back to US Letter.
	return Size{Width: 612, Height: 792}, nil
}

// RenderPage renders page n (1-indexed) at zoom. Rendering the same page at
// the same zoom yields identical output. Zoom bounds are the caller's concern;
// only non-positive values are rejected.
func (d *PDF) RenderPage(n int, zoom float64) (*RenderedPage, error) {
	if zoom <= 0 || math.IsNaN(zoom) || math.IsInf(zoom, 0) {
		return nil, fmt.Errorf("invalid zoom %v", zoom)
	}
	size, err := d.PageSize(n)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var page bytes.Buffer
	conf := model.NewDefaultConfiguration()
	if err := api.Trim(bytes.NewReader(d.data), &page, []string{strconv.Itoa(n)}, conf); err != nil {
		return nil, fmt.Errorf("extract page %d: %w", n, err)
	}

	return &RenderedPage{
		Page:   n,
		Zoom:   zoom,
		Width:  int(math.Round(size.Width * zoom)),
		Height: int(math.Round(size.Height * zoom)),
		Text:   d.pageText(n),
		PDF:    page.Bytes(),
	}, nil
}

// Text returns the text of page n, or "" when none can be extracted.
func (d *PDF) Text(n int) string {
	if n < 1 || n > d.pages {
		return ""
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pageText(n)
}

// pageText must be called with d.mu held.
func (d *PDF) pageText(n int) string {
	r, err := pdfcpu.ExtractPageContent(d.ctx, n)
	if err != nil || r == nil {
		return ""
	}
	data, err := io.ReadAll(r)
	if err != nil || len(data) == 0 {
		return ""
	}
	return extractTextFromStream(data)
}
