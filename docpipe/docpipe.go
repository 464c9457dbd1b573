// CLAUDE:SUMMARY Binary renderers for previews — PDF open/page render via pdfcpu, DOCX to sanitized HTML, demo placeholder.
// Package docpipe turns raw document bytes into previewable output.
//
// Supported inputs:
//   - PDF: opened and validated with pdfcpu; pages are rendered one at a time
//     at a zoom factor (pixel dimensions, page text, single-page PDF).
//   - DOCX: word/document.xml is converted to an HTML tree
//     (golang.org/x/net/html) and sanitized with bluemonday.
//
// Any input that cannot be decoded fails with an error wrapping ErrDecode so
// callers can fall through to another rendering strategy.
//
// Usage:
//
//	pipe := docpipe.New(docpipe.Config{})
//	pdf, err := pipe.OpenPDF(data)
//	page, err := pdf.RenderPage(1, 1.5)
//	html, err := pipe.ConvertDocx(data)
package docpipe

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// ErrDecode is wrapped by every error caused by bytes that are not a valid
// document of the requested format.
var ErrDecode = errors.New("docpipe: decode failed")

// Pipeline renders document binaries.
type Pipeline struct {
	cfg         Config
	logger      *slog.Logger
	policy      *bluemonday.Policy
	mdConverter *converter.Converter
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
		policy: previewPolicy(),
		mdConverter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// OpenPDF parses and validates a PDF binary.
func (p *Pipeline) OpenPDF(data []byte) (*PDF, error) {
	if err := p.checkSize(data); err != nil {
		return nil, err
	}
	doc, err := openPDF(data)
	if err != nil {
		p.logger.Debug("pdf decode failed", "size", len(data), "error", err)
		return nil, err
	}
	if p.cfg.MaxPages > 0 && doc.PageCount() > p.cfg.MaxPages {
		return nil, fmt.Errorf("%w: %d pages (max %d)", ErrDecode, doc.PageCount(), p.cfg.MaxPages)
	}
	p.logger.Debug("pdf opened", "pages", doc.PageCount(), "size", len(data))
	return doc, nil
}

// ConvertDocx converts a DOCX binary into a sanitized HTML fragment.
func (p *Pipeline) ConvertDocx(data []byte) (string, error) {
	if err := p.checkSize(data); err != nil {
		return "", err
	}
	out, err := convertDocx(data, p.cfg.MaxDocxXML)
	if err != nil {
		p.logger.Debug("docx decode failed", "size", len(data), "error", err)
		return "", err
	}
	return p.Sanitize(out), nil
}

func (p *Pipeline) checkSize(data []byte) error {
	if int64(len(data)) > p.cfg.MaxFileSize {
		return fmt.Errorf("%w: file too large: %d bytes (max %d)", ErrDecode, len(data), p.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty input", ErrDecode)
	}
	return nil
}
