// CLAUDE:SUMMARY MCP tools over the preview pipeline: type detection, embed URLs, stateless resolution, text preview.
package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/viewer"
)

// DocumentLookup finds a document by id. Implemented by backend.Store.
type DocumentLookup interface {
	GetDocument(ctx context.Context, id string) (document.Ref, error)
}

// RegisterMCP registers the preview tools on an MCP server.
func (o *Orchestrator) RegisterMCP(srv *mcp.Server, docs DocumentLookup) {
	o.registerDetectTool(srv)
	o.registerEmbedTool(srv)
	o.registerResolveTool(srv, docs)
	o.registerTextTool(srv, docs)
}

// instrument wraps a tool endpoint with debug timing and failure logs.
func (o *Orchestrator) instrument(name string, ep kit.Endpoint) kit.Endpoint {
	logged := func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, req any) (any, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			if err != nil {
				o.logger.Warn("preview: mcp tool failed", append([]any{"tool", name, "error", err}, kit.LogAttrs(ctx)...)...)
				return resp, err
			}
			o.logger.Debug("preview: mcp tool",
				append([]any{"tool", name, "duration_ms", time.Since(start).Milliseconds()}, kit.LogAttrs(ctx)...)...)
			return resp, nil
		}
	}
	return kit.Chain(logged)(ep)
}

// --- ecabinet_detect_type ---

type detectReq struct {
	Name string `json:"name"`
}

func (o *Orchestrator) registerDetectTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ecabinet_detect_type",
		Description: "Classify a file name as pdf, doc, xls, ppt or other from its extension.",
		InputSchema: kit.InputSchema(map[string]any{
			"name": map[string]any{"type": "string", "description": "File name, e.g. report.PDF"},
		}, []string{"name"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*detectReq)
		return map[string]string{"type": string(document.DetectType(r.Name))}, nil
	}
	kit.RegisterMCPTool(srv, tool, o.instrument(tool.Name, endpoint), kit.DecodeJSON[detectReq]())
}

// --- ecabinet_embed_url ---

type embedReq struct {
	Kind string `json:"kind"`
	URL  string `json:"url"`
	Type string `json:"type"`
}

func (o *Orchestrator) registerEmbedTool(srv *mcp.Server) {
	tool := &mcp.Tool{
		Name:        "ecabinet_embed_url",
		Description: "Build the Microsoft or Google viewer embed URL for a public document URL. Without kind, the viewer is picked from type.",
		InputSchema: kit.InputSchema(map[string]any{
			"url":  map[string]any{"type": "string", "description": "Public document URL"},
			"kind": map[string]any{"type": "string", "enum": []string{"microsoft", "google"}},
			"type": map[string]any{"type": "string", "description": "Document type or file name, used when kind is empty"},
		}, []string{"url"}),
	}
	endpoint := func(_ context.Context, req any) (any, error) {
		r := req.(*embedReq)
		if r.URL == "" {
			return nil, errors.New("url is required")
		}
		kind := viewer.Kind(r.Kind)
		switch kind {
		case viewer.Microsoft, viewer.Google:
		case "":
			t := document.Type(r.Type)
			switch t {
			case document.TypePDF, document.TypeDoc, document.TypeXls, document.TypePpt, document.TypeOther:
			default:
				t = document.DetectType(r.Type)
			}
			kind = viewer.KindFor(t)
		default:
			return nil, fmt.Errorf("unknown viewer kind %q", r.Kind)
		}
		return map[string]string{"kind": string(kind), "embed_url": viewer.BuildEmbedURL(kind, r.URL)}, nil
	}
	kit.RegisterMCPTool(srv, tool, o.instrument(tool.Name, endpoint), kit.DecodeJSON[embedReq]())
}

// --- ecabinet_resolve_preview ---

type documentReq struct {
	DocumentID string `json:"document_id"`
}

// ResolveSummary is the JSON form of a Resolution.
type ResolveSummary struct {
	DocumentID string   `json:"document_id"`
	Strategy   Strategy `json:"strategy"`
	State      State    `json:"state"`
	Pages      int      `json:"pages,omitempty"`
	EmbedURL   string   `json:"embed_url,omitempty"`
	ManualURL  string   `json:"manual_url,omitempty"`
	Demo       bool     `json:"demo,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Summarize converts a Resolution for JSON output.
func Summarize(id string, res Resolution) ResolveSummary {
	s := ResolveSummary{
		DocumentID: id,
		Strategy:   res.Strategy,
		State:      res.State,
		EmbedURL:   res.EmbedURL,
		ManualURL:  res.ManualURL,
		Demo:       res.Demo,
		Error:      res.Error,
	}
	if res.PDF != nil {
		s.Pages = res.PDF.PageCount()
	}
	return s
}

func (o *Orchestrator) registerResolveTool(srv *mcp.Server, docs DocumentLookup) {
	tool := &mcp.Tool{
		Name:        "ecabinet_resolve_preview",
		Description: "Resolve how a document would be previewed: local-pdf, local-docx, remote-microsoft, remote-google or none.",
		InputSchema: kit.InputSchema(map[string]any{
			"document_id": map[string]any{"type": "string"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*documentReq)
		ref, err := docs.GetDocument(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		res, err := o.Resolve(ctx, ref)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return Summarize(ref.ID, res), nil
	}
	kit.RegisterMCPTool(srv, tool, o.instrument(tool.Name, endpoint), kit.DecodeJSON[documentReq]())
}

// --- ecabinet_preview_text ---

func (o *Orchestrator) registerTextTool(srv *mcp.Server, docs DocumentLookup) {
	tool := &mcp.Tool{
		Name:        "ecabinet_preview_text",
		Description: "Return the previewable text of a document as Markdown: converted DOCX or sample content, or the text of each PDF page.",
		InputSchema: kit.InputSchema(map[string]any{
			"document_id": map[string]any{"type": "string"},
		}, []string{"document_id"}),
	}
	endpoint := func(ctx context.Context, req any) (any, error) {
		r := req.(*documentReq)
		ref, err := docs.GetDocument(ctx, r.DocumentID)
		if err != nil {
			return nil, err
		}
		res, err := o.Resolve(ctx, ref)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"document_id": ref.ID,
			"strategy":    res.Strategy,
			"markdown":    o.previewText(res),
		}, nil
	}
	kit.RegisterMCPTool(srv, tool, o.instrument(tool.Name, endpoint), kit.DecodeJSON[documentReq]())
}

// previewText renders a resolution as Markdown. Remote resolutions have no
// local text and yield "".
func (o *Orchestrator) previewText(res Resolution) string {
	switch {
	case res.PDF != nil:
		var md strings.Builder
		for n := 1; n <= res.PDF.PageCount(); n++ {
			fmt.Fprintf(&md, "## Page %d\n\n%s\n\n", n, res.PDF.Text(n))
		}
		return strings.TrimSpace(md.String())
	case res.HTML != "":
		return o.pipe.Markdown(res.HTML)
	}
	return ""
}
