// CLAUDE:SUMMARY Adapts a kit Endpoint into an MCP tool: decode arguments, call, JSON-encode the response as text content.
package kit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPDecodeResult holds the decoded request and an optional context enrichment.
type MCPDecodeResult struct {
	Request   any
	EnrichCtx func(context.Context) context.Context
}

// RegisterMCPTool registers an Endpoint as an MCP tool on the given server.
// The decode function extracts the typed request from req.Params.Arguments.
// Decode and endpoint failures come back as tool results with IsError set so
// the client sees them; only a broken session is a protocol error.
func RegisterMCPTool(srv *mcp.Server, tool *mcp.Tool, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) {
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return callTool(WithTransport(ctx, TransportMCP), req, endpoint, decode), nil
	})
}

func callTool(ctx context.Context, req *mcp.CallToolRequest, endpoint Endpoint, decode func(*mcp.CallToolRequest) (*MCPDecodeResult, error)) *mcp.CallToolResult {
	decoded, err := decode(req)
	if err != nil {
		return toolError(fmt.Errorf("invalid arguments: %w", err))
	}
	if decoded.EnrichCtx != nil {
		ctx = decoded.EnrichCtx(ctx)
	}
	resp, err := endpoint(ctx, decoded.Request)
	if err != nil {
		// Only the message crosses the wire.
		return toolError(errors.New(err.Error()))
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return toolError(fmt.Errorf("marshal %T: %w", resp, err))
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

func toolError(err error) *mcp.CallToolResult {
	var res mcp.CallToolResult
	res.SetError(err)
	return &res
}

// DecodeJSON returns a decode function that unmarshals the tool arguments
// into a fresh value of T.
func DecodeJSON[T any]() func(*mcp.CallToolRequest) (*MCPDecodeResult, error) {
	return func(req *mcp.CallToolRequest) (*MCPDecodeResult, error) {
		var r T
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &r); err != nil {
				return nil, err
			}
		}
		return &MCPDecodeResult{Request: &r}, nil
	}
}

// InputSchema builds a JSON object schema from property definitions.
func InputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}
