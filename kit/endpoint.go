// CLAUDE:SUMMARY Transport-agnostic Endpoint and Middleware types shared by the MCP tool adapter.
// Package kit holds the small transport-agnostic plumbing shared by the HTTP
// and MCP surfaces: the Endpoint function type, middleware chaining, the MCP
// tool adapter and request-scoped context values.
package kit

import "context"

// Endpoint handles one decoded request and returns a JSON-serializable response.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
