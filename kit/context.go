// CLAUDE:SUMMARY Request-scoped values shared by the HTTP and MCP surfaces: caller id, transport, trace id, preview session id.
package kit

import "context"

type ctxKey int

const (
	userKey ctxKey = iota
	transportKey
	traceKey
	sessionKey
)

// Transports reported by GetTransport.
const (
	TransportHTTP = "http"
	TransportMCP  = "mcp"
)

// WithUserID records the caller: the meeting viewer, chat sender or uploader.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey, id)
}

func GetUserID(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func WithTransport(ctx context.Context, t string) context.Context {
	return context.WithValue(ctx, transportKey, t)
}

// GetTransport defaults to TransportHTTP.
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return TransportHTTP
}

func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey, id)
}

func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(traceKey).(string)
	return v
}

// WithSessionID records the preview session a request operates on.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey, id)
}

func GetSessionID(ctx context.Context) string {
	v, _ := ctx.Value(sessionKey).(string)
	return v
}

// LogAttrs returns the caller and session as slog key/value pairs,
// omitting the empty ones.
func LogAttrs(ctx context.Context) []any {
	var attrs []any
	if v := GetUserID(ctx); v != "" {
		attrs = append(attrs, "user_id", v)
	}
	if v := GetSessionID(ctx); v != "" {
		attrs = append(attrs, "session_id", v)
	}
	attrs = append(attrs, "transport", GetTransport(ctx))
	return attrs
}
