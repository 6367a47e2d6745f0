// Package logctx enriches slog records with request, session, and tool-call
// attributes carried on the context, so call sites log terse event names and
// the correlation data rides along automatically.
package logctx

import (
	"context"
	"log/slog"
)

// Handler wraps another slog.Handler and appends context-carried groups.
type Handler struct {
	slog.Handler
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if rd, ok := ctx.Value(requestKey{}).(*Request); ok {
		r.AddAttrs(slog.Group("req",
			slog.String("id", rd.RequestID),
			slog.String("method", rd.Method),
			slog.String("remote_addr", rd.RemoteAddr),
			slog.String("path", rd.Path),
		))
	}
	if sd, ok := ctx.Value(sessionKey{}).(*Session); ok {
		r.AddAttrs(slog.Group("sess", slog.String("token", sd.Token)))
	}
	if tc, ok := ctx.Value(toolCallKey{}).(*ToolCall); ok {
		r.AddAttrs(slog.Group("tool", slog.String("name", tc.Name)))
	}
	return h.Handler.Handle(ctx, r)
}

func (h Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return Handler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h Handler) WithGroup(name string) slog.Handler {
	return Handler{Handler: h.Handler.WithGroup(name)}
}

type requestKey struct{}

// Request carries per-HTTP-request correlation data.
type Request struct {
	RequestID  string
	Method     string
	RemoteAddr string
	Path       string
}

// WithRequest attaches request data to the context.
func WithRequest(ctx context.Context, r *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, r)
}

type sessionKey struct{}

// Session carries the session token of the owning logical conversation.
type Session struct {
	Token string
}

// WithSession attaches session data to the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

type toolCallKey struct{}

// ToolCall names the tool being executed.
type ToolCall struct {
	Name string
}

// WithToolCall attaches tool-call data to the context.
func WithToolCall(ctx context.Context, t *ToolCall) context.Context {
	return context.WithValue(ctx, toolCallKey{}, t)
}
