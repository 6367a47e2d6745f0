// Package engine maps decoded JSON-RPC requests onto the documentation
// service. Both transports drive the same Engine, so the tool surface and
// error taxonomy cannot drift between stdio and HTTP.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/cratedocs/cratedocs/docsvc"
	"github.com/cratedocs/cratedocs/internal/jsonrpc"
	"github.com/cratedocs/cratedocs/mcp"
)

// Engine dispatches protocol methods. It holds no per-session state and is
// safe for concurrent use.
type Engine struct {
	log  *slog.Logger
	svc  *docsvc.Service
	info mcp.ImplementationInfo
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo overrides the advertised implementation info.
func WithServerInfo(info mcp.ImplementationInfo) Option {
	return func(e *Engine) { e.info = info }
}

// New constructs an Engine over the given service.
func New(svc *docsvc.Service, opts ...Option) *Engine {
	e := &Engine{
		log:  slog.Default(),
		svc:  svc,
		info: mcp.ImplementationInfo{Name: docsvc.ServerName, Version: "0.2.0"},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle dispatches one request and returns its response. Notifications
// (nil id) return a nil response: there is nothing to deliver.
func (e *Engine) Handle(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if req.ID.IsNil() {
		e.handleNotification(ctx, req)
		return nil
	}

	switch mcp.Method(req.Method) {
	case mcp.InitializeMethod:
		return e.handleInitialize(ctx, req)
	case mcp.PingMethod:
		return mustResult(req.ID, struct{}{})
	case mcp.ToolsListMethod:
		return mustResult(req.ID, &mcp.ListToolsResult{Tools: e.svc.Registry().List()})
	case mcp.ToolsCallMethod:
		return e.handleToolsCall(ctx, req)
	default:
		e.log.InfoContext(ctx, "rpc.method.unknown", slog.String("method", req.Method))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil)
	}
}

func (e *Engine) handleNotification(ctx context.Context, req *jsonrpc.Request) {
	switch mcp.Method(req.Method) {
	case mcp.InitializedNotificationMethod, mcp.CancelledNotificationMethod:
		e.log.DebugContext(ctx, "rpc.notification", slog.String("method", req.Method))
	default:
		e.log.InfoContext(ctx, "rpc.notification.unknown", slog.String("method", req.Method))
	}
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var initReq mcp.InitializeRequest
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &initReq); err != nil {
			return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid initialize params", nil)
		}
	}
	e.log.InfoContext(ctx, "session.initialize",
		slog.String("client", initReq.ClientInfo.Name),
		slog.String("client_version", initReq.ClientInfo.Version))

	return mustResult(req.ID, &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities:    mcp.ServerCapabilities{Tools: &mcp.ToolsCapability{}},
		ServerInfo:      e.info,
		Instructions:    docsvc.Instructions,
	})
}

func (e *Engine) handleToolsCall(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	var call mcp.CallToolRequest
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeInvalidParams, "invalid tools/call params", nil)
	}

	res, err := e.svc.Registry().Call(ctx, &call)
	if err != nil {
		e.log.InfoContext(ctx, "tool.call.fail",
			slog.String("tool", call.Name),
			slog.String("err", err.Error()))
		return errorResponse(req.ID, err)
	}
	e.log.InfoContext(ctx, "tool.call.ok", slog.String("tool", call.Name))
	return mustResult(req.ID, res)
}

// errorResponse translates the service error taxonomy into JSON-RPC error
// objects. Every failure reaches the caller as a structured, correlated
// response; nothing is swallowed.
func errorResponse(id *jsonrpc.RequestID, err error) *jsonrpc.Response {
	var (
		invalidArgs *docsvc.InvalidArgumentsError
		toolMissing *docsvc.ToolNotFoundError
		notFound    *docsvc.NotFoundError
		lookup      *docsvc.LookupError
	)
	switch {
	case errors.As(err, &invalidArgs):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInvalidParams, invalidArgs.Error(),
			map[string]string{"field": invalidArgs.Field})
	case errors.As(err, &toolMissing):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeMethodNotFound, toolMissing.Error(), nil)
	case errors.As(err, &notFound):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeNotFound, notFound.Error(), nil)
	case errors.As(err, &lookup):
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeLookupFailed, lookup.Error(),
			map[string]string{"cause": lookup.Unwrap().Error()})
	default:
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "internal server error", nil)
	}
}

func mustResult(id *jsonrpc.RequestID, result any) *jsonrpc.Response {
	resp, err := jsonrpc.NewResultResponse(id, result)
	if err != nil {
		return jsonrpc.NewErrorResponse(id, jsonrpc.ErrorCodeInternalError, "failed to encode response", nil)
	}
	return resp
}
