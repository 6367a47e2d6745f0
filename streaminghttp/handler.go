package streaminghttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/elnormous/contenttype"
	"github.com/google/uuid"

	"github.com/cratedocs/cratedocs/internal/engine"
	"github.com/cratedocs/cratedocs/internal/framing"
	"github.com/cratedocs/cratedocs/internal/jsonrpc"
	"github.com/cratedocs/cratedocs/internal/logctx"
	"github.com/cratedocs/cratedocs/sessions"
)

const (
	// DefaultEndpointPath is where the SSE surface is mounted.
	DefaultEndpointPath = "/sse"

	sessionTokenParam = "sessionId"
	lastEventIDHeader = "Last-Event-ID"
)

var (
	jsonMediaType         = contenttype.NewMediaType("application/json")
	eventStreamMediaType  = contenttype.NewMediaType("text/event-stream")
	eventStreamMediaTypes = []contenttype.MediaType{eventStreamMediaType}
)

// writeJSONError writes a minimal JSON error body with the given status.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithEndpointPath mounts the SSE surface somewhere other than /sse.
func WithEndpointPath(path string) Option {
	return func(h *Handler) {
		if path != "" {
			h.path = path
		}
	}
}

// WithMaxBodySize bounds an inbound POST body. Values of zero or less select
// framing.DefaultMaxFrameSize, keeping the two transports' inbound caps
// aligned.
func WithMaxBodySize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxBody = n
		}
	}
}

// Handler is the HTTP+SSE transport. One Handler owns one sessions.Hub; the
// hub owns every live session token.
type Handler struct {
	log     *slog.Logger
	eng     *engine.Engine
	hub     *sessions.Hub
	path    string
	maxBody int64
	mux     *http.ServeMux
}

// New constructs a Handler serving the SSE surface at DefaultEndpointPath.
func New(eng *engine.Engine, hub *sessions.Hub, opts ...Option) (*Handler, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if hub == nil {
		return nil, fmt.Errorf("session hub is required")
	}

	h := &Handler{
		log:     slog.Default(),
		eng:     eng,
		hub:     hub,
		path:    DefaultEndpointPath,
		maxBody: framing.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = slog.New(logctx.Handler{Handler: h.log.Handler()})

	mux := http.NewServeMux()
	mux.HandleFunc(fmt.Sprintf("GET %s", h.path), h.handleGetSSE)
	mux.HandleFunc(fmt.Sprintf("POST %s", h.path), h.handlePostSSE)
	mux.HandleFunc(fmt.Sprintf("DELETE %s", h.path), h.handleDeleteSSE)
	h.mux = mux
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r.WithContext(logctx.WithRequest(r.Context(), &logctx.Request{
		RequestID:  uuid.NewString(),
		Method:     r.Method,
		RemoteAddr: r.RemoteAddr,
		Path:       r.URL.Path,
	})))
}

// handleGetSSE opens a new session and holds the event stream open. The
// first event names the session-scoped POST endpoint; every later event is
// an outbound message drained from the session's queue. Disconnecting closes
// the session.
func (h *Handler) handleGetSSE(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	if _, _, err := contenttype.GetAcceptableMediaType(r, eventStreamMediaTypes); err != nil {
		w.WriteHeader(http.StatusNotAcceptable)
		h.log.WarnContext(ctx, "http.get.not_acceptable")
		return
	}

	f, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		h.log.ErrorContext(ctx, "sse.flusher.missing")
		return
	}
	wf := &lockedWriteFlusher{Writer: w, Flusher: f, ctx: ctx}

	// A plain GET opens a session this stream owns; a GET naming an existing
	// token reattaches to it, which is how Last-Event-ID resume works after
	// a dropped connection.
	token := r.URL.Query().Get(sessionTokenParam)
	owned := token == ""
	if owned {
		var err error
		if token, err = h.hub.Open(ctx); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			h.log.ErrorContext(ctx, "session.open.fail", slog.String("err", err.Error()))
			return
		}
	} else if _, err := h.hub.CreatedAt(token); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}
	ctx = logctx.WithSession(ctx, &logctx.Session{Token: token})
	if owned {
		defer func() {
			if err := h.hub.Close(context.WithoutCancel(ctx), token); err == nil {
				h.log.InfoContext(ctx, "session.close")
			}
		}()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	wf.Flush()

	endpoint := fmt.Sprintf("%s?%s=%s", h.path, sessionTokenParam, token)
	if err := writeSSEEvent(wf, "endpoint", "", []byte(endpoint)); err != nil {
		h.log.ErrorContext(ctx, "sse.endpoint.write.fail", slog.String("err", err.Error()))
		return
	}
	h.log.InfoContext(ctx, "sse.stream.start")

	lastEventID := r.Header.Get(lastEventIDHeader)
	err := h.hub.Subscribe(ctx, token, lastEventID, func(cbCtx context.Context, eventID string, data []byte) error {
		if err := writeSSEEvent(wf, "message", eventID, data); err != nil {
			h.log.ErrorContext(cbCtx, "sse.write.fail", slog.String("err", err.Error()))
			return err
		}
		h.log.InfoContext(cbCtx, "sse.message.deliver", slog.String("event_id", eventID))
		return nil
	})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		h.log.InfoContext(ctx, "sse.stream.end", slog.Duration("dur", time.Since(start)))
	default:
		h.log.ErrorContext(ctx, "sse.stream.fail", slog.String("err", err.Error()))
	}
}

// handlePostSSE accepts one JSON-RPC message for an existing session and
// returns 202 Accepted. Dispatch happens on its own goroutine with a context
// detached from the POST, so a caller hanging up on the 202 never cancels
// the work; the response lands on the session's queue.
func (h *Handler) handlePostSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	h.log.InfoContext(ctx, "http.post.start")

	ctype, err := contenttype.GetMediaType(r)
	if err != nil || !ctype.Matches(jsonMediaType) {
		writeJSONError(w, http.StatusUnsupportedMediaType, "content-type must be application/json")
		h.log.WarnContext(ctx, "content_type.unsupported")
		return
	}

	token := r.URL.Query().Get(sessionTokenParam)
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId")
		h.log.WarnContext(ctx, "session.token.missing")
		return
	}
	ctx = logctx.WithSession(ctx, &logctx.Session{Token: token})
	if _, err := h.hub.CreatedAt(token); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.load.miss")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxBody+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read body")
		h.log.WarnContext(ctx, "body.read.fail", slog.String("err", err.Error()))
		return
	}
	if int64(len(body)) > h.maxBody {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "body exceeds maximum size")
		h.log.WarnContext(ctx, "body.too_large", slog.Int("bytes", len(body)))
		return
	}
	if len(body) > 0 && body[0] == '[' {
		writeJSONError(w, http.StatusBadRequest, "JSON-RPC batch arrays are not supported")
		h.log.WarnContext(ctx, "jsonrpc.batch.forbidden")
		return
	}

	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON-RPC message")
		h.log.WarnContext(ctx, "jsonrpc.decode.fail", slog.String("err", err.Error()))
		return
	}

	if req := msg.AsRequest(); req != nil {
		// Keep log correlation but survive the POST returning.
		dispatchCtx := context.WithoutCancel(ctx)
		go func() {
			resp := h.eng.Handle(dispatchCtx, req)
			if resp == nil {
				return
			}
			b, err := json.Marshal(resp)
			if err != nil {
				h.log.ErrorContext(dispatchCtx, "rpc.response.encode.fail", slog.String("err", err.Error()))
				return
			}
			if _, err := h.hub.Publish(dispatchCtx, token, b); err != nil {
				// Session closed while the call ran. Delivery is dropped,
				// the shared fetch was not.
				h.log.InfoContext(dispatchCtx, "rpc.response.drop", slog.String("err", err.Error()))
			}
		}()
	} else {
		h.log.DebugContext(ctx, "rpc.inbound.response.ignored")
	}

	w.WriteHeader(http.StatusAccepted)
	h.log.InfoContext(ctx, "http.post.accepted")
}

// handleDeleteSSE closes an existing session and discards its queue.
func (h *Handler) handleDeleteSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := r.URL.Query().Get(sessionTokenParam)
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "missing sessionId")
		return
	}
	ctx = logctx.WithSession(ctx, &logctx.Session{Token: token})

	if err := h.hub.Close(ctx, token); err != nil {
		writeJSONError(w, http.StatusNotFound, "session not found")
		h.log.InfoContext(ctx, "session.delete.miss")
		return
	}
	w.WriteHeader(http.StatusNoContent)
	h.log.InfoContext(ctx, "session.delete")
}

// lockedWriteFlusher wraps an io.Writer + http.Flusher with a mutex and an
// optional context. It serializes concurrent writes/flushes and avoids
// writing after ctx is canceled.
type lockedWriteFlusher struct {
	io.Writer
	http.Flusher
	mu  sync.Mutex
	ctx context.Context
}

func (l *lockedWriteFlusher) Write(p []byte) (int, error) {
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return 0, l.ctx.Err()
	}
	return l.Writer.Write(p)
}

func (l *lockedWriteFlusher) Flush() {
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx != nil && l.ctx.Err() != nil {
		return
	}
	l.Flusher.Flush()
}

// writeSSEEvent writes one Server-Sent Event and flushes it. The payload
// must not contain newlines; JSON-RPC messages never do.
func writeSSEEvent(wf *lockedWriteFlusher, event, msgID string, payload []byte) error {
	if event != "" {
		if _, err := fmt.Fprintf(wf, "event: %s\n", event); err != nil {
			return fmt.Errorf("write SSE event type: %w", err)
		}
	}
	if msgID != "" {
		if _, err := fmt.Fprintf(wf, "id: %s\n", msgID); err != nil {
			return fmt.Errorf("write SSE event id: %w", err)
		}
	}
	if _, err := wf.Write([]byte("data: ")); err != nil {
		return fmt.Errorf("write SSE data prefix: %w", err)
	}
	if _, err := wf.Write(payload); err != nil {
		return fmt.Errorf("write SSE payload: %w", err)
	}
	if _, err := wf.Write([]byte("\n\n")); err != nil {
		return fmt.Errorf("write SSE frame terminator: %w", err)
	}
	wf.Flush()
	return nil
}
