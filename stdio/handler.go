package stdio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/cratedocs/cratedocs/internal/engine"
	"github.com/cratedocs/cratedocs/internal/framing"
	"github.com/cratedocs/cratedocs/internal/jsonrpc"
)

// Handler is a single-connection stdio transport. It reads JSON-RPC frames
// from an io.Reader and writes responses to an io.Writer; by default it uses
// os.Stdin and os.Stdout.
//
// The handler is transport-only: all protocol semantics live in the shared
// engine, so stdio and HTTP peers see an identical tool surface.
type Handler struct {
	r        io.Reader
	w        io.Writer
	l        *slog.Logger
	eng      *engine.Engine
	maxFrame int
}

// NewHandler constructs a stdio Handler with defaults and applies options.
func NewHandler(eng *engine.Engine, opts ...Option) *Handler {
	h := &Handler{
		r:        os.Stdin,
		w:        os.Stdout,
		l:        slog.Default(),
		eng:      eng,
		maxFrame: framing.DefaultMaxFrameSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve runs the read loop until EOF on the reader, a fatal stream error, or
// context cancellation. Requests are dispatched concurrently, but responses
// are written in the order their frames were decoded, so a slow tool call
// never reorders the stream. Cancellation takes effect at the next read.
//
// An oversized or otherwise unrecoverable frame is fatal: the stream
// position can no longer be trusted, so Serve returns the framing error.
// A frame that is valid framing but invalid JSON is answered with a
// parse-error response and the session continues.
func (h *Handler) Serve(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	// Each decoded frame reserves a slot; the writer drains slots in order.
	order := make(chan chan *jsonrpc.Response, 64)

	g.Go(func() error {
		for slot := range order {
			var resp *jsonrpc.Response
			select {
			case resp = <-slot:
			case <-ctx.Done():
				return ctx.Err()
			}
			if resp == nil {
				continue
			}
			b, err := json.Marshal(resp)
			if err != nil {
				return fmt.Errorf("encode response: %w", err)
			}
			if err := framing.WriteFrame(h.w, b); err != nil {
				return err
			}
		}
		return nil
	})

	g.Go(func() error {
		defer close(order)

		dec := framing.NewDecoder(h.maxFrame)
		buf := make([]byte, 32*1024)
		for {
			for {
				frame, err := dec.Next()
				if err != nil {
					return fmt.Errorf("inbound stream: %w", err)
				}
				if frame == nil {
					break
				}
				if len(frame) == 0 {
					continue
				}
				if err := h.dispatch(ctx, g, order, frame); err != nil {
					return err
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			n, err := h.r.Read(buf)
			if n > 0 {
				dec.Feed(buf[:n])
			}
			if err != nil {
				if errors.Is(err, io.EOF) {
					if dec.Buffered() > 0 {
						h.l.DebugContext(ctx, "stdio.eof.partial_frame",
							slog.Int("buffered", dec.Buffered()))
					}
					h.l.InfoContext(ctx, "stdio.eof")
					return nil
				}
				return fmt.Errorf("read inbound stream: %w", err)
			}
		}
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Handler) dispatch(ctx context.Context, g *errgroup.Group, order chan chan *jsonrpc.Response, frame []byte) error {
	slot := make(chan *jsonrpc.Response, 1)

	var msg jsonrpc.AnyMessage
	switch err := json.Unmarshal(frame, &msg); {
	case err != nil:
		h.l.InfoContext(ctx, "rpc.inbound.parse_error", slog.String("err", err.Error()))
		slot <- jsonrpc.NewErrorResponse(nil, jsonrpc.ErrorCodeParseError, "parse error", nil)
	default:
		if req := msg.AsRequest(); req != nil {
			g.Go(func() error {
				slot <- h.eng.Handle(ctx, req)
				return nil
			})
		} else {
			// Clients have no server-initiated requests to answer, so an
			// inbound response frame correlates with nothing.
			h.l.DebugContext(ctx, "rpc.inbound.response.ignored")
			slot <- nil
		}
	}

	select {
	case order <- slot:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
