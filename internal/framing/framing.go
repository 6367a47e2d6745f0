// Package framing converts the raw byte stream of the stdio transport into
// discrete JSON-RPC frames and back. One frame is one line: the message's
// JSON encoding terminated by '\n'. The decoder is incremental: bytes arrive
// in arbitrary chunks and complete frames are surfaced as soon as their
// terminator is seen, with any partial trailing frame retained for the next
// read.
package framing

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrameSize bounds a single frame. Matches the inbound body cap of
// the HTTP transport.
const DefaultMaxFrameSize = 1 << 22 // 4 MiB

// ErrFrameTooLarge is returned when a frame exceeds the configured maximum
// before its terminator is seen. The owning session must treat this as
// fatal: the stream position can no longer be trusted.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Decoder accumulates stream bytes and yields complete frames.
//
// Decoder is not safe for concurrent use; each session owns exactly one.
type Decoder struct {
	buf bytes.Buffer
	max int
}

// NewDecoder constructs a Decoder. A maxFrameSize of zero or less selects
// DefaultMaxFrameSize.
func NewDecoder(maxFrameSize int) *Decoder {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Decoder{max: maxFrameSize}
}

// Feed appends newly-arrived bytes to the decode buffer.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Next pops the next complete frame from the buffer. It returns (nil, nil)
// when no complete frame is buffered yet. The returned slice is a copy owned
// by the caller.
//
// A buffered partial frame that already exceeds the maximum size fails with
// ErrFrameTooLarge: the terminator, if it ever arrives, would delimit a
// frame the decoder is unwilling to hold.
func (d *Decoder) Next() ([]byte, error) {
	b := d.buf.Bytes()
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		if d.buf.Len() > d.max {
			return nil, fmt.Errorf("%w: %d buffered, limit %d", ErrFrameTooLarge, d.buf.Len(), d.max)
		}
		return nil, nil
	}
	if i > d.max {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFrameTooLarge, i, d.max)
	}

	frame := make([]byte, i)
	copy(frame, b[:i])
	d.buf.Next(i + 1)

	// Tolerate CRLF peers.
	if n := len(frame); n > 0 && frame[n-1] == '\r' {
		frame = frame[:n-1]
	}
	return frame, nil
}

// Buffered reports how many undecoded bytes are pending.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}

// EncodeFrame produces the exact on-wire representation of one frame.
func EncodeFrame(msg []byte) []byte {
	out := make([]byte, 0, len(msg)+1)
	out = append(out, msg...)
	return append(out, '\n')
}

// WriteFrame writes one framed message to w in a single Write call so that
// concurrent writers cannot interleave partial frames.
func WriteFrame(w io.Writer, msg []byte) error {
	if bytes.IndexByte(msg, '\n') >= 0 {
		return fmt.Errorf("message contains embedded frame terminator")
	}
	if _, err := w.Write(EncodeFrame(msg)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
