package sessions

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ErrSessionNotFound is returned for tokens the hub does not know: never
// issued, or already closed. Callers on the multiplexed transport must
// treat it as "start a new session".
var ErrSessionNotFound = errors.New("session not found")

const shardCount = 16

// MessageHandlerFunc receives one outbound message during a drain. Returning
// an error stops the drain and propagates to the Subscribe caller.
type MessageHandlerFunc func(ctx context.Context, eventID string, data []byte) error

// Hub owns every live session. The zero value is not usable; construct with
// NewHub.
type Hub struct {
	shards [shardCount]hubShard
}

type hubShard struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	token     string
	createdAt time.Time

	mu       sync.Mutex
	queue    []envelope
	signal   chan struct{} // closed and replaced on every append/close
	closed   bool
}

type envelope struct {
	id   string
	data []byte
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	h := &Hub{}
	for i := range h.shards {
		h.shards[i].sessions = make(map[string]*session)
	}
	return h
}

func (h *Hub) shard(token string) *hubShard {
	f := fnv.New32a()
	f.Write([]byte(token))
	return &h.shards[f.Sum32()%shardCount]
}

func (h *Hub) lookup(token string) (*session, error) {
	sh := h.shard(token)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	return s, nil
}

// Open creates a new session and returns its token.
func (h *Hub) Open(ctx context.Context) (string, error) {
	token := uuid.NewString()
	s := &session{token: token, createdAt: time.Now(), signal: make(chan struct{})}

	sh := h.shard(token)
	sh.mu.Lock()
	sh.sessions[token] = s
	sh.mu.Unlock()
	return token, nil
}

// Publish appends one message to the session's outbound queue and wakes any
// drain in progress. Event ids are monotonically increasing within the hub,
// so a reconnecting caller can resume from the last id it saw.
func (h *Hub) Publish(ctx context.Context, token string, data []byte) (string, error) {
	s, err := h.lookup(token)
	if err != nil {
		return "", err
	}

	id := ulid.Make().String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}
	s.queue = append(s.queue, envelope{id: id, data: append([]byte(nil), data...)})
	close(s.signal)
	s.signal = make(chan struct{})
	s.mu.Unlock()
	return id, nil
}

// Subscribe drains the session's outbound queue through fn: first any
// messages after lastEventID (empty means everything queued so far), then
// live messages as they are published, until ctx ends or the session closes.
func (h *Hub) Subscribe(ctx context.Context, token string, lastEventID string, fn MessageHandlerFunc) error {
	s, err := h.lookup(token)
	if err != nil {
		return err
	}

	next := 0
	if lastEventID != "" {
		s.mu.Lock()
		found := false
		for i := range s.queue {
			if s.queue[i].id == lastEventID {
				next = i + 1
				found = true
				break
			}
		}
		s.mu.Unlock()
		if !found {
			return fmt.Errorf("last event id %q not found", lastEventID)
		}
	}

	for {
		s.mu.Lock()
		pending := s.queue[next:]
		signal := s.signal
		closed := s.closed
		s.mu.Unlock()

		for _, env := range pending {
			if err := fn(ctx, env.id, env.data); err != nil {
				return err
			}
			next++
		}
		if closed {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-signal:
		}
	}
}

// Close removes the session and discards its queue. Any active drain
// returns once it has delivered the messages already queued.
func (h *Hub) Close(ctx context.Context, token string) error {
	sh := h.shard(token)
	sh.mu.Lock()
	s, ok := sh.sessions[token]
	if ok {
		delete(sh.sessions, token)
	}
	sh.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, token)
	}

	s.mu.Lock()
	s.closed = true
	close(s.signal)
	s.signal = make(chan struct{})
	s.mu.Unlock()
	return nil
}

// Len reports the number of live sessions.
func (h *Hub) Len() int {
	n := 0
	for i := range h.shards {
		sh := &h.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// CreatedAt reports when the session was opened.
func (h *Hub) CreatedAt(token string) (time.Time, error) {
	s, err := h.lookup(token)
	if err != nil {
		return time.Time{}, err
	}
	return s.createdAt, nil
}
