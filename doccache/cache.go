// Package doccache is the process-wide lookup cache. It guarantees that for
// any key at most one fetch against the upstream collaborator is in flight,
// across every session and transport; concurrent requesters for the same key
// block until that single fetch resolves and then share its outcome.
//
// Failed fetches are released to all waiters but never stored, so a
// transient upstream outage cannot poison later lookups. Completed entries
// live until process exit or explicit eviction; there is no TTL or size
// bound (a bounded LRU is a plausible extension, but the upstream corpus of
// crate docs is effectively append-only and deployments are short-lived
// sidecars).
package doccache

import (
	"context"
	"hash/fnv"
	"sync"

	"golang.org/x/sync/singleflight"
)

const shardCount = 16

// FetchFunc produces the value for a key on a cache miss. It must honor ctx
// for its timeout; the cache detaches ctx from any single caller's
// cancellation before invoking it.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// Cache is a sharded single-flight cache. Lookups for distinct keys on
// different shards never contend on a common lock.
type Cache[V any] struct {
	shards [shardCount]shard[V]
}

type shard[V any] struct {
	mu     sync.RWMutex
	values map[Key]V
	flight singleflight.Group
}

// New constructs an empty Cache.
func New[V any]() *Cache[V] {
	c := &Cache[V]{}
	for i := range c.shards {
		c.shards[i].values = make(map[Key]V)
	}
	return c
}

func (c *Cache[V]) shard(key Key) *shard[V] {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &c.shards[h.Sum32()%shardCount]
}

// Get returns the completed entry for key, if any.
func (c *Cache[V]) Get(key Key) (V, bool) {
	s := c.shard(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetOrFetch returns the completed entry for key or resolves it with fetch.
//
// When several callers miss on the same key concurrently, exactly one fetch
// runs; the rest suspend and receive the same value or the same error. The
// fetch runs on a context detached from the winning caller's cancellation:
// a caller that goes away mid-flight (closed session) abandons only its own
// delivery, never the fetch other waiters depend on. Each waiter's own ctx
// still bounds how long that waiter blocks.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key Key, fetch FetchFunc[V]) (V, error) {
	s := c.shard(key)

	s.mu.RLock()
	v, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	ch := s.flight.DoChan(string(key), func() (any, error) {
		// Re-check under the write path: a previous flight may have
		// completed between our miss and this call.
		s.mu.RLock()
		v, ok := s.values[key]
		s.mu.RUnlock()
		if ok {
			return v, nil
		}

		v, err := fetch(context.WithoutCancel(ctx))
		if err != nil {
			return *new(V), err
		}

		s.mu.Lock()
		s.values[key] = v
		s.mu.Unlock()
		return v, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return *new(V), res.Err
		}
		return res.Val.(V), nil
	case <-ctx.Done():
		return *new(V), ctx.Err()
	}
}

// Evict removes a completed entry. In-flight fetches are unaffected.
func (c *Cache[V]) Evict(key Key) {
	s := c.shard(key)
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
}

// Len reports the number of completed entries across all shards.
func (c *Cache[V]) Len() int {
	n := 0
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.RLock()
		n += len(s.values)
		s.mu.RUnlock()
	}
	return n
}
