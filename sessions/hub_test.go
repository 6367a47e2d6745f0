package sessions

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drainN(t *testing.T, h *Hub, token string, n int, timeout time.Duration) []string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var got []string
	err := h.Subscribe(ctx, token, "", func(ctx context.Context, eventID string, data []byte) error {
		got = append(got, string(data))
		if len(got) == n {
			cancel()
		}
		return nil
	})
	if len(got) != n {
		require.NoError(t, err)
	}
	return got
}

func TestOpenIssuesUniqueTokens(t *testing.T) {
	h := NewHub()
	a, err := h.Open(context.Background())
	require.NoError(t, err)
	b, err := h.Open(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.Equal(t, 2, h.Len())
}

func TestPublishThenDrainPreservesOrder(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := h.Publish(context.Background(), token, []byte(fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
	}

	got := drainN(t, h, token, 5, time.Second)
	assert.Equal(t, []string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, got)
}

func TestDrainDeliversLiveMessages(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got := make(chan string, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = h.Subscribe(ctx, token, "", func(ctx context.Context, eventID string, data []byte) error {
			got <- string(data)
			cancel()
			return nil
		})
	}()

	// Let the subscriber park before publishing.
	time.Sleep(20 * time.Millisecond)
	_, err = h.Publish(context.Background(), token, []byte("live"))
	require.NoError(t, err)

	select {
	case msg := <-got:
		assert.Equal(t, "live", msg)
	case <-time.After(time.Second):
		t.Fatal("live message was not delivered")
	}
	wg.Wait()
}

func TestResumeFromLastEventID(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := h.Publish(context.Background(), token, []byte(fmt.Sprintf("msg-%d", i)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	var got []string
	_ = h.Subscribe(ctx, token, ids[0], func(ctx context.Context, eventID string, data []byte) error {
		got = append(got, string(data))
		if len(got) == 2 {
			cancel()
		}
		return nil
	})
	assert.Equal(t, []string{"msg-1", "msg-2"}, got)
}

func TestResumeFromUnknownEventIDFails(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	err = h.Subscribe(context.Background(), token, "nope", func(ctx context.Context, eventID string, data []byte) error {
		return nil
	})
	require.Error(t, err)
}

func TestUnknownTokenFails(t *testing.T) {
	h := NewHub()

	_, err := h.Publish(context.Background(), "ghost", []byte("x"))
	require.ErrorIs(t, err, ErrSessionNotFound)

	err = h.Subscribe(context.Background(), "ghost", "", func(ctx context.Context, eventID string, data []byte) error {
		return nil
	})
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.ErrorIs(t, h.Close(context.Background(), "ghost"), ErrSessionNotFound)
}

func TestSessionIsolation(t *testing.T) {
	h := NewHub()
	s1, err := h.Open(context.Background())
	require.NoError(t, err)
	s2, err := h.Open(context.Background())
	require.NoError(t, err)

	_, err = h.Publish(context.Background(), s2, []byte("for-s2"))
	require.NoError(t, err)

	// Closing s1 must not affect s2's pending or future work.
	require.NoError(t, h.Close(context.Background(), s1))

	_, err = h.Publish(context.Background(), s2, []byte("after-close"))
	require.NoError(t, err)
	got := drainN(t, h, s2, 2, time.Second)
	assert.Equal(t, []string{"for-s2", "after-close"}, got)

	// Reusing the closed token fails with the sentinel.
	_, err = h.Publish(context.Background(), s1, []byte("x"))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestCloseEndsActiveDrain(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- h.Subscribe(context.Background(), token, "", func(ctx context.Context, eventID string, data []byte) error {
			return nil
		})
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, h.Close(context.Background(), token))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("drain did not end after close")
	}
}

func TestEventIDsAreMonotonic(t *testing.T) {
	h := NewHub()
	token, err := h.Open(context.Background())
	require.NoError(t, err)

	var prev string
	for i := 0; i < 10; i++ {
		id, err := h.Publish(context.Background(), token, []byte("m"))
		require.NoError(t, err)
		if prev != "" {
			assert.Greater(t, id, prev)
		}
		prev = id
	}
}
