package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedocs/cratedocs/docsvc"
	"github.com/cratedocs/cratedocs/internal/engine"
	"github.com/cratedocs/cratedocs/internal/framing"
	"github.com/cratedocs/cratedocs/internal/jsonrpc"
)

type fakeFetcher struct {
	delay time.Duration
}

func (f *fakeFetcher) FetchCrateDocs(ctx context.Context, name, version string) (string, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("docs for %s@%s", name, version), nil
}

func (f *fakeFetcher) FetchItemDocs(ctx context.Context, name, itemPath, version string) (string, error) {
	return fmt.Sprintf("docs for %s::%s", name, itemPath), nil
}

type fakeSearcher struct{}

func (fakeSearcher) Search(ctx context.Context, query string, limit int) ([]docsvc.CrateSummary, error) {
	return nil, nil
}

func newTestHandler(t *testing.T, input string, opts ...Option) (*Handler, *bytes.Buffer) {
	t.Helper()
	svc := docsvc.NewService(&fakeFetcher{}, fakeSearcher{})
	var out bytes.Buffer
	opts = append([]Option{WithIO(strings.NewReader(input), &out)}, opts...)
	return NewHandler(engine.New(svc), opts...), &out
}

func frames(t *testing.T, out *bytes.Buffer) []jsonrpc.Response {
	t.Helper()
	var got []jsonrpc.Response
	sc := bufio.NewScanner(bytes.NewReader(out.Bytes()))
	sc.Buffer(make([]byte, 0, 64*1024), framing.DefaultMaxFrameSize)
	for sc.Scan() {
		var resp jsonrpc.Response
		require.NoError(t, json.Unmarshal(sc.Bytes(), &resp))
		got = append(got, resp)
	}
	require.NoError(t, sc.Err())
	return got
}

func request(t *testing.T, id int, method string, params any) string {
	t.Helper()
	rid := jsonrpc.NewRequestID(id)
	req, err := jsonrpc.NewRequest(rid, method, params)
	require.NoError(t, err)
	b, err := json.Marshal(req)
	require.NoError(t, err)
	return string(b) + "\n"
}

func TestServeAnswersRequestsUntilEOF(t *testing.T) {
	input := request(t, 1, "initialize", map[string]any{
		"protocolVersion": "2025-06-18",
		"clientInfo":      map[string]string{"name": "test", "version": "0.0.1"},
	}) + request(t, 2, "tools/list", nil)

	h, out := newTestHandler(t, input)
	require.NoError(t, h.Serve(context.Background()))

	got := frames(t, out)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID.String())
	assert.Equal(t, "2", got[1].ID.String())

	var init struct {
		ServerInfo struct {
			Name string `json:"name"`
		} `json:"serverInfo"`
	}
	require.NoError(t, json.Unmarshal(got[0].Result, &init))
	assert.Equal(t, "rust-docs", init.ServerInfo.Name)

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(got[1].Result, &list))
	require.Len(t, list.Tools, 3)
}

func TestServeWritesResponsesInDecodeOrder(t *testing.T) {
	// The first request is slow, the second instant. Order on the wire must
	// still match the order the frames arrived in.
	input := request(t, 1, "tools/call", map[string]any{
		"name":      "lookup_crate",
		"arguments": map[string]any{"crate_name": "tokio"},
	}) + request(t, 2, "ping", nil)

	svc := docsvc.NewService(&fakeFetcher{delay: 150 * time.Millisecond}, fakeSearcher{})
	var out bytes.Buffer
	h := NewHandler(engine.New(svc), WithIO(strings.NewReader(input), &out))
	require.NoError(t, h.Serve(context.Background()))

	got := frames(t, &out)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID.String())
	assert.Nil(t, got[0].Error)
	assert.Equal(t, "2", got[1].ID.String())
}

func TestServeAnswersParseErrorsAndContinues(t *testing.T) {
	input := "this is not json\n" + request(t, 7, "ping", nil)

	h, out := newTestHandler(t, input)
	require.NoError(t, h.Serve(context.Background()))

	got := frames(t, out)
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Error)
	assert.Equal(t, jsonrpc.ErrorCodeParseError, got[0].Error.Code)
	assert.True(t, got[0].ID.IsNil())
	assert.Equal(t, "7", got[1].ID.String())
	assert.Nil(t, got[1].Error)
}

func TestServeSkipsNotifications(t *testing.T) {
	notif, err := jsonrpc.NewRequest(nil, "notifications/initialized", nil)
	require.NoError(t, err)
	b, err := json.Marshal(notif)
	require.NoError(t, err)

	input := string(b) + "\n" + request(t, 3, "ping", nil)

	h, out := newTestHandler(t, input)
	require.NoError(t, h.Serve(context.Background()))

	got := frames(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, "3", got[0].ID.String())
}

func TestServeOversizedFrameIsFatal(t *testing.T) {
	input := strings.Repeat("x", 256) + "\n"

	h, out := newTestHandler(t, input, WithMaxFrameSize(64))
	err := h.Serve(context.Background())
	require.ErrorIs(t, err, framing.ErrFrameTooLarge)
	assert.Zero(t, out.Len())
}

func TestServeEmptyInputExitsCleanly(t *testing.T) {
	h, out := newTestHandler(t, "")
	require.NoError(t, h.Serve(context.Background()))
	assert.Zero(t, out.Len())
}

func TestServeIgnoresInboundResponses(t *testing.T) {
	input := `{"jsonrpc":"2.0","result":{},"id":99}` + "\n" + request(t, 4, "ping", nil)

	h, out := newTestHandler(t, input)
	require.NoError(t, h.Serve(context.Background()))

	got := frames(t, out)
	require.Len(t, got, 1)
	assert.Equal(t, "4", got[0].ID.String())
}
