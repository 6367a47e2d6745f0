package docsrs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratedocs/cratedocs/docsvc"
)

func TestFetchCrateDocsURLLayout(t *testing.T) {
	var gotPaths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.URL.Path)
		w.Write([]byte("<html>docs</html>"))
	}))
	defer srv.Close()

	c := NewClient(WithDocsBaseURL(srv.URL))

	body, err := c.FetchCrateDocs(context.Background(), "tokio", "")
	require.NoError(t, err)
	assert.Equal(t, "<html>docs</html>", body)

	_, err = c.FetchCrateDocs(context.Background(), "tokio", "1.38.0")
	require.NoError(t, err)

	_, err = c.FetchItemDocs(context.Background(), "tokio", "sync::Mutex", "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/crate/tokio/",
		"/crate/tokio/1.38.0/",
		"/tokio/latest/sync/Mutex/",
	}, gotPaths)
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(WithDocsBaseURL(srv.URL))
	_, err := c.FetchCrateDocs(context.Background(), "no-such-crate", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestFetchServerErrorIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(WithDocsBaseURL(srv.URL))
	_, err := c.FetchCrateDocs(context.Background(), "tokio", "")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusBadGateway, fe.StatusCode)
	assert.False(t, IsNotFound(err))
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(WithDocsBaseURL(srv.URL), WithTimeout(20*time.Millisecond))
	_, err := c.FetchCrateDocs(context.Background(), "tokio", "")

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestSearchDecodesEnvelopePreservingOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/crates", r.URL.Path)
		assert.Equal(t, "serde", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("per_page"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"crates":[
			{"name":"serde","max_version":"1.0.210","description":"A serialization framework","downloads":100},
			{"name":"serde_json","max_version":"1.0.128","description":"JSON support","downloads":90}
		]}`))
	}))
	defer srv.Close()

	c := NewClient(WithIndexBaseURL(srv.URL))
	got, err := c.Search(context.Background(), "serde", 2)
	require.NoError(t, err)

	assert.Equal(t, []docsvc.CrateSummary{
		{Name: "serde", MaxVersion: "1.0.210", Description: "A serialization framework", Downloads: 100},
		{Name: "serde_json", MaxVersion: "1.0.128", Description: "JSON support", Downloads: 90},
	}, got)
}

func TestSearchMalformedEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(WithIndexBaseURL(srv.URL))
	_, err := c.Search(context.Background(), "serde", 10)

	var fe *FetchError
	require.ErrorAs(t, err, &fe)
}
