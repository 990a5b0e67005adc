package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *atomic.Int64) {
	t.Helper()

	var fullFetches atomic.Int64
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	mux.HandleFunc("GET /api/v1/repo/file", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("path") == "missing.md" {
			json.NewEncoder(w).Encode(fileResponse{Path: "missing.md"})
			return
		}
		if r.Header.Get(headerKnownRevision) == "rev-1" {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		fullFetches.Add(1)
		json.NewEncoder(w).Encode(fileResponse{
			Path:     r.URL.Query().Get("path"),
			Content:  []byte("remote body\n"),
			Revision: "rev-1",
			Exists:   true,
		})
	})

	mux.HandleFunc("POST /api/v1/repo/commit", func(w http.ResponseWriter, r *http.Request) {
		var in commitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if len(in.Files) > 0 && in.Files[0].Path == "stale.md" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(APIError{Code: CodeStaleRevision, Message: "revision is stale"})
			return
		}
		json.NewEncoder(w).Encode(commitResponse{Revision: "rev-2"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &fullFetches
}

func newTestGateway(t *testing.T, baseURL string) *HTTPGateway {
	t.Helper()
	gw, err := NewHTTPGateway(HTTPGatewayConfig{BaseURL: baseURL})
	require.NoError(t, err)
	return gw
}

func TestHTTPGatewayRequiresBaseURL(t *testing.T) {
	_, err := NewHTTPGateway(HTTPGatewayConfig{})
	assert.ErrorIs(t, err, ErrNoServerURL)
}

func TestHTTPGatewayFetchLatest(t *testing.T) {
	srv, fullFetches := newTestServer(t)
	gw := newTestGateway(t, srv.URL)

	res, err := gw.FetchLatest(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, "rev-1", res.Revision)
	assert.Equal(t, "remote body\n", string(res.Content))

	// second fetch revalidates and is served from the content cache
	res, err = gw.FetchLatest(context.Background(), "notes.md")
	require.NoError(t, err)
	assert.Equal(t, "remote body\n", string(res.Content))
	assert.Equal(t, int64(1), fullFetches.Load())
}

func TestHTTPGatewayFetchMissing(t *testing.T) {
	srv, _ := newTestServer(t)
	gw := newTestGateway(t, srv.URL)

	res, err := gw.FetchLatest(context.Background(), "missing.md")
	require.NoError(t, err)
	assert.False(t, res.Exists)
	assert.Empty(t, res.Content)
}

func TestHTTPGatewayCommit(t *testing.T) {
	srv, _ := newTestServer(t)
	gw := newTestGateway(t, srv.URL)

	rev, err := gw.Commit(context.Background(), []CommitFile{
		{Path: "notes.md", Content: []byte("new body\n"), Action: ActionUpdate},
	}, "sync")
	require.NoError(t, err)
	assert.Equal(t, "rev-2", rev)

	_, err = gw.Commit(context.Background(), nil, "empty")
	assert.Error(t, err)
}

func TestHTTPGatewayCommitRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	gw := newTestGateway(t, srv.URL)

	_, err := gw.Commit(context.Background(), []CommitFile{
		{Path: "stale.md", Content: []byte("x"), Action: ActionUpdate},
	}, "sync")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, CodeStaleRevision, apiErr.Code)
}

func TestHTTPGatewayConnectivity(t *testing.T) {
	srv, _ := newTestServer(t)
	gw := newTestGateway(t, srv.URL)
	assert.True(t, gw.CheckConnectivity(context.Background()))

	down := httptest.NewServer(http.NotFoundHandler())
	down.Close()
	gw = newTestGateway(t, down.URL)
	assert.False(t, gw.CheckConnectivity(context.Background()))
}
