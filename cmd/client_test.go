package cmd

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/api"
)

func withTestServer(t *testing.T, handler http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	t.Setenv("NSQE_HOST", u.Host)
}

func TestGetJSONDecodesSuccessResponse(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cache/stats", r.URL.Path)
		json.NewEncoder(w).Encode(api.CacheStats{TotalSpots: 10, FreeSpots: 4})
	})

	var stats api.CacheStats
	_, err := getJSON("/cache/stats", &stats)
	require.NoError(t, err)
	require.Equal(t, 10, stats.TotalSpots)
	require.Equal(t, 4, stats.FreeSpots)
}

func TestPostJSONReturnsStatusErrorOnFailure(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(api.StatusError{Kind: "no_viable_route", Message: "no candidates"})
	})

	var resp api.RegisterModelResponse
	_, err := postJSON("/models", api.ArtifactDescriptor{}, &resp)
	require.Error(t, err)

	se, ok := err.(api.StatusError)
	require.True(t, ok)
	require.Equal(t, "no_viable_route", se.Kind)
	require.Equal(t, http.StatusUnprocessableEntity, se.StatusCode)
	require.Equal(t, ExitNoViableRoute, exitCodeFor(err))
}
