package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/api"
)

func TestRunQuantizeRegistersArtifactFromFile(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		var req api.ArtifactDescriptor
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "toy", req.Architecture)
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(api.RegisterModelResponse{ModelID: "model-1"})
	})

	dir := t.TempDir()
	path := filepath.Join(dir, "artifact.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"architecture":"toy","element_kind":"i8","tensor_shapes":{"w":[4,4]}}`), 0o644))

	cmd := newQuantizeCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--file", path})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "model-1")
}

func TestRunQuantizeRejectsMissingFile(t *testing.T) {
	cmd := newQuantizeCmd()
	cmd.SetArgs([]string{"--file", "/nonexistent/path.json"})
	err := cmd.Execute()
	require.Error(t, err)
	require.Equal(t, ExitInvalidInput, ExitCode(err))
}
