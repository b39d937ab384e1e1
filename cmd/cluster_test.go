package cmd

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/api"
)

func TestRunClusterStatusRendersTable(t *testing.T) {
	withTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/cluster/nodes", r.URL.Path)
		json.NewEncoder(w).Encode([]api.NodeRecord{
			{ID: "node-a", State: "healthy", Load: 0.3, ResidentModels: []string{"toy"}},
		})
	})

	cmd := newClusterStatusCmd()
	require.NoError(t, cmd.Execute())
}

func TestRunClusterHeartbeatRequiresNodeFlag(t *testing.T) {
	cmd := newClusterHeartbeatCmd()
	err := cmd.Execute()
	require.Error(t, err)
}
