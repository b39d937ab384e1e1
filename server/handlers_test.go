package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/api"
	"github.com/nsqe/nsqe/cluster"
	"github.com/nsqe/nsqe/kvcache"
	"github.com/nsqe/nsqe/quant"
	"github.com/nsqe/nsqe/registry"
	"github.com/nsqe/nsqe/router"
	"github.com/nsqe/nsqe/runtime"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testCache() *kvcache.Manager {
	return kvcache.New(kvcache.Config{
		HeadDimBytes:      8,
		PositionsPerBlock: 1,
		TotalSpots:        64,
		ActiveCapacity:    64,
		ColdCapacity:      64,
	})
}

func testServer(t *testing.T) (*Server, registry.ModelID) {
	t.Helper()

	reg := registry.New(func(ctx context.Context, h *registry.ModelHandle, budget uint64) error { return nil })
	id, err := reg.Register("toy", []registry.LayerDescriptor{{Name: "layer.0"}}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, reg.Load(context.Background(), id, 0))

	candidates := func(req router.Request) []router.Candidate {
		return []router.Candidate{{ModelID: string(id), Precision: quant.Profile{"*": quant.KindI8}, Bits: 8, Utility: 1}}
	}
	rt := router.New(router.DefaultConfig(), candidates)

	var step int32
	forward := func(tokens []int32, layers []registry.LayerDescriptor, profile quant.Profile) (runtime.StepResult, error) {
		step++
		done := step >= 2
		return runtime.StepResult{TokenID: step, Text: "x", EOS: done, Keys: make([]byte, 8), Values: make([]byte, 8)}, nil
	}
	cache := testCache()
	engine := runtime.New(runtime.DefaultConfig(), reg, cache, forward)

	coord := cluster.New(cluster.DefaultConfig())
	coord.Init()
	t.Cleanup(coord.Shutdown)
	coord.Register(cluster.NodeID("node-a"))
	require.NoError(t, coord.Heartbeat(cluster.NodeID("node-a"), cluster.Capability{ResidentModels: []string{string(id)}, Load: 0.1}))

	return New(nil, reg, rt, engine, coord, cache), id
}

func doRequest(srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	return w
}

func TestRegisterModelHandlerCreatesModel(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/models", api.ArtifactDescriptor{
		Architecture: "toy",
		ElementKind:  "i8",
		TensorShapes: map[string][]uint64{"w": {4, 4}},
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp api.RegisterModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ModelID)
}

func TestRegisterModelHandlerRejectsBadElementKind(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/models", api.ArtifactDescriptor{
		Architecture: "toy",
		ElementKind:  "not-a-kind",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestInferHandlerStreamsTokensAndSetsSequenceHeader(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/infer", api.InferRequest{
		TenantID:  "tenant-a",
		Prompt:    "hello world",
		MaxTokens: 10,
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get("X-Sequence-Id"))
	require.Contains(t, w.Body.String(), "event: token")
}

func TestInferHandlerRejectsUnroutableRequest(t *testing.T) {
	reg := registry.New(func(ctx context.Context, h *registry.ModelHandle, budget uint64) error { return nil })
	rt := router.New(router.DefaultConfig(), func(req router.Request) []router.Candidate { return nil })
	engine := runtime.New(runtime.DefaultConfig(), reg, testCache(), nil)
	coord := cluster.New(cluster.DefaultConfig())
	coord.Init()
	t.Cleanup(coord.Shutdown)

	srv := New(nil, reg, rt, engine, coord, testCache())

	w := doRequest(srv, http.MethodPost, "/infer", api.InferRequest{TenantID: "t", Prompt: "x", MaxTokens: 1})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCancelHandlerReportsUnknownSequence(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/infer/999/cancel", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListNodesHandlerReturnsSnapshot(t *testing.T) {
	srv, id := testServer(t)

	w := doRequest(srv, http.MethodGet, "/cluster/nodes", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var nodes []api.NodeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	require.Len(t, nodes, 1)

	want := api.NodeRecord{
		ID:             "node-a",
		State:          "healthy",
		ResidentModels: []string{string(id)},
		Load:           0.1,
	}
	if diff := cmp.Diff(want, nodes[0], cmpopts.IgnoreFields(api.NodeRecord{}, "LastSeenUnix", "FreeCacheBytes")); diff != "" {
		t.Errorf("node record mismatch (-want +got):\n%s", diff)
	}
}

func TestHeartbeatHandlerRegistersUnknownNode(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodPost, "/cluster/nodes/node-b/heartbeat", api.HeartbeatRequest{
		ResidentModels: []string{"toy"},
		Load:           0.2,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(srv, http.MethodGet, "/cluster/nodes", nil)
	var nodes []api.NodeRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	require.Len(t, nodes, 2)
}

func TestCacheStatsHandlerReportsOccupancy(t *testing.T) {
	srv, _ := testServer(t)

	w := doRequest(srv, http.MethodGet, "/cache/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats api.CacheStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	require.Equal(t, 64, stats.TotalSpots)
	require.Equal(t, 64, stats.FreeSpots)
}
