package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/nsqe/nsqe/api"
	"github.com/nsqe/nsqe/cluster"
	"github.com/nsqe/nsqe/quant"
	"github.com/nsqe/nsqe/registry"
	"github.com/nsqe/nsqe/router"
	"github.com/nsqe/nsqe/runtime"
	"github.com/nsqe/nsqe/salience"
)

func fail(c *gin.Context, err error) {
	se := api.FromError(err)
	c.AbortWithStatusJSON(se.StatusCode, se)
}

// RegisterModelHandler implements POST /models.
func (s *Server) RegisterModelHandler(c *gin.Context) {
	var req api.ArtifactDescriptor
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	kind, err := quant.ParseElementKind(req.ElementKind)
	if err != nil {
		fail(c, err)
		return
	}

	tensors := make(map[string]quant.TensorDescriptor, len(req.TensorShapes))
	for name, shape := range req.TensorShapes {
		tensors[name] = quant.TensorDescriptor{Name: name, Shape: shape, Kind: kind}
	}
	layers := []registry.LayerDescriptor{{Name: "root", Tensors: tensors}}

	var profile quant.Profile
	if len(req.PrecisionProfile) > 0 {
		profile = make(quant.Profile, len(req.PrecisionProfile))
		for pattern, kindStr := range req.PrecisionProfile {
			k, err := quant.ParseElementKind(kindStr)
			if err != nil {
				fail(c, err)
				return
			}
			profile[pattern] = k
		}
	}

	id, err := s.registry.Register(req.Architecture, layers, profile, nil)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusCreated, api.RegisterModelResponse{ModelID: string(id)})
}

// InferHandler implements POST /infer: route, place, then stream tokens
// as server-sent events.
func (s *Server) InferHandler(c *gin.Context) {
	var req api.InferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	salienceScore := meanSalience(req.Prompt)

	routeReq := router.Request{
		Tenant:                  req.TenantID,
		Prompt:                  req.Prompt,
		ModelHint:               req.ModelHint,
		LatencyBudget:           latencyClassFor(req.Deadline),
		UseNeurosymbolicRouting: req.Options.UseNeurosymbolicRouting,
	}
	decision, err := s.router.Route(routeReq, salienceScore)
	if err != nil {
		fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if req.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Deadline)
		defer cancel()
	}

	// Placement is advisory: the chosen node only matters for
	// bookkeeping here since this adapter executes the decode loop
	// in-process. A deployment that actually federates across nodes
	// replaces this attempt with an RPC dispatch to the chosen node.
	node, err := s.coordinator.Place(ctx, cluster.PlacementRequest{RequiredModel: decision.ModelID}, func(context.Context, cluster.NodeID) error {
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}

	if err := s.registry.Load(ctx, registry.ModelID(decision.ModelID), 0); err != nil {
		fail(c, err)
		return
	}

	seqID, runCtx := s.sequences.begin(ctx)
	defer s.sequences.end(seqID)

	ch, err := s.engine.Run(runCtx, runtime.Request{
		Prompt:       promptTokenIDs(req.Prompt),
		MaxNewTokens: req.MaxTokens,
		Sequence:     seqID,
	}, decision, cluster.NodeRecord{ID: node})
	if err != nil {
		fail(c, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("X-Sequence-Id", strconv.FormatInt(int64(seqID), 10))
	c.Writer.WriteHeader(http.StatusOK)

	for tok := range ch {
		frame := api.TokenFrame{Token: tok.Text, Index: tok.Index}
		if tok.Done {
			frame.Finish = finishReasonFor(tok.StopCause)
		}
		event := sse.Event{Event: "token", Data: frame}
		if err := event.Render(c.Writer); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

// CancelHandler implements POST /infer/:id/cancel.
func (s *Server) CancelHandler(c *gin.Context) {
	id := c.Param("id")
	if !s.sequences.cancel(id) {
		c.JSON(http.StatusNotFound, api.Ack{OK: false})
		return
	}
	c.JSON(http.StatusOK, api.Ack{OK: true})
}

// ListNodesHandler implements GET /cluster/nodes.
func (s *Server) ListNodesHandler(c *gin.Context) {
	nodes := s.coordinator.Snapshot()
	out := make([]api.NodeRecord, len(nodes))
	for i, n := range nodes {
		out[i] = api.NodeRecord{
			ID:             string(n.ID),
			State:          n.State.String(),
			LastSeenUnix:   n.LastSeen.Unix(),
			ResidentModels: n.Capability.ResidentModels,
			FreeCacheBytes: n.Capability.FreeCacheBytes,
			Load:           n.Capability.Load,
		}
	}
	c.JSON(http.StatusOK, out)
}

// CacheStatsHandler implements GET /cache/stats.
func (s *Server) CacheStatsHandler(c *gin.Context) {
	stats := s.cache.Stats()
	c.JSON(http.StatusOK, api.CacheStats{
		TotalSpots:     stats.TotalSpots,
		FreeSpots:      stats.FreeSpots,
		FreeBytes:      stats.FreeBytes,
		ResidentBlocks: stats.ResidentBlocks,
	})
}

// HeartbeatHandler implements POST /cluster/nodes/:id/heartbeat.
func (s *Server) HeartbeatHandler(c *gin.Context) {
	id := cluster.NodeID(c.Param("id"))

	var req api.HeartbeatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	s.coordinator.Register(id)
	if err := s.coordinator.Heartbeat(id, cluster.Capability{
		ResidentModels: req.ResidentModels,
		FreeCacheBytes: req.FreeCacheBytes,
		Load:           req.Load,
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, api.Ack{OK: true})
}

func meanSalience(prompt string) float32 {
	scorer, err := salience.New(salience.DefaultConfig())
	if err != nil {
		return 0.5
	}
	fields := strings.Fields(prompt)
	tokens := make([]salience.Token, len(fields))
	for i, f := range fields {
		tokens[i] = salience.Token{Index: i, Text: f}
	}
	scores := scorer.ScoreTokens(tokens, salience.Context{})
	if len(scores) == 0 {
		return 0.5
	}
	var sum float32
	for _, sc := range scores {
		sum += sc.Value
	}
	return sum / float32(len(scores))
}

func latencyClassFor(deadline time.Duration) router.LatencyClass {
	switch {
	case deadline == 0:
		return router.LatencyStandard
	case deadline < 2*time.Second:
		return router.LatencyInteractive
	case deadline > 30*time.Second:
		return router.LatencyBatch
	default:
		return router.LatencyStandard
	}
}

func finishReasonFor(cause runtime.StopCause) api.FinishReason {
	switch cause {
	case runtime.StopEOS:
		return api.FinishStop
	case runtime.StopMaxTokens:
		return api.FinishLength
	case runtime.StopDeadline:
		return api.FinishDeadline
	case runtime.StopCancelled:
		return api.FinishCancelled
	case runtime.StopNodeLost:
		return api.FinishError
	default:
		return api.FinishStop
	}
}

// promptTokenIDs is a placeholder tokenizer: this codebase has no
// tokenizer of its own (the GGML/CGo backend that owned one was out of
// scope, see DESIGN.md), so it maps each byte to a token id. A real
// deployment injects a proper tokenizer ahead of this adapter.
func promptTokenIDs(prompt string) []int32 {
	ids := make([]int32, len(prompt))
	for i := 0; i < len(prompt); i++ {
		ids[i] = int32(prompt[i])
	}
	return ids
}
