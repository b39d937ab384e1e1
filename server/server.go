// Package server implements the Control Plane API's (C8) HTTP adapter:
// a thin gin layer translating JSON/SSE requests into calls against the
// core components. No business logic lives here — every handler is a
// thin adapter, backed by a CORS/allowed-host middleware stack.
package server

import (
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/nsqe/nsqe/cluster"
	"github.com/nsqe/nsqe/envconfig"
	"github.com/nsqe/nsqe/kvcache"
	"github.com/nsqe/nsqe/registry"
	"github.com/nsqe/nsqe/router"
	"github.com/nsqe/nsqe/runtime"
)

// Server bundles the core components an adapter call needs. It owns no
// state of its own beyond what's required to route a request.
type Server struct {
	addr        net.Addr
	registry    *registry.Registry
	router      *router.Router
	engine      *runtime.Engine
	coordinator *cluster.Coordinator
	cache       *kvcache.Manager
	sequences   *sequenceTable
}

// New constructs a Server over already-initialized core components.
// Callers are responsible for coordinator.Init() before passing it in.
func New(addr net.Addr, reg *registry.Registry, rt *router.Router, engine *runtime.Engine, coord *cluster.Coordinator, cache *kvcache.Manager) *Server {
	return &Server{
		addr:        addr,
		registry:    reg,
		router:      rt,
		engine:      engine,
		coordinator: coord,
		cache:       cache,
		sequences:   newSequenceTable(),
	}
}

func allowedHost(host string) bool {
	host = strings.ToLower(host)
	if host == "" || host == "localhost" {
		return true
	}
	if addr, err := netip.ParseAddr(strings.Split(host, ":")[0]); err == nil {
		return addr.IsLoopback() || addr.IsPrivate()
	}
	return false
}

func allowedHostsMiddleware(addr net.Addr) gin.HandlerFunc {
	return func(c *gin.Context) {
		if addr == nil {
			c.Next()
			return
		}
		if allowedHost(c.Request.Host) {
			c.Next()
			return
		}
		c.AbortWithStatus(http.StatusForbidden)
	}
}

// Routes builds the gin router for the five C8 operations plus the
// cache-occupancy endpoint.
func (s *Server) Routes() http.Handler {
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowWildcard = true
	corsConfig.AllowHeaders = []string{"Authorization", "Content-Type", "Accept"}
	corsConfig.AllowOrigins = envconfig.AllowedOrigins()
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}

	r := gin.New()
	r.Use(gin.Recovery(), cors.New(corsConfig), allowedHostsMiddleware(s.addr))

	r.POST("/models", s.RegisterModelHandler)
	r.POST("/infer", s.InferHandler)
	r.POST("/infer/:id/cancel", s.CancelHandler)
	r.GET("/cluster/nodes", s.ListNodesHandler)
	r.POST("/cluster/nodes/:id/heartbeat", s.HeartbeatHandler)
	r.GET("/cache/stats", s.CacheStatsHandler)

	return r
}
