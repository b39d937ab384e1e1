package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/nsqe/nsqe/cluster"
	"github.com/nsqe/nsqe/envconfig"
	"github.com/nsqe/nsqe/kvcache"
	"github.com/nsqe/nsqe/logutil"
	"github.com/nsqe/nsqe/quant"
	"github.com/nsqe/nsqe/registry"
	"github.com/nsqe/nsqe/router"
	"github.com/nsqe/nsqe/runtime"
	"github.com/nsqe/nsqe/server"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the control plane API",
		Args:  cobra.ExactArgs(0),
		RunE:  runServe,
	}
}

// runServe wires every core component from envconfig and hosts them
// behind the control plane's HTTP adapter: bind a listener, hand it to
// the adapter, block.
func runServe(cmd *cobra.Command, _ []string) error {
	logutil.Init(envconfig.LogLevel())

	reg := registry.New(residencyLoader)
	candidates := registryCandidates(reg)
	rt := router.New(router.Config{
		Weights:       router.DefaultWeights(),
		Rules:         router.DefaultRuleSet(),
		CacheCapacity: envconfig.RoutingCacheCapacity(),
		CacheTTL:      envconfig.RoutingCacheTTL(),
	}, candidates)

	cache := kvcache.New(kvcache.Config{
		HeadDimBytes:      128,
		PositionsPerBlock: 16,
		TotalSpots:        int(envconfig.CacheCapacityBytes() / envconfig.SpotSize()),
		ActiveCapacity:    int(envconfig.CacheCapacityBytes() / envconfig.SpotSize()),
		ColdCapacity:      int(envconfig.CacheCapacityBytes() / envconfig.SpotSize()),
	})

	engine := runtime.New(runtime.DefaultConfig(), reg, cache, placeholderForward)

	coord := cluster.New(cluster.Config{
		SuspectAfter:     envconfig.SuspectAfter(),
		NodeTimeout:      envconfig.NodeTimeout(),
		SweepInterval:    time.Second,
		PlacementRetries: envconfig.PlacementRetries(),
	})
	coord.Init()
	defer coord.Shutdown()

	srv := server.New(nil, reg, rt, engine, coord, cache)

	fmt.Printf("listening on %s\n", envconfig.Host())
	return http.ListenAndServe(envconfig.Host(), srv.Routes())
}

// residencyLoader is the stand-in weight-residency step: the runtime
// contract covers decode control flow (reserve, forward, write, emit),
// not a real weight loader, so there is nothing for this hook to page
// in beyond marking the handle resident.
func residencyLoader(ctx context.Context, handle *registry.ModelHandle, targetMemoryBudget uint64) error {
	return nil
}

// placeholderForward stands in for the real compute backend the same
// way residencyLoader stands in for the real weight loader: it returns a
// deterministic, syntactically valid step so the decode loop's control
// flow (reserve, forward, write, emit, stop) runs end to end.
func placeholderForward(tokens []int32, layers []registry.LayerDescriptor, profile quant.Profile) (runtime.StepResult, error) {
	next := int32(0)
	if len(tokens) > 0 {
		next = tokens[len(tokens)-1] + 1
	}
	return runtime.StepResult{
		TokenID: next,
		Text:    fmt.Sprintf("<%d>", next),
		Keys:    make([]byte, 128),
		Values:  make([]byte, 128),
	}, nil
}

// registryCandidates builds the router's CandidateSource from whatever
// models are currently registered, using each model's own default
// precision profile and the profile's widest configured bit width (never
// below i8's 8 bits) as the neural stage's starting point.
func registryCandidates(reg *registry.Registry) router.CandidateSource {
	return func(req router.Request) []router.Candidate {
		var out []router.Candidate
		for _, h := range reg.List() {
			if req.ModelHint != "" && req.ModelHint != h.Architecture && req.ModelHint != string(h.ID) {
				continue
			}
			out = append(out, router.Candidate{
				ModelID:   string(h.ID),
				Precision: h.DefaultPrecision,
				Bits:      widestBits(h.DefaultPrecision),
				Utility:   1,
			})
		}
		return out
	}
}

func widestBits(profile quant.Profile) int {
	bits := quant.KindI8.Bits()
	for _, kind := range profile {
		if kind.Bits() > bits {
			bits = kind.Bits()
		}
	}
	return bits
}
