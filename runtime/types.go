// Package runtime implements the Inference Runtime (C7): the per-step
// decode pipeline that turns a routed request into a stream of tokens.
//
// Engine.Run's control-flow shape — a lazy producer goroutine yielding
// on backpressure, cooperative cancellation checked between stages —
// models the scheduling and memory contract around a forward pass, not
// the forward pass itself; no tensor math lives in this package.
package runtime

import (
	"github.com/nsqe/nsqe/cluster"
	"github.com/nsqe/nsqe/kvcache"
	"github.com/nsqe/nsqe/quant"
	"github.com/nsqe/nsqe/registry"
	"github.com/nsqe/nsqe/router"
)

// Token is one decode step's output, emitted downstream by Engine.Run.
type Token struct {
	Index     int
	Text      string
	ID        int32
	Done      bool
	StopCause StopCause
}

// StopCause reports why a stream ended, set only on the final Token
// (Done == true).
type StopCause uint8

const (
	StopNone StopCause = iota
	StopEOS
	StopMaxTokens
	StopDeadline
	StopCancelled
	StopNodeLost
)

func (s StopCause) String() string {
	switch s {
	case StopEOS:
		return "eos"
	case StopMaxTokens:
		return "max_tokens"
	case StopDeadline:
		return "deadline"
	case StopCancelled:
		return "cancelled"
	case StopNodeLost:
		return "node_lost"
	default:
		return "none"
	}
}

// Request is C7's input: the prompt plus generation bounds. Tenant and
// routing fields live on router.Request; this is the subset the decode
// loop itself needs.
type Request struct {
	Prompt       []int32
	MaxNewTokens int
	StopTokenIDs []int32
	Sequence     kvcache.SequenceID
}

// Forward executes one decode step's forward pass: given the prompt-so-
// far token ids, pinned weight layers, and the precision profile the
// router chose, it returns a sampled next-token id and its raw K/V
// payload for the step's position range. Engine never computes
// attention itself — Forward is injected, so the scheduling contract
// here is independent of which execution backend implements it.
type Forward func(tokens []int32, layers []registry.LayerDescriptor, profile quant.Profile) (StepResult, error)

// StepResult is one forward pass's output.
type StepResult struct {
	TokenID    int32
	Text       string
	EOS        bool
	Keys       []byte
	Values     []byte
	Params     quant.CodecParams
	Positions  kvcache.PosRange
	Bits       int
	Codec      quant.CodecTag
}

// RoutingDecision and NodeRecord are accepted verbatim from C5/C6 —
// Engine.Run's signature is the run(request, decision, node) contract.
type (
	RoutingDecision = router.RoutingDecision
	NodeRecord      = cluster.NodeRecord
)
