package runtime

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/kvcache"
	"github.com/nsqe/nsqe/registry"
)

// Config bundles Engine's tunables.
type Config struct {
	// EmitRate bounds how fast tokens are emitted downstream, independent
	// of how fast Forward can produce them, so decoding pauses rather than
	// buffers unboundedly.
	EmitRate  rate.Limit
	EmitBurst int
}

// DefaultConfig emits as fast as Forward allows, relying on the buffered
// channel of depth 1 for backpressure rather than rate shaping.
func DefaultConfig() Config {
	return Config{EmitRate: rate.Inf, EmitBurst: 1}
}

// Engine implements C7: Run(ctx, request, decision, node) -> stream of
// tokens, generalizing runner/ollamarunner's decode loop shape (lazy
// producer goroutine, backpressure over buffering, cooperative
// cancellation at stage boundaries).
type Engine struct {
	cfg      Config
	registry *registry.Registry
	cache    *kvcache.Manager
	forward  Forward
	log      *slog.Logger
}

// New constructs an Engine. forward is the injected execution backend;
// Engine itself never computes attention.
func New(cfg Config, reg *registry.Registry, cache *kvcache.Manager, forward Forward) *Engine {
	return &Engine{cfg: cfg, registry: reg, cache: cache, forward: forward, log: slog.Default()}
}

// Run resolves req.Sequence's model and precision from decision, then
// decodes until a stop condition is reached, yielding each Token on the
// returned channel. The channel is closed after the final (Done) token
// or if Run returns a non-nil error before producing any tokens.
//
// Backpressure: the channel has capacity 1; a decode step blocks on
// sending its token rather than queuing further steps, so a lagging
// consumer directly slows the producer instead of letting memory grow.
// Cancellation: ctx is checked between each of the five per-step
// stages (design note 9's "do not hold locks across yields" extended to
// "do not hold locks across a cancellation check" here); in-flight
// Forward calls are allowed to complete.
func (e *Engine) Run(ctx context.Context, req Request, decision RoutingDecision, node NodeRecord) (<-chan Token, error) {
	handle, err := e.registry.Describe(registry.ModelID(decision.ModelID))
	if err != nil {
		return nil, err
	}
	if err := e.registry.Pin(registry.ModelID(decision.ModelID)); err != nil {
		return nil, err
	}

	out := make(chan Token, 1)
	limiter := rate.NewLimiter(e.cfg.EmitRate, e.cfg.EmitBurst)

	go e.decode(ctx, req, decision, handle, limiter, out)
	return out, nil
}

func (e *Engine) decode(ctx context.Context, req Request, decision RoutingDecision, handle *registry.ModelHandle, limiter *rate.Limiter, out chan<- Token) {
	defer close(out)
	defer func() {
		if err := e.registry.Unpin(handle.ID); err != nil {
			e.log.Error("unpin after decode", "model", handle.ID, "error", err)
		}
	}()

	tokens := append([]int32(nil), req.Prompt...)
	pos := int32(len(tokens))

	for step := 0; ; step++ {
		preCause, ok := stopBefore(ctx, step, req)
		if !ok {
			e.emit(ctx, out, Token{Index: step, Done: true, StopCause: preCause})
			return
		}

		// Stage 1: weights already pinned for the whole run at Run() time —
		// re-pinning per step would just bounce the refcount for no benefit
		// since the model can't change mid-run.

		// Stage 2: reserve and pin KV blocks for this step's position range.
		positions := kvcache.PosRange{Min: pos, Max: pos + 1}
		handles, err := e.cache.Reserve(req.Sequence, 0, positions, decisionCodec(decision), decisionBits(decision))
		if err != nil {
			e.emitErr(ctx, out, step, err)
			return
		}
		for _, h := range handles {
			if err := e.cache.Pin(h); err != nil {
				e.emitErr(ctx, out, step, err)
				return
			}
		}

		if ctx.Err() != nil {
			e.unpinAll(handles)
			e.emit(ctx, out, Token{Index: step, Done: true, StopCause: StopCancelled})
			return
		}

		// Stage 3: execute the forward pass at the decision's precision.
		result, err := e.forward(tokens, handle.Layers, decision.PrecisionProfile)
		if err != nil {
			e.unpinAll(handles)
			e.emitErr(ctx, out, step, err)
			return
		}

		// Stage 4: write K/V, then unpin.
		if len(handles) > 0 {
			if err := e.cache.Write(handles[0], result.Keys, result.Values, result.Params); err != nil {
				e.unpinAll(handles)
				e.emitErr(ctx, out, step, err)
				return
			}
		}
		e.unpinAll(handles)

		tokens = append(tokens, result.TokenID)
		pos++

		// Stage 5: emit, then loop or stop.
		if err := limiter.Wait(ctx); err != nil {
			e.emit(ctx, out, Token{Index: step, Done: true, StopCause: StopCancelled})
			return
		}

		done := result.EOS || isStopToken(result.TokenID, req.StopTokenIDs) || step+1 >= req.MaxNewTokens
		cause := StopNone
		switch {
		case result.EOS || isStopToken(result.TokenID, req.StopTokenIDs):
			cause = StopEOS
		case step+1 >= req.MaxNewTokens:
			cause = StopMaxTokens
		}
		e.emit(ctx, out, Token{Index: step, Text: result.Text, ID: result.TokenID, Done: done, StopCause: cause})
		if done {
			return
		}
	}
}

// stopBefore checks the cancellation and deadline conditions that apply
// before a step starts; ok is false when decoding must stop immediately
// without attempting another forward pass.
func stopBefore(ctx context.Context, step int, req Request) (StopCause, bool) {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return StopDeadline, false
		}
		return StopCancelled, false
	default:
	}
	if req.MaxNewTokens > 0 && step >= req.MaxNewTokens {
		return StopMaxTokens, false
	}
	return StopNone, true
}

// emit sends tok on out, itself respecting cancellation so a step that
// finished just as the context expired doesn't block forever on a
// consumer that has already walked away.
func (e *Engine) emit(ctx context.Context, out chan<- Token, tok Token) {
	select {
	case out <- tok:
	case <-ctx.Done():
	}
}

func (e *Engine) emitErr(ctx context.Context, out chan<- Token, step int, err error) {
	e.log.Error("decode step failed", "step", step, "error", err)
	cause := StopCancelled
	if errs.Retryable(err) {
		cause = StopNone
	}
	e.emit(ctx, out, Token{Index: step, Done: true, StopCause: cause})
}

func (e *Engine) unpinAll(handles []kvcache.BlockHandle) {
	for _, h := range handles {
		if err := e.cache.Unpin(h); err != nil {
			e.log.Error("unpin kv block", "error", err)
		}
	}
}

func isStopToken(id int32, stop []int32) bool {
	for _, s := range stop {
		if s == id {
			return true
		}
	}
	return false
}
