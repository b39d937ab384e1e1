package router

import (
	"log/slog"
	"time"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

// CandidateSource supplies the neural stage's initial (model, precision)
// candidates for a request — backed by the caller's registry lookup in
// production, a fixed table in tests.
type CandidateSource func(req Request) []Candidate

// Config bundles Router's tunables, sourced from envconfig by callers.
type Config struct {
	Weights       Weights
	Rules         RuleSet
	CacheCapacity int
	CacheTTL      time.Duration
}

// DefaultConfig pairs DefaultWeights with DefaultRuleSet and a modest
// cache.
func DefaultConfig() Config {
	return Config{
		Weights:       DefaultWeights(),
		Rules:         DefaultRuleSet(),
		CacheCapacity: 4096,
		CacheTTL:      5 * time.Minute,
	}
}

// Router implements C5's route(request) -> RoutingDecision contract.
type Router struct {
	cfg        Config
	cache      *decisionCache
	candidates CandidateSource
	extractor  FeatureExtractor
	log        *slog.Logger
}

// New constructs a Router backed by candidates.
func New(cfg Config, candidates CandidateSource) *Router {
	return &Router{
		cfg:        cfg,
		cache:      newDecisionCache(cfg.CacheCapacity, cfg.CacheTTL),
		candidates: candidates,
		log:        slog.Default(),
	}
}

// Route implements the two-stage neural-then-symbolic pipeline. salience
// is the mean salience score of the prompt's tokens from C1. A cache hit
// is observationally equivalent to a miss: same fields, same shape,
// just skipping recomputation.
func (r *Router) Route(req Request, salience float32) (RoutingDecision, error) {
	fp := fingerprint(req)
	if decision, ok := r.cache.get(fp); ok {
		return decision, nil
	}

	raw := r.candidates(req)
	if len(raw) == 0 {
		return RoutingDecision{}, errs.ErrNoViableRoute
	}

	feats := r.extractor.Extract(req, salience)
	ranked := r.cfg.Weights.Rank(feats, raw)

	survivors, fired := r.cfg.Rules.Apply(req, feats, ranked)
	if len(survivors) == 0 {
		return RoutingDecision{}, errs.ErrNoViableRoute
	}

	bestIdx := 0
	for i, c := range survivors {
		if c.Utility > survivors[bestIdx].Utility {
			bestIdx = i
		}
	}
	best := survivors[bestIdx]

	decision := RoutingDecision{
		ModelID:            best.ModelID,
		PrecisionProfile:   applyWidenedBits(best.Precision, best.Bits),
		ExecutionStrategy:  strategyFor(feats),
		SymbolicRulesFired: fired,
		Confidence:         confidence(bestIdx, survivors),
	}

	r.cache.put(fp, decision)
	r.log.Debug("routed request", "tenant", req.Tenant, "model", decision.ModelID, "rules_fired", len(fired))
	return decision, nil
}

// applyWidenedBits returns a copy of profile whose wildcard "*" pattern
// is always set to the kind for bits, the candidate's bit width after the
// symbolic stage (which may have raised it) — a wildcard entry composes
// naturally with whatever per-layer entries the candidate already had.
func applyWidenedBits(profile quant.Profile, bits int) quant.Profile {
	out := make(quant.Profile, len(profile)+1)
	for k, v := range profile {
		out[k] = v
	}
	out["*"] = bitsToKind(bits)
	return out
}

func bitsToKind(bits int) quant.ElementKind {
	switch {
	case bits >= 16:
		return quant.KindF16
	case bits >= 8:
		return quant.KindI8
	case bits >= 4:
		return quant.KindI4
	case bits >= 2:
		return quant.KindI2
	default:
		return quant.KindI1
	}
}

func strategyFor(feats Features) ExecutionStrategy {
	switch feats.LatencyClass {
	case LatencyInteractive:
		return StrategySpeculative
	case LatencyBatch:
		return StrategyBatched
	default:
		return StrategyStandard
	}
}

// confidence is the winning candidate's utility margin over the
// runner-up, clamped to [0,1].
func confidence(bestIdx int, survivors []Candidate) float64 {
	if len(survivors) < 2 {
		return 1.0
	}
	best := survivors[bestIdx].Utility

	runnerUp := 0.0
	found := false
	for i, c := range survivors {
		if i == bestIdx {
			continue
		}
		if !found || c.Utility > runnerUp {
			runnerUp = c.Utility
			found = true
		}
	}

	if best <= 0 {
		return 0
	}
	margin := (best - runnerUp) / best
	if margin < 0 {
		return 0
	}
	if margin > 1 {
		return 1
	}
	return margin
}
