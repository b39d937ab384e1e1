// Package router implements the Neurosymbolic Router (C5): a two-stage
// neural-ranking-then-symbolic-rule pipeline producing RoutingDecisions,
// backed by an LRU decision cache.
//
// The ranking-then-rule-filter shape is grounded on
// llm-d-inference-scheduler's pd.Scheduler.scorersFromConfig: named
// scorers each contribute a weighted term, composed via a map of scorer
// to weight, then a separate filtering stage narrows candidates.
package router

import "github.com/nsqe/nsqe/quant"

// ContentClass is a coarse classification of a prompt's dominant content,
// used by symbolic rules like MinBitsForContentClass.
type ContentClass string

const (
	ContentClassText    ContentClass = "text"
	ContentClassCode    ContentClass = "code"
	ContentClassNumeric ContentClass = "numeric"
)

// LatencyClass buckets a request's deadline into a coarse tier the
// neural stage can score against.
type LatencyClass uint8

const (
	LatencyInteractive LatencyClass = iota
	LatencyStandard
	LatencyBatch
)

// Request is the routing-relevant projection of an inbound inference
// request — not the full API request, just what C5 needs to extract
// features and build a fingerprint.
type Request struct {
	Tenant        string
	Prompt        string
	ModelHint     string
	Language      string
	LatencyBudget LatencyClass
	UseNeurosymbolicRouting bool
}

// Features is the neural stage's extracted feature vector.
type Features struct {
	Length       int
	Language     string
	ContentClass ContentClass
	LatencyClass LatencyClass
	Salience     float32
}

// Candidate is a (model, precision) pair produced by the neural stage,
// before symbolic rules are applied.
type Candidate struct {
	ModelID   string
	Precision quant.Profile
	Bits      int
	Utility   float64
}

// ExecutionStrategy names how the runtime should execute a decision
// (plain decode, speculative, batched).
type ExecutionStrategy string

const (
	StrategyStandard    ExecutionStrategy = "standard"
	StrategySpeculative ExecutionStrategy = "speculative"
	StrategyBatched     ExecutionStrategy = "batched"
)

// RoutingDecision is the data model's tuple: model, precision profile,
// execution strategy, which symbolic rules fired, and a confidence score.
type RoutingDecision struct {
	ModelID            string
	PrecisionProfile   quant.Profile
	ExecutionStrategy  ExecutionStrategy
	SymbolicRulesFired []string
	Confidence         float64
}
