// Package salience implements the Salience Engine (C1): per-token and
// per-channel importance scoring consumed by the Quantizer to allocate
// bit-budget and by the Router to rank candidate precisions.
//
// Both entry points are pure functions of their arguments and a fixed
// seed — Scorer itself carries only its Config and a logger; the PRNG
// used solely for privacy noise is seeded afresh from Config.Seed on
// each call, so two calls with the same input never disagree.
package salience

// RoleTag is the coarse grammatical/structural role a token plays, used
// to look up its static prior in rolePrior.
type RoleTag uint8

const (
	RoleContent RoleTag = iota
	RoleSyntactic
	RolePosition
	RoleFiller
)

func (r RoleTag) String() string {
	switch r {
	case RoleContent:
		return "content"
	case RoleSyntactic:
		return "syntactic"
	case RolePosition:
		return "position"
	case RoleFiller:
		return "filler"
	default:
		return "unknown"
	}
}

// Token is one position in a sequence being scored. PredictedDist is the
// model's predicted next-token distribution at this position, used for
// the entropy term; it may be nil when the caller has no forward-pass
// output to offer (degraded mode then applies).
type Token struct {
	Index         int
	Text          string
	Role          *RoleTag // nil: role is inferred from Text via classifyRole
	PredictedDist []float32
}

// Context carries the reference forward pass's attention mass, one entry
// per token, received from later tokens. A nil or short AttentionMass
// triggers degraded mode for the tokens it can't cover.
type Context struct {
	AttentionMass []float32
	HasCache      bool
}

// Score is one token's salience score: a normalised importance in
// [0,1], a role tag, and a degraded flag.
type Score struct {
	Index    int
	Value    float32
	Role     RoleTag
	Degraded bool
}

// SampleBatch is a batch of per-channel activation samples collected
// during a calibration or reference pass, indexed [channel][sample].
type SampleBatch [][]float32
