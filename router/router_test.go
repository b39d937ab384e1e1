package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

func fixedCandidates(req Request) []Candidate {
	return []Candidate{
		{ModelID: "small", Precision: quant.Profile{"*": quant.KindI4}, Bits: 4},
		{ModelID: "large", Precision: quant.Profile{"*": quant.KindI8}, Bits: 8},
	}
}

func TestRouteCodeContentForcesMinBits(t *testing.T) {
	r := New(DefaultConfig(), fixedCandidates)

	req := Request{Tenant: "acme", Prompt: "run this: SELECT * FROM users", LatencyBudget: LatencyStandard}
	decision, err := r.Route(req, 0.2)
	require.NoError(t, err)

	require.Contains(t, decision.SymbolicRulesFired, "min_bits_for_code")
	kind, ok := decision.PrecisionProfile["*"]
	require.True(t, ok)
	require.GreaterOrEqual(t, kind.Bits(), 8)
}

func TestRouteNoViableRouteWhenNoCandidates(t *testing.T) {
	r := New(DefaultConfig(), func(Request) []Candidate { return nil })

	_, err := r.Route(Request{Tenant: "acme", Prompt: "hello"}, 0.5)
	require.ErrorIs(t, err, errs.ErrNoViableRoute)
}

func TestRouteCacheHitMatchesMiss(t *testing.T) {
	r := New(DefaultConfig(), fixedCandidates)
	req := Request{Tenant: "acme", Prompt: "plain text prompt", LatencyBudget: LatencyInteractive}

	miss, err := r.Route(req, 0.4)
	require.NoError(t, err)

	hit, err := r.Route(req, 0.4)
	require.NoError(t, err)

	require.Equal(t, miss, hit)
}

func TestRuleSetAppliesMinBitsToFixedPoint(t *testing.T) {
	rs := RuleSet{Rules: []Rule{MinBitsForContentClass(ContentClassCode, 8)}, MaxIterations: 4}
	feats := Features{ContentClass: ContentClassCode}
	candidates := []Candidate{{ModelID: "m", Bits: 2}}

	survivors, fired := rs.Apply(Request{}, feats, candidates)
	require.Len(t, survivors, 1)
	require.Equal(t, 8, survivors[0].Bits)
	require.Equal(t, []string{"min_bits_for_code"}, fired)
}

func TestRuleSetForbidDropsCandidate(t *testing.T) {
	rs := RuleSet{
		Rules: []Rule{{
			Name:      "forbid_small",
			Condition: func(_ Request, _ Features, c Candidate) bool { return c.Bits < 4 },
			Action:    ActionForbid,
		}},
		MaxIterations: 4,
	}
	candidates := []Candidate{{ModelID: "tiny", Bits: 2}, {ModelID: "ok", Bits: 4}}

	survivors, fired := rs.Apply(Request{}, Features{}, candidates)
	require.Len(t, survivors, 1)
	require.Equal(t, "ok", survivors[0].ModelID)
	require.Equal(t, []string{"forbid_small"}, fired)
}
