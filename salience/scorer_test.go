package salience

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nsqe/nsqe/quant"
)

func TestScoreTokensEmptyInputNeverFails(t *testing.T) {
	scorer, err := New(DefaultConfig())
	require.NoError(t, err)

	scores := scorer.ScoreTokens(nil, Context{})
	require.NotNil(t, scores)
	require.Empty(t, scores)
}

func TestScoreTokensDegradedWithoutCache(t *testing.T) {
	scorer, err := New(DefaultConfig())
	require.NoError(t, err)

	tokens := []Token{
		{Index: 0, Text: "the"},
		{Index: 1, Text: "quantum"},
	}
	scores := scorer.ScoreTokens(tokens, Context{HasCache: false})

	require.Len(t, scores, 2)
	for _, s := range scores {
		require.True(t, s.Degraded)
	}
}

func TestScoreTokensNormalizedRange(t *testing.T) {
	scorer, err := New(DefaultConfig())
	require.NoError(t, err)

	tokens := []Token{
		{Index: 0, Text: "the", PredictedDist: []float32{0.9, 0.05, 0.05}},
		{Index: 1, Text: "quantum", PredictedDist: []float32{0.34, 0.33, 0.33}},
		{Index: 2, Text: ".", PredictedDist: []float32{0.5, 0.5}},
	}
	ctx := Context{HasCache: true, AttentionMass: []float32{0.1, 0.8, 0.1}}

	scores := scorer.ScoreTokens(tokens, ctx)
	require.Len(t, scores, 3)
	for _, s := range scores {
		require.GreaterOrEqual(t, s.Value, float32(0))
		require.LessOrEqual(t, s.Value, float32(1))
	}
	require.Equal(t, RoleSyntactic, scores[2].Role)
}

func TestScoreTokensDeterministicForFixedSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PrivacyEpsilon = 0.5
	cfg.Seed = 42

	tokens := []Token{
		{Index: 0, Text: "alpha", PredictedDist: []float32{0.6, 0.4}},
		{Index: 1, Text: "beta", PredictedDist: []float32{0.2, 0.8}},
	}
	ctx := Context{HasCache: true, AttentionMass: []float32{0.3, 0.7}}

	s1, err := New(cfg)
	require.NoError(t, err)
	s2, err := New(cfg)
	require.NoError(t, err)

	require.Equal(t, s1.ScoreTokens(tokens, ctx), s2.ScoreTokens(tokens, ctx))
}

func TestNewRejectsWeightsNotSummingToOne(t *testing.T) {
	cfg := Config{EntropyWeight: 0.5, AttentionWeight: 0.5, RolePriorWeight: 0.5}
	_, err := New(cfg)
	require.Error(t, err)
}

func TestScoreChannelsNormalized(t *testing.T) {
	scorer, err := New(DefaultConfig())
	require.NoError(t, err)

	tensor := quant.TensorDescriptor{Shape: []uint64{3, 64}}
	batch := SampleBatch{
		{0.01, 0.02, 0.01},
		{1.5, 1.6, 1.4},
		{0.3, 0.35, 0.32},
	}

	scores := scorer.ScoreChannels(tensor, batch)
	require.Len(t, scores, 3)
	require.InDelta(t, 0, scores[0], 1e-6)
	require.InDelta(t, 1, scores[1], 1e-6)
}
