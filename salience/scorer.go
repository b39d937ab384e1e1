package salience

import (
	"log/slog"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/nsqe/nsqe/quant"
)

// Scorer implements C1's two contract operations. Construct with New;
// the zero value is not usable since weight validation happens there.
type Scorer struct {
	cfg Config
	log *slog.Logger
}

// New validates cfg and returns a Scorer, or errs.ErrInvalidInput if the
// weights don't sum to 1 or PrivacyEpsilon is negative.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scorer{cfg: cfg, log: slog.Default()}, nil
}

// ScoreTokens scores each token as a weighted sum of next-token
// entropy, received attention mass, and role prior, min-max normalised
// per sequence. Empty input returns an empty, non-nil result — this
// never fails.
func (s *Scorer) ScoreTokens(tokens []Token, ctx Context) []Score {
	if len(tokens) == 0 {
		return []Score{}
	}

	raw := make([]float64, len(tokens))
	degraded := make([]bool, len(tokens))

	for i, tok := range tokens {
		entropy := tokenEntropy(tok.PredictedDist)

		attention := 0.0
		tokenDegraded := !ctx.HasCache || i >= len(ctx.AttentionMass)
		if !tokenDegraded {
			attention = float64(ctx.AttentionMass[i])
		}
		degraded[i] = tokenDegraded

		role := resolveRole(tok)
		prior := rolePrior[role]

		if tokenDegraded {
			raw[i] = prior
		} else {
			raw[i] = s.cfg.EntropyWeight*entropy + s.cfg.AttentionWeight*attention + s.cfg.RolePriorWeight*prior
		}
	}

	normalized := minMaxNormalize(raw)

	rng := rand.New(rand.NewSource(s.cfg.Seed))
	scores := make([]Score, len(tokens))
	for i, tok := range tokens {
		value := normalized[i]
		if s.cfg.PrivacyEpsilon > 0 {
			value = clamp01(value + laplaceNoise(rng, s.cfg.PrivacyEpsilon))
		}
		scores[i] = Score{
			Index:    tok.Index,
			Value:    float32(value),
			Role:     resolveRole(tok),
			Degraded: degraded[i],
		}
	}

	s.log.Debug("scored token batch", "count", len(scores), "degraded", countDegraded(scores))
	return scores
}

// ScoreChannels implements score_channels: a per-channel importance
// vector derived from the mean absolute value of each channel's
// calibration-batch activations,
// normalised to [0,1] so callers can compare directly against the
// Quantizer's high-salience widening threshold.
func (s *Scorer) ScoreChannels(tensor quant.TensorDescriptor, batch SampleBatch) []float32 {
	channels := int(tensor.Channels())
	raw := make([]float64, channels)

	for ch := 0; ch < channels && ch < len(batch); ch++ {
		samples := batch[ch]
		if len(samples) == 0 {
			continue
		}
		samples64 := make([]float64, len(samples))
		for i, v := range samples {
			samples64[i] = math.Abs(float64(v))
		}
		raw[ch] = floats.Sum(samples64) / float64(len(samples64))
	}

	normalized := minMaxNormalize(raw)
	out := make([]float32, channels)
	for i, v := range normalized {
		out[i] = float32(v)
	}
	return out
}

// tokenEntropy returns the Shannon entropy of dist, or 0 when dist is
// empty (degraded or unscored position).
func tokenEntropy(dist []float32) float64 {
	if len(dist) == 0 {
		return 0
	}
	p := make([]float64, len(dist))
	for i, v := range dist {
		p[i] = float64(v)
	}
	return stat.Entropy(p)
}

func minMaxNormalize(x []float64) []float64 {
	if len(x) == 0 {
		return x
	}
	lo, hi := floats.Min(x), floats.Max(x)
	out := make([]float64, len(x))
	if hi-lo < 1e-12 {
		for i := range out {
			out[i] = 0.5
		}
		return out
	}
	for i, v := range x {
		out[i] = (v - lo) / (hi - lo)
	}
	return out
}

// laplaceNoise draws from Laplace(0, 1/epsilon) via inverse CDF sampling.
func laplaceNoise(rng *rand.Rand, epsilon float64) float64 {
	u := rng.Float64() - 0.5
	b := 1.0 / epsilon
	sign := 1.0
	if u < 0 {
		sign = -1.0
	}
	return -b * sign * math.Log(1-2*math.Abs(u))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func countDegraded(scores []Score) int {
	n := 0
	for _, s := range scores {
		if s.Degraded {
			n++
		}
	}
	return n
}
