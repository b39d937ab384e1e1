package router

// Weights is the linear utility model the neural stage ranks candidates
// with — a named-scorer-to-weight composition grounded on
// llm-d-inference-scheduler's scorersFromConfig, generalized from GPU
// queue-depth/KV-cache scorers to this module's own feature set.
type Weights struct {
	SalienceMatch float64
	LatencyFit    float64
	PrecisionCost float64
}

// DefaultWeights favors salience alignment and latency fit over raw
// precision cost, biasing toward quality-first scoring with cost as a
// tie-breaker.
func DefaultWeights() Weights {
	return Weights{SalienceMatch: 0.5, LatencyFit: 0.3, PrecisionCost: 0.2}
}

// Rank scores candidates against feats using w, mutating and returning
// Utility on each, highest first.
func (w Weights) Rank(feats Features, candidates []Candidate) []Candidate {
	scored := append([]Candidate(nil), candidates...)
	for i := range scored {
		scored[i].Utility = w.score(feats, scored[i])
	}
	sortByUtilityDescending(scored)
	return scored
}

func (w Weights) score(feats Features, c Candidate) float64 {
	salienceTerm := float64(feats.Salience)
	latencyTerm := latencyFit(feats.LatencyClass, c.Bits)
	costTerm := 1.0 / float64(c.Bits+1)

	return w.SalienceMatch*salienceTerm + w.LatencyFit*latencyTerm + w.PrecisionCost*costTerm
}

// latencyFit rewards low bit-widths under tight latency budgets and high
// bit-widths when latency is not the binding constraint.
func latencyFit(class LatencyClass, bits int) float64 {
	switch class {
	case LatencyInteractive:
		return 1.0 / float64(bits+1)
	case LatencyBatch:
		return float64(bits) / 32.0
	default:
		return 0.5
	}
}

func sortByUtilityDescending(candidates []Candidate) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].Utility > candidates[j-1].Utility; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}
