package runtime

import "github.com/nsqe/nsqe/quant"

// decisionBits and decisionCodec derive the KV-cache quantization
// parameters for a step from the routing decision's precision profile.
// The profile's wildcard entry (router.applyWidenedBits always sets one)
// is authoritative; a profile built without a wildcard falls back to i8.
func decisionBits(d RoutingDecision) int {
	if kind, ok := d.PrecisionProfile["*"]; ok {
		return kind.Bits()
	}
	return quant.KindI8.Bits()
}

func decisionCodec(d RoutingDecision) quant.CodecTag {
	bits := decisionBits(d)
	if bits >= quant.KindF16.Bits() {
		return quant.CodecHalf
	}
	return quant.CodecLinear
}
