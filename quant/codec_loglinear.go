package quant

import "math"

func init() {
	RegisterCodec(CodecOps{
		Tag:        CodecLogLinear,
		Epsilon:    0.08,
		Quantize:   quantizeLogLinear,
		Dequantize: dequantizeLogLinear,
	})
}

// logPreScale maps the log-domain transform's dynamic range back onto
// roughly unit magnitude before the inner linear codec runs, so the
// log-linear codec's effective epsilon doesn't depend on the absolute
// scale of its input.
const logPreScale = 1.0

// quantizeLogLinear is the codec for outlier-heavy tensors (design note
// 4.2: "logarithmic for outlier-heavy tensors"). It compands values
// through a symmetric log1p transform before handing them to the
// symmetric linear codec, so a handful of large outliers no longer blow
// out the shared grid for every other value in the channel.
//
// CodecParams.ZeroPoint is repurposed here to carry the log-domain
// linear codec's own scale, since the transform has no zero-point of its
// own; Scale always holds logPreScale for symmetry with the linear codec.
func quantizeLogLinear(x []float32, bits int) ([]byte, CodecParams, error) {
	companded := make([]float32, len(x))
	for i, v := range x {
		companded[i] = compand(v)
	}

	payload, inner, err := quantizeLinear(companded, bits)
	if err != nil {
		return nil, CodecParams{}, err
	}

	return payload, CodecParams{Scale: logPreScale, ZeroPoint: inner.Scale}, nil
}

func dequantizeLogLinear(payload []byte, n, bits int, params CodecParams) ([]float32, error) {
	companded, err := dequantizeLinear(payload, n, bits, CodecParams{Scale: params.ZeroPoint})
	if err != nil {
		return nil, err
	}

	out := make([]float32, n)
	for i, v := range companded {
		out[i] = expand(v)
	}
	return out, nil
}

func compand(x float32) float32 {
	sign := float32(1)
	if x < 0 {
		sign = -1
	}
	return sign * float32(math.Log1p(math.Abs(float64(x))/logPreScale))
}

func expand(y float32) float32 {
	sign := float32(1)
	if y < 0 {
		sign = -1
	}
	return sign * float32(math.Expm1(math.Abs(float64(y)))) * logPreScale
}
