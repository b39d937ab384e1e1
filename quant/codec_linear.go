package quant

import "math"

func init() {
	RegisterCodec(CodecOps{
		Tag:        CodecLinear,
		Epsilon:    0.05,
		Quantize:   quantizeLinear,
		Dequantize: dequantizeLinear,
	})
	RegisterCodec(CodecOps{
		Tag:        CodecAsymmetricLinear,
		Epsilon:    0.05,
		Quantize:   quantizeAsymmetricLinear,
		Dequantize: dequantizeAsymmetricLinear,
	})
}

// quantizeLinear is the default, symmetric per-channel absmax codec: the
// grid is centered at zero, so it never needs a zero-point, at the cost
// of wasting half a level when the data is skewed (AsymmetricLinear
// exists for that case).
func quantizeLinear(x []float32, bits int) ([]byte, CodecParams, error) {
	if bits < 1 || bits > 8 {
		return nil, CodecParams{}, errUnsupported
	}

	var absmax float32
	for _, v := range x {
		if a := float32(math.Abs(float64(v))); a > absmax {
			absmax = a
		}
	}

	half := uint32(1)<<uint(bits-1) - 1
	scale := float32(1)
	if absmax > 0 {
		scale = absmax / float32(half)
	}

	levels := make([]uint32, len(x))
	for i, v := range x {
		level := int32(math.Round(float64(v / scale)))
		if level > int32(half) {
			level = int32(half)
		}
		if level < -int32(half)-1 {
			level = -int32(half) - 1
		}
		levels[i] = uint32(level + int32(half) + 1)
	}

	return packBits(levels, bits), CodecParams{Scale: scale}, nil
}

func dequantizeLinear(payload []byte, n, bits int, params CodecParams) ([]float32, error) {
	if bits < 1 || bits > 8 {
		return nil, errUnsupported
	}
	half := int32(1)<<uint(bits-1) - 1
	levels := unpackBits(payload, n, bits)
	out := make([]float32, n)
	for i, lvl := range levels {
		level := int32(lvl) - half - 1
		out[i] = float32(level) * params.Scale
	}
	return out, nil
}

// quantizeAsymmetricLinear fits the grid to [min,max] with an explicit
// zero-point, which halves reconstruction error on tensors whose values
// cluster away from zero (biases, post-GELU activations).
func quantizeAsymmetricLinear(x []float32, bits int) ([]byte, CodecParams, error) {
	if bits < 1 || bits > 8 {
		return nil, CodecParams{}, errUnsupported
	}
	if len(x) == 0 {
		return nil, CodecParams{}, nil
	}

	min, max := x[0], x[0]
	for _, v := range x {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	levelsCount := uint32(1)<<uint(bits) - 1
	scale := float32(1)
	if max > min {
		scale = (max - min) / float32(levelsCount)
	}
	zeroPoint := float32(math.Round(float64(-min / scale)))

	levels := make([]uint32, len(x))
	for i, v := range x {
		level := int32(math.Round(float64(v/scale))) + int32(zeroPoint)
		if level < 0 {
			level = 0
		}
		if level > int32(levelsCount) {
			level = int32(levelsCount)
		}
		levels[i] = uint32(level)
	}

	return packBits(levels, bits), CodecParams{Scale: scale, ZeroPoint: zeroPoint}, nil
}

func dequantizeAsymmetricLinear(payload []byte, n, bits int, params CodecParams) ([]float32, error) {
	if bits < 1 || bits > 8 {
		return nil, errUnsupported
	}
	levels := unpackBits(payload, n, bits)
	out := make([]float32, n)
	for i, lvl := range levels {
		out[i] = (float32(lvl) - params.ZeroPoint) * params.Scale
	}
	return out, nil
}
