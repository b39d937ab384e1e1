package quant

import (
	"encoding/binary"

	"github.com/x448/float16"
)

func init() {
	RegisterCodec(CodecOps{
		Tag:        CodecHalf,
		Epsilon:    0.001,
		Quantize:   quantizeHalf,
		Dequantize: dequantizeHalf,
	})
}

// quantizeHalf is not really "quantization" in the bit-budget sense —
// bits is ignored and always treated as 16 — it's the f16 element kind's
// storage codec, kept as a registered codec like any other so the
// Quantizer never special-cases element kind when writing an artifact.
func quantizeHalf(x []float32, _ int) ([]byte, CodecParams, error) {
	payload := make([]byte, len(x)*2)
	for i, v := range x {
		binary.LittleEndian.PutUint16(payload[i*2:], float16.Fromfloat32(v).Bits())
	}
	return payload, CodecParams{}, nil
}

func dequantizeHalf(payload []byte, n, _ int, _ CodecParams) ([]float32, error) {
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint16(payload[i*2:])
		out[i] = float16.Frombits(bits).Float32()
	}
	return out, nil
}
