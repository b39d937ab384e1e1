package quant

import (
	"errors"
	"fmt"
	"math"
)

var errUnsupported = errors.New("quant: unsupported")

// CodecTag identifies the quantization scheme used to encode a block or
// tensor. Tags are small and stable since they are also the on-disk
// byte written by the artifact format.
type CodecTag uint8

const (
	CodecLinear CodecTag = iota
	CodecAsymmetricLinear
	CodecLogLinear
	CodecHalf // non-quantized float16 downcast, used for the f16 element kind
)

func (t CodecTag) String() string {
	switch t {
	case CodecLinear:
		return "linear"
	case CodecAsymmetricLinear:
		return "asymmetric-linear"
	case CodecLogLinear:
		return "log-linear"
	case CodecHalf:
		return "half"
	default:
		return "unknown"
	}
}

// CodecParams carries the per-block parameters a codec needs to
// dequantize: scale and, for asymmetric codecs, a zero-point.
type CodecParams struct {
	Scale     float32
	ZeroPoint float32
}

// CodecOps is the operations table associated with a CodecTag, the
// "associated operations table" design note 9 calls for instead of open
// polymorphism: Quantizer looks codecs up by tag, never by type switch
// over an interface.
type CodecOps struct {
	Tag CodecTag

	// Epsilon is the codec's declared reconstruction error bound: for any
	// quantize/dequantize round trip, ||x-x̂||/||x|| <= Epsilon is
	// expected to hold on well-behaved inputs. The Quantizer samples
	// actual error against this bound rather than trusting it blindly.
	Epsilon float64

	// Quantize packs x at the given bit width into a payload plus the
	// parameters needed to invert it.
	Quantize func(x []float32, bits int) (payload []byte, params CodecParams, err error)

	// Dequantize reconstructs n float32 values from payload at the given
	// bit width using params.
	Dequantize func(payload []byte, n int, bits int, params CodecParams) ([]float32, error)
}

var registry = make(map[CodecTag]CodecOps)

// RegisterCodec installs ops under tag. Called from each codec's own
// init(), mirroring model.Register: panics on a duplicate tag since that
// can only be a programming error, never a runtime condition.
func RegisterCodec(ops CodecOps) {
	if _, exists := registry[ops.Tag]; exists {
		panic(fmt.Sprintf("quant: codec %v already registered", ops.Tag))
	}
	registry[ops.Tag] = ops
}

// Lookup returns the operations table for tag. An unknown tag is always
// a load-time error, per design note 9: codecs are a closed, registered
// set, never discovered dynamically from file contents.
func Lookup(tag CodecTag) (CodecOps, error) {
	ops, ok := registry[tag]
	if !ok {
		return CodecOps{}, fmt.Errorf("%w: codec tag %v", errUnsupported, tag)
	}
	return ops, nil
}

// l2Ratio computes ||x-y||/||x||, the reconstruction error metric every
// codec and the Quantizer's calibration pass share.
func l2Ratio(x, y []float32) float64 {
	var num, den float64
	for i := range x {
		d := float64(x[i]) - float64(y[i])
		num += d * d
		den += float64(x[i]) * float64(x[i])
	}
	if den == 0 {
		return 0
	}
	return math.Sqrt(num / den)
}
