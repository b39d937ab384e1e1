package quant

import (
	"fmt"

	"github.com/nsqe/nsqe/errs"
)

// QuantizedBlock is a contiguous slice of a tensor addressed by
// (TensorID, BlockIndex).
type QuantizedBlock struct {
	TensorID   string
	BlockIndex int
	Codec      CodecTag
	Params     CodecParams
	Payload    []byte
	Elements   int
}

// QuantizedTensor is the result of quantizing a TensorDescriptor: the
// input descriptor, unchanged, plus one block per
// channel so codec and bit width can vary channel by channel.
type QuantizedTensor struct {
	Descriptor TensorDescriptor
	Blocks     []QuantizedBlock
	// OriginalBytes and QuantizedBytes back the memory reduction factor
	// f = OriginalBytes/QuantizedBytes.
	OriginalBytes  uint64
	QuantizedBytes uint64
}

// ReductionFactor returns f = original/quantized, the memory reduction
// a quantized tensor achieves over its original representation.
func (q QuantizedTensor) ReductionFactor() float64 {
	if q.QuantizedBytes == 0 {
		return 0
	}
	return float64(q.OriginalBytes) / float64(q.QuantizedBytes)
}

// Profile maps layer names or glob-style patterns to a target element
// kind.
type Profile map[string]ElementKind

// Config bounds the Quantizer's behaviour. It is passed in by callers
// rather than read from the environment here — Quantizer stays a pure,
// test-friendly value type.
type Config struct {
	// MinReductionFactor is the caller-specified declared minimum for f;
	// QuantizeTensor refuses to emit below it.
	MinReductionFactor float64
	// KurtosisThreshold (τ) selects log-linear over linear per channel:
	// linear if kurtosis < τ else log-linear.
	KurtosisThreshold float64
	// MaxWidenBits bounds how far salience-driven widening or
	// accuracy-floor retries may push a channel's bit width.
	MaxWidenBits int
	// AutoWiden, when true, widens the offending layer's bits on
	// AccuracyFloorBreached instead of aborting.
	AutoWiden bool
}

// DefaultConfig returns the fallback tunables; its AutoWiden default
// matches the NSQE_AUTO_WIDEN default documented in envconfig.
func DefaultConfig() Config {
	return Config{
		MinReductionFactor: 1.0,
		KurtosisThreshold:  3.5,
		MaxWidenBits:       8,
		AutoWiden:          true,
	}
}

// Quantizer implements C2: mapping tensors to mixed-precision
// representations. It holds no mutable state — every call is a pure
// function of its arguments and Config.
type Quantizer struct {
	cfg Config
}

// New constructs a Quantizer with cfg.
func New(cfg Config) *Quantizer {
	return &Quantizer{cfg: cfg}
}

// QuantizeTensor quantizes t to targetBits: for each channel, compute
// absmax and, where salience is provided, widen the grid of
// high-salience channels by one bit up to MaxWidenBits. Codec choice
// per channel: linear if kurtosis < τ else log-linear.
func (q *Quantizer) QuantizeTensor(t TensorDescriptor, targetBits int, salience []float32, calibration [][]float32) (QuantizedTensor, error) {
	channels := int(t.Channels())
	if channels == 0 {
		return QuantizedTensor{}, fmt.Errorf("%w: tensor has no channels", errs.ErrInvalidInput)
	}
	rowWidth := int(t.Elements() / t.Channels())

	if salience != nil && len(salience) != channels {
		return QuantizedTensor{}, fmt.Errorf("%w: salience length %d does not match channel count %d", errs.ErrInvalidInput, len(salience), channels)
	}

	result := QuantizedTensor{
		Descriptor:    t,
		Blocks:        make([]QuantizedBlock, channels),
		OriginalBytes: t.Elements() * uint64(KindF32.Bits()) / 8,
	}

	for ch := 0; ch < channels; ch++ {
		row := channelRow(t, ch, rowWidth)
		bits := targetBits
		if salience != nil {
			bits = widenForSalience(targetBits, salience[ch], q.cfg.MaxWidenBits)
		}

		tag := CodecLinear
		if kurtosis(row) >= q.cfg.KurtosisThreshold {
			tag = CodecLogLinear
		}

		block, err := q.quantizeChannelWithRetry(t.Name, ch, row, bits, tag, calibrationColumn(calibration, ch))
		if err != nil {
			return QuantizedTensor{}, err
		}

		result.Blocks[ch] = block
		result.QuantizedBytes += uint64(len(block.Payload))
	}

	if q.cfg.MinReductionFactor > 0 && result.QuantizedBytes > 0 && result.ReductionFactor() < q.cfg.MinReductionFactor {
		return QuantizedTensor{}, fmt.Errorf("%w: reduction factor %.2f below declared minimum %.2f",
			errs.ErrAccuracyFloorBreached, result.ReductionFactor(), q.cfg.MinReductionFactor)
	}

	return result, nil
}

// quantizeChannelWithRetry quantizes one channel, sampling reconstruction
// error against the codec's declared epsilon on the calibration column
// when available, widening bits on breach if AutoWiden is set.
func (q *Quantizer) quantizeChannelWithRetry(tensorID string, ch int, row []float32, bits int, tag CodecTag, calib []float32) (QuantizedBlock, error) {
	for {
		ops, err := Lookup(tag)
		if err != nil {
			return QuantizedBlock{}, err
		}

		payload, params, err := ops.Quantize(row, bits)
		if err != nil {
			return QuantizedBlock{}, fmt.Errorf("%w: %v", errs.ErrPrecisionUnsupported, err)
		}

		sample := calib
		if sample == nil {
			sample = row
		}
		if len(sample) == 0 {
			return QuantizedBlock{}, fmt.Errorf("%w: no calibration data for channel %d", errs.ErrInsufficientCalibration, ch)
		}

		recon, err := quantizeThenDequantize(ops, sample, bits)
		if err != nil {
			return QuantizedBlock{}, err
		}

		if ratio := l2Ratio(sample, recon); ratio > ops.Epsilon {
			if q.cfg.AutoWiden && bits < q.cfg.MaxWidenBits {
				bits++
				continue
			}
			return QuantizedBlock{}, fmt.Errorf("%w: reconstruction error %.4f exceeds codec epsilon %.4f for channel %d",
				errs.ErrAccuracyFloorBreached, ratio, ops.Epsilon, ch)
		}

		return QuantizedBlock{
			TensorID:   tensorID,
			BlockIndex: ch,
			Codec:      tag,
			Params:     params,
			Payload:    payload,
			Elements:   len(row),
		}, nil
	}
}

func quantizeThenDequantize(ops CodecOps, sample []float32, bits int) ([]float32, error) {
	payload, sampleParams, err := ops.Quantize(sample, bits)
	if err != nil {
		return nil, err
	}
	return ops.Dequantize(payload, len(sample), bits, sampleParams)
}

// Dequantize reconstructs a channel's float32 values from a block.
func Dequantize(block QuantizedBlock, bits int) ([]float32, error) {
	ops, err := Lookup(block.Codec)
	if err != nil {
		return nil, err
	}
	return ops.Dequantize(block.Payload, block.Elements, bits, block.Params)
}

func channelRow(t TensorDescriptor, ch, rowWidth int) []float32 {
	if t.Values == nil {
		return make([]float32, rowWidth)
	}
	start := ch * rowWidth
	return t.Values[start : start+rowWidth]
}

func calibrationColumn(calibration [][]float32, ch int) []float32 {
	if calibration == nil || ch >= len(calibration) {
		return nil
	}
	return calibration[ch]
}

// widenForSalience adds one bit for channels whose salience exceeds the
// high-salience threshold, capped at ceiling.
func widenForSalience(bits int, salience float32, ceiling int) int {
	const highSalience = 0.75
	if salience >= highSalience && bits < ceiling {
		return bits + 1
	}
	return bits
}

// kurtosis computes the excess kurtosis of x, used to pick linear vs
// log-linear codecs.
func kurtosis(x []float32) float64 {
	n := float64(len(x))
	if n < 2 {
		return 0
	}

	var mean float64
	for _, v := range x {
		mean += float64(v)
	}
	mean /= n

	var m2, m4 float64
	for _, v := range x {
		d := float64(v) - mean
		m2 += d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m4 /= n

	if m2 == 0 {
		return 0
	}
	return m4/(m2*m2) - 3
}
