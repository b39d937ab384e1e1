// Package quant implements the Quantizer (C2): mapping tensors to
// mixed-precision representations guided by a salience signal, and the
// on-disk quantized model artifact format.
//
// The tagged-codec dispatch here uses one constructor map, populated at
// init and consulted by tag rather than by open interface satisfaction,
// so that adding a codec never requires touching Quantizer itself.
package quant

import "fmt"

// ElementKind is the element representation of a tensor or quantized
// block: one of {f32, f16, i8, i4, i2, i1}.
type ElementKind uint8

const (
	KindF32 ElementKind = iota
	KindF16
	KindI8
	KindI4
	KindI2
	KindI1
)

// Bits returns the number of bits one element of this kind occupies.
func (k ElementKind) Bits() int {
	switch k {
	case KindF32:
		return 32
	case KindF16:
		return 16
	case KindI8:
		return 8
	case KindI4:
		return 4
	case KindI2:
		return 2
	case KindI1:
		return 1
	default:
		return 0
	}
}

func (k ElementKind) String() string {
	switch k {
	case KindF32:
		return "f32"
	case KindF16:
		return "f16"
	case KindI8:
		return "i8"
	case KindI4:
		return "i4"
	case KindI2:
		return "i2"
	case KindI1:
		return "i1"
	default:
		return "unknown"
	}
}

// ParseElementKind parses the string form used in precision profiles and
// CLI flags.
func ParseElementKind(s string) (ElementKind, error) {
	switch s {
	case "f32":
		return KindF32, nil
	case "f16":
		return KindF16, nil
	case "i8":
		return KindI8, nil
	case "i4":
		return KindI4, nil
	case "i2":
		return KindI2, nil
	case "i1":
		return KindI1, nil
	default:
		return 0, fmt.Errorf("%w: unknown element kind %q", errUnsupported, s)
	}
}

// Layout describes how a tensor's elements are arranged in memory.
type Layout uint8

const (
	LayoutRowMajor Layout = iota
	LayoutBlockSparse
)

// TensorDescriptor is the data model's Tensor descriptor: shape, element
// kind, layout, and optional per-channel scale/zero-point vectors.
//
// Invariant: StorageBytes() == product(Shape) * Kind.Bits() bits, rounded
// up to whole bytes for the tensor as a whole — computed by StorageBytes
// itself rather than left to callers to get right.
type TensorDescriptor struct {
	Name         string
	Shape        []uint64
	Kind         ElementKind
	Layout       Layout
	ScalePerChan []float32
	ZeroPerChan  []float32

	// Values holds the tensor's raw float32 payload when it is resident
	// in memory for quantization or calibration. It is nil for
	// descriptors that only describe an already-quantized artifact entry.
	Values []float32
}

// Elements returns the total element count across all dimensions.
func (t TensorDescriptor) Elements() uint64 {
	var n uint64 = 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// StorageBytes returns the number of bytes needed to store this tensor's
// payload at its current ElementKind, rounded up to whole bytes.
func (t TensorDescriptor) StorageBytes() uint64 {
	bits := t.Elements() * uint64(t.Kind.Bits())
	return (bits + 7) / 8
}

// Channels returns the leading dimension, the convention this codebase
// uses for "per-channel" salience and scale vectors (shape[0] rows, the
// rest flattened as the row width).
func (t TensorDescriptor) Channels() uint64 {
	if len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}
