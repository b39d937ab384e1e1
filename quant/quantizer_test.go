package quant

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func gaussianTensor(name string, channels, width int, seed int64) TensorDescriptor {
	r := rand.New(rand.NewSource(seed))
	values := make([]float32, channels*width)
	for i := range values {
		values[i] = float32(r.NormFloat64())
	}
	return TensorDescriptor{
		Name:   name,
		Shape:  []uint64{uint64(channels), uint64(width)},
		Kind:   KindF32,
		Values: values,
	}
}

func TestQuantizeTensorInt4ReductionFactor(t *testing.T) {
	tensor := gaussianTensor("layer.0.attn.wq", 8, 4096, 1)
	q := New(DefaultConfig())

	result, err := q.QuantizeTensor(tensor, 4, nil, nil)
	require.NoError(t, err)
	require.GreaterOrEqual(t, result.ReductionFactor(), 7.5)
}

func TestQuantizeTensorRejectsChannelSalienceMismatch(t *testing.T) {
	tensor := gaussianTensor("layer.0.mlp.down", 4, 16, 2)
	q := New(DefaultConfig())

	_, err := q.QuantizeTensor(tensor, 8, []float32{0.1, 0.2}, nil)
	require.Error(t, err)
}

func TestQuantizeTensorWidensHighSalienceChannels(t *testing.T) {
	tensor := gaussianTensor("layer.0.attn.wo", 2, 256, 3)
	salience := []float32{0.9, 0.1}
	cfg := DefaultConfig()
	cfg.MaxWidenBits = 8

	q := New(cfg)
	result, err := q.QuantizeTensor(tensor, 4, salience, nil)
	require.NoError(t, err)

	widened := false
	for _, b := range result.Blocks {
		if len(b.Payload)*8/b.Elements > 4 {
			widened = true
		}
	}
	require.True(t, widened, "expected at least one channel widened above the 4-bit target")
}

func TestQuantizeDequantizeRoundTripWithinEpsilon(t *testing.T) {
	tensor := gaussianTensor("layer.3.attn.wk", 4, 512, 4)
	q := New(DefaultConfig())

	result, err := q.QuantizeTensor(tensor, 8, nil, nil)
	require.NoError(t, err)

	rowWidth := 512
	for ch, block := range result.Blocks {
		original := tensor.Values[ch*rowWidth : (ch+1)*rowWidth]
		recon, err := Dequantize(block, 8)
		require.NoError(t, err)
		require.Equal(t, len(original), len(recon))
		require.Less(t, l2Ratio(original, recon), 0.1)
	}
}

func TestArtifactRoundTrip(t *testing.T) {
	entries := []ArtifactTensorEntry{
		{
			Name:  "layer.0.attn.wq",
			Kind:  KindI4,
			Shape: []uint64{8, 4096},
			Codec: CodecLinear,
			Params: CodecParams{
				Scale: 0.015,
			},
			Payload: bytes.Repeat([]byte{0xAB}, 17),
		},
		{
			Name:    "layer.0.mlp.down",
			Kind:    KindF16,
			Shape:   []uint64{4, 16},
			Codec:   CodecHalf,
			Payload: bytes.Repeat([]byte{0x01, 0x02}, 32),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteArtifact(&buf, []byte("digest"), entries))

	header, readEntries, err := ReadArtifact(&buf)
	require.NoError(t, err)
	require.Equal(t, artifactVersion, header.Version)
	require.Equal(t, []byte("digest"), header.SalienceDigest)
	require.Len(t, readEntries, 2)
	require.Equal(t, entries[0].Name, readEntries[0].Name)
	require.Equal(t, entries[0].Payload, readEntries[0].Payload)
	require.Equal(t, entries[1].Codec, readEntries[1].Codec)
}

func TestReadArtifactRejectsBadMagic(t *testing.T) {
	_, _, err := ReadArtifact(bytes.NewReader([]byte("nope")))
	require.Error(t, err)
}
