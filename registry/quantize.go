package registry

import (
	"fmt"

	"github.com/nsqe/nsqe/errs"
	"github.com/nsqe/nsqe/quant"
)

// QuantizeModel quantizes every tensor of handle against profile,
// producing a new ModelHandle. It lives here rather than in package quant
// because it operates on a registry.ModelHandle, and quant must not
// import registry (registry already imports quant for TensorDescriptor
// and Profile) — generalizing quantize_tensor to a whole model is a
// registry-level concern, not a codec-level one.
func (r *Registry) QuantizeModel(q *quant.Quantizer, id ModelID, profile quant.Profile, salience map[string][]float32, calibration map[string][][]float32) (ModelID, []quant.QuantizedTensor, error) {
	source, err := r.handle(id)
	if err != nil {
		return "", nil, err
	}
	if source.State() != StateResident {
		return "", nil, fmt.Errorf("%w: model %s is not resident", errs.ErrInvalidInput, id)
	}

	var quantized []quant.QuantizedTensor
	quantizedLayers := make([]LayerDescriptor, len(source.Layers))

	for li, layer := range source.Layers {
		quantizedTensors := make(map[string]quant.TensorDescriptor, len(layer.Tensors))

		for name, tensor := range layer.Tensors {
			kind, ok := profile[name]
			if !ok {
				quantizedTensors[name] = tensor
				continue
			}

			result, err := q.QuantizeTensor(tensor, kind.Bits(), salience[name], calibration[name])
			if err != nil {
				return "", nil, fmt.Errorf("quantizing %s/%s: %w", layer.Name, name, err)
			}
			quantized = append(quantized, result)

			quantizedTensors[name] = quant.TensorDescriptor{
				Name:   tensor.Name,
				Shape:  tensor.Shape,
				Kind:   kind,
				Layout: tensor.Layout,
			}
		}

		quantizedLayers[li] = LayerDescriptor{Name: layer.Name, Tensors: quantizedTensors}
	}

	newID, err := r.Register(source.Architecture, quantizedLayers, profile, source.SalienceDigest)
	return newID, quantized, err
}
