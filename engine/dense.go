package engine

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/tensor"
)

// denseStage computes Y = X W + b with W stored [in, out]. Inputs of any
// rank are flattened per sample.
type denseStage struct {
	name   string
	weight *tensor.Tensor // [in, out]
	bias   *tensor.Tensor // [out] or nil
	in     int
	out    int
}

func newDenseStage(spec layers.LayerSpec, rng *rand.Rand, device tensor.DeviceType) (*denseStage, error) {
	s := &denseStage{
		name: spec.Name,
		in:   spec.IntParam("input_size", 0),
		out:  spec.IntParam("output_size", 0),
	}

	var err error
	if s.weight, err = newParameter(rng, spec.ParameterShapes[0], s.in, device); err != nil {
		return nil, fmt.Errorf("weight: %w", err)
	}
	if spec.BoolParam("use_bias", true) {
		if s.bias, err = newParameter(rng, spec.ParameterShapes[1], s.in, device); err != nil {
			return nil, fmt.Errorf("bias: %w", err)
		}
	}
	return s, nil
}

func (s *denseStage) Name() string { return s.name }

func (s *denseStage) Parameters() []*tensor.Tensor {
	if s.bias == nil {
		return []*tensor.Tensor{s.weight}
	}
	return []*tensor.Tensor{s.weight, s.bias}
}

func (s *denseStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	n := x.Shape[0]
	out, err := tensor.Zeros([]int{n, s.out}, x.Device)
	if err != nil {
		return nil, err
	}

	tensor.Gemm(false, false, n, s.out, s.in, 1, x.Data, s.weight.Data, 0, out.Data)
	if s.bias != nil {
		for i := 0; i < n; i++ {
			row := out.Sample(i)
			for j, b := range s.bias.Data {
				row[j] += b
			}
		}
	}
	return out, nil
}

func (s *denseStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	n := x.Shape[0]

	// dW = X^T dY
	dw := make([]float32, s.weight.NumElems)
	tensor.Gemm(true, false, s.in, s.out, n, 1, x.Data, gradOut.Data, 0, dw)
	if err := s.weight.AccumulateGrad(dw); err != nil {
		return nil, err
	}

	if s.bias != nil {
		db := make([]float32, s.out)
		for i := 0; i < n; i++ {
			for j, v := range gradOut.Sample(i) {
				db[j] += v
			}
		}
		if err := s.bias.AccumulateGrad(db); err != nil {
			return nil, err
		}
	}

	// dX = dY W^T
	gradIn, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}
	tensor.Gemm(false, true, n, s.in, s.out, 1, gradOut.Data, s.weight.Data, 0, gradIn.Data)
	return gradIn, nil
}
