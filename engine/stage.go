package engine

import (
	"math"

	"github.com/tsawler/go-latent/tensor"
)

// Stage is one executable step of a Sequential model
type Stage interface {
	Name() string

	// Forward maps a batch to a new tensor and never modifies x
	Forward(x *tensor.Tensor) (*tensor.Tensor, error)

	// Backward returns the gradient w.r.t. x given the forward input x,
	// the forward output y and the gradient w.r.t. y. Parameter gradients
	// are accumulated into the stage's parameters.
	Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error)

	Parameters() []*tensor.Tensor
}

type reluStage struct {
	name string
}

func (s *reluStage) Name() string                 { return s.name }
func (s *reluStage) Parameters() []*tensor.Tensor { return nil }

func (s *reluStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}
	for i, v := range x.Data {
		if v > 0 {
			out.Data[i] = v
		}
	}
	return out, nil
}

func (s *reluStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	gradIn, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}
	for i, v := range y.Data {
		if v > 0 {
			gradIn.Data[i] = gradOut.Data[i]
		}
	}
	return gradIn, nil
}

type sigmoidStage struct {
	name string
}

func (s *sigmoidStage) Name() string                 { return s.name }
func (s *sigmoidStage) Parameters() []*tensor.Tensor { return nil }

func (s *sigmoidStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	out, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}
	for i, v := range x.Data {
		out.Data[i] = float32(1 / (1 + math.Exp(-float64(v))))
	}
	return out, nil
}

func (s *sigmoidStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	gradIn, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}
	for i, v := range y.Data {
		gradIn.Data[i] = gradOut.Data[i] * v * (1 - v)
	}
	return gradIn, nil
}

// reshapeStage covers Flatten and Reshape: both are views that only change
// the per-sample shape.
type reshapeStage struct {
	name  string
	shape []int // per-sample output shape
}

func (s *reshapeStage) Name() string                 { return s.name }
func (s *reshapeStage) Parameters() []*tensor.Tensor { return nil }

func (s *reshapeStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return x.Reshape(append([]int{x.Shape[0]}, s.shape...))
}

func (s *reshapeStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	return gradOut.Reshape(x.Shape)
}
