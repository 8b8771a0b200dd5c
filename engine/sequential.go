package engine

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/parallel"
	"github.com/tsawler/go-latent/tensor"
)

// ErrTraceMismatch is returned when Backward receives a trace that was not
// recorded by the same model.
var ErrTraceMismatch = errors.New("trace was not recorded by this model")

// Sequential executes a compiled list of stage descriptors in order
type Sequential struct {
	spec   *layers.ModelSpec
	stages []Stage
	device tensor.DeviceType
}

// Trace holds the per-stage activations of one forward pass. It is only
// produced when the execution context asks for gradients.
type Trace struct {
	owner   *Sequential
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
}

// Output returns the final activation recorded by the trace
func (t *Trace) Output() *tensor.Tensor {
	return t.outputs[len(t.outputs)-1]
}

// NewSequential instantiates every stage of spec with freshly initialised
// parameters drawn from rng.
func NewSequential(spec *layers.ModelSpec, rng *rand.Rand, device tensor.DeviceType) (*Sequential, error) {
	if spec == nil || !spec.Compiled {
		return nil, fmt.Errorf("model spec must be compiled")
	}
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	if device != tensor.CPU {
		return nil, fmt.Errorf("%w: %s", tensor.ErrNoBackend, device)
	}

	workers := parallel.Workers()
	seq := &Sequential{spec: spec, device: device}

	for i, l := range spec.Layers {
		var (
			stage Stage
			err   error
		)
		switch l.Type {
		case layers.Conv2D:
			stage, err = newConv2DStage(l, rng, device, workers)
		case layers.ConvTranspose2D:
			stage, err = newConvTranspose2DStage(l, rng, device, workers)
		case layers.Dense:
			stage, err = newDenseStage(l, rng, device)
		case layers.ReLU:
			stage = &reluStage{name: l.Name}
		case layers.Sigmoid:
			stage = &sigmoidStage{name: l.Name}
		case layers.Flatten, layers.Reshape:
			stage = &reshapeStage{name: l.Name, shape: l.OutputShape[1:]}
		default:
			err = fmt.Errorf("unsupported layer type: %s", l.Type)
		}
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		}
		seq.stages = append(seq.stages, stage)
	}

	return seq, nil
}

// Spec returns the compiled description the model was built from
func (s *Sequential) Spec() *layers.ModelSpec {
	return s.spec
}

// Device returns the device that holds the parameters
func (s *Sequential) Device() tensor.DeviceType {
	return s.device
}

// Parameters returns every trainable tensor in stage order
func (s *Sequential) Parameters() []*tensor.Tensor {
	var params []*tensor.Tensor
	for _, stage := range s.stages {
		params = append(params, stage.Parameters()...)
	}
	return params
}

// NamedParameter pairs a parameter with a stable "<stage>.<role>" name
type NamedParameter struct {
	Name   string
	Tensor *tensor.Tensor
}

// NamedParameters returns Parameters labelled by stage, weight before bias
func (s *Sequential) NamedParameters() []NamedParameter {
	var named []NamedParameter
	roles := []string{"weight", "bias"}
	for _, stage := range s.stages {
		for i, p := range stage.Parameters() {
			named = append(named, NamedParameter{Name: stage.Name() + "." + roles[i], Tensor: p})
		}
	}
	return named
}

// Forward applies every stage to x. The returned trace is nil unless
// ctx.Grad is set.
func (s *Sequential) Forward(ctx ExecContext, x *tensor.Tensor) (*tensor.Tensor, *Trace, error) {
	if err := s.validateInput(ctx, x); err != nil {
		return nil, nil, err
	}

	var trace *Trace
	if ctx.Grad {
		trace = &Trace{
			owner:   s,
			inputs:  make([]*tensor.Tensor, 0, len(s.stages)),
			outputs: make([]*tensor.Tensor, 0, len(s.stages)),
		}
	}

	current := x
	for i, stage := range s.stages {
		out, err := stage.Forward(current)
		if err != nil {
			return nil, nil, fmt.Errorf("stage %d (%s) forward: %w", i, stage.Name(), err)
		}
		if trace != nil {
			trace.inputs = append(trace.inputs, current)
			trace.outputs = append(trace.outputs, out)
		}
		current = out
	}
	return current, trace, nil
}

// Backward propagates gradOut through the recorded trace in reverse order,
// accumulating parameter gradients, and returns the gradient w.r.t. the
// forward input.
func (s *Sequential) Backward(trace *Trace, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	if trace == nil || trace.owner != s || len(trace.outputs) != len(s.stages) {
		return nil, ErrTraceMismatch
	}
	if !tensor.ShapesEqual(gradOut.Shape, trace.Output().Shape) {
		return nil, fmt.Errorf("%w: gradient %v does not match output %v",
			tensor.ErrShapeMismatch, gradOut.Shape, trace.Output().Shape)
	}

	grad := gradOut
	for i := len(s.stages) - 1; i >= 0; i-- {
		stage := s.stages[i]
		g, err := stage.Backward(trace.inputs[i], trace.outputs[i], grad)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s) backward: %w", i, stage.Name(), err)
		}
		grad = g
	}
	return grad, nil
}

func (s *Sequential) validateInput(ctx ExecContext, x *tensor.Tensor) error {
	if x == nil {
		return fmt.Errorf("%w: nil input", tensor.ErrShapeMismatch)
	}
	if ctx.Device != s.device {
		return fmt.Errorf("%w: context on %s, model on %s", tensor.ErrDeviceMismatch, ctx.Device, s.device)
	}
	if x.Device != s.device {
		return fmt.Errorf("%w: input on %s, model on %s", tensor.ErrDeviceMismatch, x.Device, s.device)
	}

	want := s.spec.InputShape
	if x.Rank() != len(want) || !tensor.ShapesEqual(x.Shape[1:], want[1:]) {
		return fmt.Errorf("%w: input %v, expected [N %v]", tensor.ErrShapeMismatch, x.Shape, want[1:])
	}
	return nil
}
