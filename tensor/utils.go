package tensor

import (
	"fmt"
	"math"
)

// Reshape returns a view with the same data and a different shape.
// One dimension may be -1, in which case it is inferred.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	shape := make([]int, len(newShape))
	copy(shape, newShape)

	newNumElems := 1
	negOneIdx := -1

	for i, dim := range shape {
		switch {
		case dim == -1:
			if negOneIdx >= 0 {
				return nil, fmt.Errorf("only one dimension can be -1")
			}
			negOneIdx = i
		case dim <= 0:
			return nil, fmt.Errorf("dimension %d has invalid size %d", i, dim)
		default:
			newNumElems *= dim
		}
	}

	if negOneIdx >= 0 {
		if t.NumElems%newNumElems != 0 {
			return nil, fmt.Errorf("cannot reshape tensor of size %d into shape %v", t.NumElems, newShape)
		}
		shape[negOneIdx] = t.NumElems / newNumElems
		newNumElems *= shape[negOneIdx]
	}

	if newNumElems != t.NumElems {
		return nil, fmt.Errorf("%w: cannot reshape tensor of size %d into shape %v (size %d)",
			ErrShapeMismatch, t.NumElems, shape, newNumElems)
	}

	// Views never carry the gradient slot of their source
	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Device:   t.Device,
		Data:     t.Data,
		NumElems: t.NumElems,
	}, nil
}

// Clone returns a deep copy of the tensor data. Gradient state is not copied.
func (t *Tensor) Clone() *Tensor {
	data := make([]float32, len(t.Data))
	copy(data, t.Data)

	shape := make([]int, len(t.Shape))
	copy(shape, t.Shape)

	return &Tensor{
		Shape:    shape,
		Strides:  calculateStrides(shape),
		Device:   t.Device,
		Data:     data,
		NumElems: t.NumElems,
	}
}

// Sample returns a view of batch element i of a tensor whose first
// dimension is the batch dimension.
func (t *Tensor) Sample(i int) []float32 {
	per := t.NumElems / t.Shape[0]
	return t.Data[i*per : (i+1)*per]
}

// AccumulateGrad adds g into the gradient slot, allocating it on first use
func (t *Tensor) AccumulateGrad(g []float32) error {
	if !t.requiresGrad {
		return fmt.Errorf("tensor %v does not require grad", t.Shape)
	}
	if len(g) != t.NumElems {
		return fmt.Errorf("%w: gradient has %d elements, tensor has %d", ErrShapeMismatch, len(g), t.NumElems)
	}
	if t.grad == nil {
		grad, err := Zeros(t.Shape, t.Device)
		if err != nil {
			return err
		}
		t.grad = grad
	}
	dst := t.grad.Data
	for i, v := range g {
		dst[i] += v
	}
	return nil
}

// ZeroGrad resets gradients to zero for all tensors
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.grad == nil {
			continue
		}
		for i := range t.grad.Data {
			t.grad.Data[i] = 0
		}
	}
}

// MinMax returns the smallest and largest element
func (t *Tensor) MinMax() (float32, float32) {
	if len(t.Data) == 0 {
		return 0, 0
	}
	lo, hi := t.Data[0], t.Data[0]
	for _, v := range t.Data[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// IsFinite reports whether every element is neither NaN nor infinite
func (t *Tensor) IsFinite() bool {
	for _, v := range t.Data {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Stack concatenates same-shaped samples along a new leading batch dimension
func Stack(samples []*Tensor) (*Tensor, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot stack zero tensors")
	}

	first := samples[0]
	shape := append([]int{len(samples)}, first.Shape...)
	out, err := Zeros(shape, first.Device)
	if err != nil {
		return nil, err
	}

	for i, s := range samples {
		if !ShapesEqual(s.Shape, first.Shape) {
			return nil, fmt.Errorf("%w: sample %d has shape %v, expected %v", ErrShapeMismatch, i, s.Shape, first.Shape)
		}
		if s.Device != first.Device {
			return nil, fmt.Errorf("%w: sample %d on %s, expected %s", ErrDeviceMismatch, i, s.Device, first.Device)
		}
		copy(out.Data[i*first.NumElems:], s.Data)
	}
	return out, nil
}
