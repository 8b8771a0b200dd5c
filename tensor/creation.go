package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor wraps data in a tensor of the given shape. A nil data slice
// allocates zeroed storage; otherwise the slice is used without copying.
func NewTensor(shape []int, device DeviceType, data []float32) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	numElems := calculateNumElements(shape)
	if data == nil {
		data = make([]float32, numElems)
	}
	if len(data) != numElems {
		return nil, fmt.Errorf("data length %d does not match tensor size %d", len(data), numElems)
	}

	s := make([]int, len(shape))
	copy(s, shape)

	return &Tensor{
		Shape:    s,
		Strides:  calculateStrides(s),
		Device:   device,
		Data:     data,
		NumElems: numElems,
	}, nil
}

// Zeros creates a zero-filled tensor
func Zeros(shape []int, device DeviceType) (*Tensor, error) {
	return NewTensor(shape, device, nil)
}

// Full creates a tensor with every element set to value
func Full(shape []int, value float32, device DeviceType) (*Tensor, error) {
	t, err := NewTensor(shape, device, nil)
	if err != nil {
		return nil, err
	}
	for i := range t.Data {
		t.Data[i] = value
	}
	return t, nil
}

// RandomUniform creates a tensor with elements drawn from U(low, high)
func RandomUniform(rng *rand.Rand, shape []int, low, high float32, device DeviceType) (*Tensor, error) {
	if rng == nil {
		return nil, fmt.Errorf("random source cannot be nil")
	}
	if high < low {
		return nil, fmt.Errorf("invalid range [%g, %g)", low, high)
	}

	t, err := NewTensor(shape, device, nil)
	if err != nil {
		return nil, err
	}
	span := high - low
	for i := range t.Data {
		t.Data[i] = low + rng.Float32()*span
	}
	return t, nil
}
