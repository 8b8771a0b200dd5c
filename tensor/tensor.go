package tensor

import (
	"errors"
	"fmt"
)

var (
	// ErrShapeMismatch is returned when a tensor does not have the shape an
	// operation requires.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrDeviceMismatch is returned when operands live on different devices.
	ErrDeviceMismatch = errors.New("device mismatch")

	// ErrNoBackend is returned when a device has no compute backend in this build.
	ErrNoBackend = errors.New("no compute backend for device")
)

// DeviceType identifies where tensor storage lives
type DeviceType int

const (
	CPU DeviceType = iota
	Accelerator
)

func (d DeviceType) String() string {
	switch d {
	case CPU:
		return "CPU"
	case Accelerator:
		return "Accelerator"
	default:
		return "Unknown"
	}
}

// Tensor is a dense, row-major float32 array with an optional gradient slot.
// Shapes are NCHW for image batches and NF for feature batches.
type Tensor struct {
	Shape    []int
	Strides  []int
	Device   DeviceType
	Data     []float32
	NumElems int

	requiresGrad bool
	grad         *Tensor
}

func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor(shape=%v, device=%s, elements=%d)",
		t.Shape, t.Device, t.NumElems)
}

// RequiresGrad reports whether gradients are accumulated for this tensor
func (t *Tensor) RequiresGrad() bool {
	return t.requiresGrad
}

// SetRequiresGrad marks the tensor as a trainable parameter. The gradient
// slot is allocated lazily on the first accumulation.
func (t *Tensor) SetRequiresGrad(requires bool) {
	t.requiresGrad = requires
	if !requires {
		t.grad = nil
	}
}

// Grad returns the accumulated gradient, or nil if none has been recorded
func (t *Tensor) Grad() *Tensor {
	return t.grad
}

// Dim returns the size of dimension i
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Rank returns the number of dimensions
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

func calculateStrides(shape []int) []int {
	if len(shape) == 0 {
		return []int{}
	}

	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

func calculateNumElements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}

	elements := 1
	for _, dim := range shape {
		elements *= dim
	}
	return elements
}

func validateShape(shape []int) error {
	if len(shape) == 0 {
		return fmt.Errorf("invalid shape: rank must be at least 1")
	}
	for i, dim := range shape {
		if dim <= 0 {
			return fmt.Errorf("invalid shape: dimension %d has size %d, must be positive", i, dim)
		}
	}
	return nil
}

// ShapesEqual reports whether two shapes are identical
func ShapesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
