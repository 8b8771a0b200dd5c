// Package dataset supplies labelled image samples and splits them into
// training, validation and test partitions.
package dataset

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/tsawler/go-latent/tensor"
)

// ErrIndexOutOfRange is returned by Get for an index outside [0, Len())
var ErrIndexOutOfRange = errors.New("index out of range")

// Dataset is an indexable collection of (image, label) samples. Images are
// [C, H, W] tensors with values in [0, 1].
type Dataset interface {
	Len() int
	Get(idx int) (*tensor.Tensor, int, error)
}

// TensorDataset serves samples from an in-memory [N, C, H, W] tensor
type TensorDataset struct {
	images *tensor.Tensor
	labels []int
}

// NewTensorDataset pairs a batched image tensor with one label per sample
func NewTensorDataset(images *tensor.Tensor, labels []int) (*TensorDataset, error) {
	if images == nil || images.Rank() < 2 {
		return nil, fmt.Errorf("%w: images need a leading sample dimension", tensor.ErrShapeMismatch)
	}
	if images.Shape[0] != len(labels) {
		return nil, fmt.Errorf("%w: %d images but %d labels", tensor.ErrShapeMismatch, images.Shape[0], len(labels))
	}
	l := make([]int, len(labels))
	copy(l, labels)
	return &TensorDataset{images: images, labels: l}, nil
}

// Len returns the number of samples
func (d *TensorDataset) Len() int {
	return len(d.labels)
}

// Get returns a view of sample idx and its label
func (d *TensorDataset) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= len(d.labels) {
		return nil, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(d.labels))
	}
	img, err := tensor.NewTensor(d.images.Shape[1:], d.images.Device, d.images.Sample(idx))
	if err != nil {
		return nil, 0, err
	}
	return img, d.labels[idx], nil
}

// Subset exposes selected samples of a parent dataset in the given order
type Subset struct {
	parent  Dataset
	indices []int
}

// NewSubset creates a view of parent restricted to indices
func NewSubset(parent Dataset, indices []int) *Subset {
	idx := make([]int, len(indices))
	copy(idx, indices)
	return &Subset{parent: parent, indices: idx}
}

// Len returns the number of samples in the subset
func (s *Subset) Len() int {
	return len(s.indices)
}

// Get returns sample idx of the subset
func (s *Subset) Get(idx int) (*tensor.Tensor, int, error) {
	if idx < 0 || idx >= len(s.indices) {
		return nil, 0, fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, idx, len(s.indices))
	}
	return s.parent.Get(s.indices[idx])
}

// Indices returns the parent indices backing the subset
func (s *Subset) Indices() []int {
	return s.indices
}

// Ratios are the fractions of a dataset assigned to each partition
type Ratios struct {
	Train float64
	Val   float64
	Test  float64
}

// Validate checks every ratio is in [0, 1], train is positive and the three
// sum to one.
func (r Ratios) Validate() error {
	for name, v := range map[string]float64{"train": r.Train, "val": r.Val, "test": r.Test} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%s ratio %v must be in [0, 1]", name, v)
		}
	}
	if r.Train == 0 {
		return fmt.Errorf("train ratio must be positive")
	}
	if sum := r.Train + r.Val + r.Test; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("ratios sum to %v, expected 1", sum)
	}
	return nil
}

// Partitions holds the three disjoint subsets produced by Split
type Partitions struct {
	Train *Subset
	Val   *Subset
	Test  *Subset
}

// Split shuffles the indices of ds with seed and cuts them into train,
// validation and test partitions. Train and validation sizes are rounded
// down and the test partition takes the remainder.
func Split(ds Dataset, r Ratios, seed int64) (Partitions, error) {
	if err := r.Validate(); err != nil {
		return Partitions{}, err
	}

	n := ds.Len()
	perm := rand.New(rand.NewSource(seed)).Perm(n)

	nTrain := int(float64(n) * r.Train)
	nVal := int(float64(n) * r.Val)
	if nTrain+nVal > n {
		nVal = n - nTrain
	}

	return Partitions{
		Train: NewSubset(ds, perm[:nTrain]),
		Val:   NewSubset(ds, perm[nTrain:nTrain+nVal]),
		Test:  NewSubset(ds, perm[nTrain+nVal:]),
	}, nil
}

// Labels collects the label of every sample in traversal order
func Labels(ds Dataset) ([]int, error) {
	labels := make([]int, ds.Len())
	for i := range labels {
		_, l, err := ds.Get(i)
		if err != nil {
			return nil, err
		}
		labels[i] = l
	}
	return labels, nil
}
