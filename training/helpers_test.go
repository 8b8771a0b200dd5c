package training

import (
	"math/rand"
	"testing"

	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/tensor"
)

// randomImages builds n uniform [0,1) images of the given square size with
// labels cycling over classes.
func randomImages(t *testing.T, n, size, classes int, seed int64) *dataset.TensorDataset {
	t.Helper()
	images, err := tensor.RandomUniform(rand.New(rand.NewSource(seed)), []int{n, 3, size, size}, 0, 1, tensor.CPU)
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = i % classes
	}
	ds, err := dataset.NewTensorDataset(images, labels)
	if err != nil {
		t.Fatalf("NewTensorDataset failed: %v", err)
	}
	return ds
}
