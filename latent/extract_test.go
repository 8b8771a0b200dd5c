package latent

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/engine"
	"github.com/tsawler/go-latent/tensor"
	"github.com/tsawler/go-latent/training"
)

func labeledImages(t *testing.T, n, size int, seed int64) (*dataset.TensorDataset, []int) {
	t.Helper()
	images, err := tensor.RandomUniform(rand.New(rand.NewSource(seed)), []int{n, 3, size, size}, 0, 1, tensor.CPU)
	if err != nil {
		t.Fatalf("RandomUniform failed: %v", err)
	}
	labels := make([]int, n)
	for i := range labels {
		labels[i] = (i * 7) % 3
	}
	ds, err := dataset.NewTensorDataset(images, labels)
	if err != nil {
		t.Fatalf("NewTensorDataset failed: %v", err)
	}
	return ds, labels
}

func TestExtractRowOrder(t *testing.T) {
	model, err := autoencoder.NewForImageSize(32, autoencoder.Config{LatentDim: 6}, rand.New(rand.NewSource(1)), tensor.CPU)
	if err != nil {
		t.Fatalf("NewForImageSize failed: %v", err)
	}
	ds, labels := labeledImages(t, 7, 32, 2)

	var reference *Dataset
	for _, bs := range []int{1, 3, 7, 16} {
		got, err := Extract(model, ds, bs, tensor.CPU)
		if err != nil {
			t.Fatalf("Extract(batch %d) failed: %v", bs, err)
		}
		r, c := got.Latents.Dims()
		if r != 7 || c != 6 || got.Len() != 7 || got.Dim() != 6 {
			t.Fatalf("batch %d: latents %dx%d, expected 7x6", bs, r, c)
		}
		if !reflect.DeepEqual(got.Labels, labels) {
			t.Errorf("batch %d: labels %v, expected %v", bs, got.Labels, labels)
		}

		if reference == nil {
			reference = got
			continue
		}
		if !mat.EqualApprox(got.Latents, reference.Latents, 1e-5) {
			t.Errorf("batch %d: latents depend on batching", bs)
		}
	}

	// Row 4 must be the encoding of sample 4 alone
	img, _, _ := ds.Get(4)
	x, _ := img.Reshape([]int{1, 3, 32, 32})
	single, err := model.Encode(engine.EvalContext(tensor.CPU), x)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for j := 0; j < 6; j++ {
		if d := reference.Latents.At(4, j) - float64(single.Data[j]); d > 1e-5 || d < -1e-5 {
			t.Errorf("row 4 col %d = %v, expected %v", j, reference.Latents.At(4, j), single.Data[j])
		}
	}
}

// TestExtractScenarioC extracts ten full-size images
func TestExtractScenarioC(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 512x512 extraction in short mode")
	}

	model, err := autoencoder.New(autoencoder.DefaultConfig(), rand.New(rand.NewSource(1)), tensor.CPU)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ds, labels := labeledImages(t, 10, autoencoder.ImageSize, 3)

	got, err := Extract(model, ds, 4, tensor.CPU)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	r, c := got.Latents.Dims()
	if r != 10 || c != 128 {
		t.Errorf("latents %dx%d, expected 10x128", r, c)
	}
	if !reflect.DeepEqual(got.Labels, labels) {
		t.Errorf("labels %v, expected %v", got.Labels, labels)
	}
}

func TestExtractErrors(t *testing.T) {
	model, _ := autoencoder.NewForImageSize(32, autoencoder.Config{LatentDim: 2}, rand.New(rand.NewSource(1)), tensor.CPU)
	ds, _ := labeledImages(t, 2, 32, 4)

	if _, err := Extract(model, dataset.NewSubset(ds, nil), 2, tensor.CPU); !errors.Is(err, training.ErrEmptyPartition) {
		t.Errorf("expected ErrEmptyPartition, got %v", err)
	}
	if _, err := Extract(model, ds, 0, tensor.CPU); err == nil {
		t.Error("expected error for zero batch size")
	}

	wrong, _ := labeledImages(t, 2, 64, 5)
	if _, err := Extract(model, wrong, 2, tensor.CPU); !errors.Is(err, tensor.ErrShapeMismatch) {
		t.Errorf("expected ErrShapeMismatch, got %v", err)
	}
}
