// Package latent turns a trained autoencoder into a feature extractor: it
// runs a dataset partition through the encoder and collects one latent row
// per sample together with the sample's label.
package latent

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/tsawler/go-latent/autoencoder"
	"github.com/tsawler/go-latent/dataset"
	"github.com/tsawler/go-latent/engine"
	"github.com/tsawler/go-latent/parallel"
	"github.com/tsawler/go-latent/tensor"
	"github.com/tsawler/go-latent/training"
)

// Model is the part of the autoencoder extraction needs
type Model interface {
	Forward(ctx engine.ExecContext, x *tensor.Tensor) (autoencoder.Output, *autoencoder.Trace, error)
	LatentDim() int
}

// Dataset is a partition's latent representation. Row i of Latents and
// Labels[i] describe the same sample.
type Dataset struct {
	Latents *mat.Dense
	Labels  []int
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.Labels)
}

// Dim returns the latent dimensionality
func (d *Dataset) Dim() int {
	if d.Latents == nil {
		return 0
	}
	_, c := d.Latents.Dims()
	return c
}

// Extract encodes every sample of ds in natural order using an evaluation
// context. The reconstruction output is discarded.
func Extract(model Model, ds dataset.Dataset, batchSize int, device tensor.DeviceType) (*Dataset, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("%w: nothing to extract", training.ErrEmptyPartition)
	}

	loader, err := training.NewDataLoader(ds, batchSize, false, nil, parallel.Workers(), device)
	if err != nil {
		return nil, err
	}

	dim := model.LatentDim()
	latents := mat.NewDense(ds.Len(), dim, nil)
	labels := make([]int, 0, ds.Len())
	ctx := engine.EvalContext(device)

	row := 0
	loader.Reset()
	for {
		batch, err := loader.Next()
		if err != nil {
			return nil, err
		}
		if batch == nil {
			break
		}

		out, _, err := model.Forward(ctx, batch.Data)
		if err != nil {
			return nil, fmt.Errorf("forward pass failed: %w", err)
		}

		z := out.Latent
		if z.Rank() != 2 || z.Shape[0] != batch.Size() || z.Shape[1] != dim {
			return nil, fmt.Errorf("%w: latent batch %v, expected [%d %d]", tensor.ErrShapeMismatch, z.Shape, batch.Size(), dim)
		}
		for i := 0; i < batch.Size(); i++ {
			dst := latents.RawRowView(row)
			for j, v := range z.Data[i*dim : (i+1)*dim] {
				dst[j] = float64(v)
			}
			row++
		}
		labels = append(labels, batch.Labels...)
	}

	if row != len(labels) || row != ds.Len() {
		panic(fmt.Sprintf("latent: extracted %d rows and %d labels from %d samples", row, len(labels), ds.Len()))
	}

	return &Dataset{Latents: latents, Labels: labels}, nil
}
