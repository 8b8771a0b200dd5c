package engine

import (
	"math"
	"math/rand"

	"github.com/tsawler/go-latent/tensor"
)

// newParameter allocates a trainable tensor drawn from U(-1/sqrt(fanIn), 1/sqrt(fanIn)).
// This matches the default initialisation of convolution and linear layers
// in the common deep learning frameworks, for weights and biases alike.
func newParameter(rng *rand.Rand, shape []int, fanIn int, device tensor.DeviceType) (*tensor.Tensor, error) {
	bound := float32(1 / math.Sqrt(float64(fanIn)))
	p, err := tensor.RandomUniform(rng, shape, -bound, bound, device)
	if err != nil {
		return nil, err
	}
	p.SetRequiresGrad(true)
	return p, nil
}
