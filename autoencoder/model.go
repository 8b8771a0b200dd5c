// Package autoencoder defines the convolutional autoencoder that compresses
// 512×512 RGB images into a latent vector and reconstructs them.
package autoencoder

import (
	"errors"
	"fmt"
	"math/rand"
	"strings"

	"github.com/tsawler/go-latent/engine"
	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/tensor"
)

const (
	Channels  = 3
	ImageSize = 512

	DefaultLatentDim = 128

	kernelSize    = 3
	stride        = 2
	padding       = 1
	outputPadding = 1
)

// encoderChannels is the channel progression of the downsampling stack. The
// decoder walks it in reverse.
var encoderChannels = []int{16, 32, 64, 128, 256}

// ErrInvalidConfig is returned for a configuration the topology cannot honour
var ErrInvalidConfig = errors.New("invalid autoencoder configuration")

// Config holds the only tunable of the topology
type Config struct {
	LatentDim int
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{LatentDim: DefaultLatentDim}
}

// Output is the result of a forward pass
type Output struct {
	Reconstruction *tensor.Tensor // [N, 3, 512, 512]
	Latent         *tensor.Tensor // [N, latent_dim]
}

// Trace is the activation record of a training forward pass
type Trace struct {
	encoder *engine.Trace
	decoder *engine.Trace
}

// Model is the autoencoder: an encoder stack ending in the latent
// projection and a decoder stack starting from the inverse projection.
type Model struct {
	config  Config
	encoder *engine.Sequential
	decoder *engine.Sequential
}

// EncoderSpec compiles the downsampling stack: five stride-2 convolutions
// with ReLU, flatten and the projection to latentDim.
func EncoderSpec(latentDim int) (*layers.ModelSpec, error) {
	return encoderSpec(ImageSize, latentDim)
}

// DecoderSpec compiles the upsampling stack: projection back to the
// feature map, reshape and five stride-2 transposed convolutions, ReLU
// after the first four and Sigmoid after the last.
func DecoderSpec(latentDim int) (*layers.ModelSpec, error) {
	return decoderSpec(ImageSize, latentDim)
}

func encoderSpec(size, latentDim int) (*layers.ModelSpec, error) {
	b := layers.NewModelBuilder([]int{1, Channels, size, size})
	for i, c := range encoderChannels {
		b.AddConv2D(c, kernelSize, stride, padding, true, fmt.Sprintf("encoder.conv%d", i+1)).
			AddReLU(fmt.Sprintf("encoder.relu%d", i+1))
	}
	return b.
		AddFlatten("encoder.flatten").
		AddDense(latentDim, true, "encoder.fc").
		Compile()
}

func decoderSpec(size, latentDim int) (*layers.ModelSpec, error) {
	last := len(encoderChannels) - 1
	deepest := encoderChannels[last]
	fm := size >> len(encoderChannels)

	b := layers.NewModelBuilder([]int{1, latentDim}).
		AddDense(deepest*fm*fm, true, "decoder.fc").
		AddReshape([]int{deepest, fm, fm}, "decoder.unflatten")

	for i := last; i >= 0; i-- {
		out := Channels
		if i > 0 {
			out = encoderChannels[i-1]
		}
		n := last - i + 1
		b.AddConvTranspose2D(out, kernelSize, stride, padding, outputPadding, true, fmt.Sprintf("decoder.deconv%d", n))
		if i > 0 {
			b.AddReLU(fmt.Sprintf("decoder.relu%d", n))
		} else {
			b.AddSigmoid("decoder.sigmoid")
		}
	}
	return b.Compile()
}

// New builds the model with parameters drawn from rng
func New(cfg Config, rng *rand.Rand, device tensor.DeviceType) (*Model, error) {
	return NewForImageSize(ImageSize, cfg, rng, device)
}

// NewForImageSize builds the same five-stage topology for a square image of
// a different size. size must be divisible by 32.
func NewForImageSize(size int, cfg Config, rng *rand.Rand, device tensor.DeviceType) (*Model, error) {
	if cfg.LatentDim <= 0 {
		return nil, fmt.Errorf("%w: latent_dim must be positive, got %d", ErrInvalidConfig, cfg.LatentDim)
	}
	if size <= 0 || size%(1<<len(encoderChannels)) != 0 {
		return nil, fmt.Errorf("%w: image size %d is not divisible by %d", ErrInvalidConfig, size, 1<<len(encoderChannels))
	}

	encSpec, err := encoderSpec(size, cfg.LatentDim)
	if err != nil {
		return nil, fmt.Errorf("compile encoder: %w", err)
	}
	decSpec, err := decoderSpec(size, cfg.LatentDim)
	if err != nil {
		return nil, fmt.Errorf("compile decoder: %w", err)
	}

	if !tensor.ShapesEqual(encSpec.OutputShape, []int{1, cfg.LatentDim}) {
		return nil, fmt.Errorf("%w: encoder produces %v, expected [N %d]", tensor.ErrShapeMismatch, encSpec.OutputShape, cfg.LatentDim)
	}
	if !tensor.ShapesEqual(decSpec.OutputShape, encSpec.InputShape) {
		return nil, fmt.Errorf("%w: decoder produces %v, expected %v", tensor.ErrShapeMismatch, decSpec.OutputShape, encSpec.InputShape)
	}

	enc, err := engine.NewSequential(encSpec, rng, device)
	if err != nil {
		return nil, fmt.Errorf("build encoder: %w", err)
	}
	dec, err := engine.NewSequential(decSpec, rng, device)
	if err != nil {
		return nil, fmt.Errorf("build decoder: %w", err)
	}

	return &Model{config: cfg, encoder: enc, decoder: dec}, nil
}

// LatentDim returns the width of the latent vector
func (m *Model) LatentDim() int {
	return m.config.LatentDim
}

// Device returns the device that holds the parameters
func (m *Model) Device() tensor.DeviceType {
	return m.encoder.Device()
}

// InputShape returns the per-sample input shape [C, H, W]
func (m *Model) InputShape() []int {
	return m.encoder.Spec().InputShape[1:]
}

// Forward encodes and decodes a batch. The trace is nil unless ctx.Grad is set.
func (m *Model) Forward(ctx engine.ExecContext, x *tensor.Tensor) (Output, *Trace, error) {
	latent, encTrace, err := m.encoder.Forward(ctx, x)
	if err != nil {
		return Output{}, nil, fmt.Errorf("encoder: %w", err)
	}
	recon, decTrace, err := m.decoder.Forward(ctx, latent)
	if err != nil {
		return Output{}, nil, fmt.Errorf("decoder: %w", err)
	}

	out := Output{Reconstruction: recon, Latent: latent}
	if !ctx.Grad {
		return out, nil, nil
	}
	return out, &Trace{encoder: encTrace, decoder: decTrace}, nil
}

// Encode returns only the latent vectors of a batch
func (m *Model) Encode(ctx engine.ExecContext, x *tensor.Tensor) (*tensor.Tensor, error) {
	latent, _, err := m.encoder.Forward(ctx, x)
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}
	return latent, nil
}

// Backward accumulates parameter gradients given the gradient of the loss
// w.r.t. the reconstruction.
func (m *Model) Backward(trace *Trace, gradReconstruction *tensor.Tensor) error {
	if trace == nil {
		return engine.ErrTraceMismatch
	}
	gradLatent, err := m.decoder.Backward(trace.decoder, gradReconstruction)
	if err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if _, err := m.encoder.Backward(trace.encoder, gradLatent); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	return nil
}

// Parameters returns every trainable tensor, encoder first
func (m *Model) Parameters() []*tensor.Tensor {
	return append(m.encoder.Parameters(), m.decoder.Parameters()...)
}

// NamedParameters returns Parameters labelled by stage name
func (m *Model) NamedParameters() []engine.NamedParameter {
	return append(m.encoder.NamedParameters(), m.decoder.NamedParameters()...)
}

// ImageSize returns the square input side length
func (m *Model) ImageSize() int {
	return m.encoder.Spec().InputShape[2]
}

// Summary renders both stacks
func (m *Model) Summary() string {
	var b strings.Builder
	b.WriteString("Encoder\n")
	b.WriteString(m.encoder.Spec().Summary())
	b.WriteString("Decoder\n")
	b.WriteString(m.decoder.Spec().Summary())
	fmt.Fprintf(&b, "Latent Dim: %d\n", m.config.LatentDim)
	fmt.Fprintf(&b, "Total Parameters: %d\n", m.encoder.Spec().TotalParameters+m.decoder.Spec().TotalParameters)
	return b.String()
}
