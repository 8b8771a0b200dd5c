package engine

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/memory"
	"github.com/tsawler/go-latent/parallel"
	"github.com/tsawler/go-latent/tensor"
)

// convTranspose2DStage is the adjoint of a convolution. Each input pixel
// scatters a K×K window into the output: the column matrix
// W[Cin, Cout*K*K]^T x x[Cin, H*W] is folded onto the output image with
// col2im, whose window grid is the input grid.
type convTranspose2DStage struct {
	name    string
	weight  *tensor.Tensor // [Cin, Cout, K, K]
	bias    *tensor.Tensor // [Cout] or nil
	geom    tensor.ConvGeometry
	inC     int
	workers int
}

func newConvTranspose2DStage(spec layers.LayerSpec, rng *rand.Rand, device tensor.DeviceType, workers int) (*convTranspose2DStage, error) {
	outC := spec.OutputShape[1]
	k := spec.IntParam("kernel_size", 0)
	s := &convTranspose2DStage{
		name: spec.Name,
		inC:  spec.InputShape[1],
		geom: tensor.ConvGeometry{
			Channels:  outC,
			Height:    spec.OutputShape[2],
			Width:     spec.OutputShape[3],
			Kernel:    k,
			Stride:    spec.IntParam("stride", 1),
			Padding:   spec.IntParam("padding", 0),
			OutHeight: spec.InputShape[2],
			OutWidth:  spec.InputShape[3],
		},
		workers: workers,
	}

	// fan_in of a transposed convolution is computed from weight dim 1
	fanIn := outC * k * k
	var err error
	if s.weight, err = newParameter(rng, spec.ParameterShapes[0], fanIn, device); err != nil {
		return nil, fmt.Errorf("weight: %w", err)
	}
	if spec.BoolParam("use_bias", true) {
		if s.bias, err = newParameter(rng, spec.ParameterShapes[1], fanIn, device); err != nil {
			return nil, fmt.Errorf("bias: %w", err)
		}
	}
	return s, nil
}

func (s *convTranspose2DStage) Name() string { return s.name }

func (s *convTranspose2DStage) Parameters() []*tensor.Tensor {
	if s.bias == nil {
		return []*tensor.Tensor{s.weight}
	}
	return []*tensor.Tensor{s.weight, s.bias}
}

func (s *convTranspose2DStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	g := s.geom
	n := x.Shape[0]
	out, err := tensor.Zeros([]int{n, g.Channels, g.Height, g.Width}, x.Device)
	if err != nil {
		return nil, err
	}

	rows, cols := g.Rows(), g.Cols()
	parallel.ForEach(n, s.workers, func(i int) {
		buf := memory.Get(rows * cols)
		defer memory.Put(buf)
		tensor.Gemm(true, false, rows, cols, s.inC, 1, s.weight.Data, x.Sample(i), 0, buf)
		dst := out.Sample(i)
		tensor.Col2Im(g, buf, dst)
		if s.bias != nil {
			addChannelBias(dst, s.bias.Data, g.Height*g.Width)
		}
	})
	return out, nil
}

func (s *convTranspose2DStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
	g := s.geom
	n := x.Shape[0]
	gradIn, err := tensor.Zeros(x.Shape, x.Device)
	if err != nil {
		return nil, err
	}

	rows, cols := g.Rows(), g.Cols()
	partials := make([][]float32, n)
	parallel.ForEach(n, s.workers, func(i int) {
		buf := memory.Get(rows * cols)
		defer memory.Put(buf)
		tensor.Im2Col(g, gradOut.Sample(i), buf)

		// dX = W[Cin, CoutKK] x dCols
		tensor.Gemm(false, false, s.inC, cols, rows, 1, s.weight.Data, buf, 0, gradIn.Sample(i))

		// dW = X[Cin, HW] x dCols^T
		dw := make([]float32, s.weight.NumElems)
		tensor.Gemm(false, true, s.inC, rows, cols, 1, x.Sample(i), buf, 0, dw)
		partials[i] = dw
	})

	if err := s.weight.AccumulateGrad(sumPartials(partials)); err != nil {
		return nil, err
	}
	if s.bias != nil {
		if err := s.bias.AccumulateGrad(channelBiasGrad(gradOut, g.Channels)); err != nil {
			return nil, err
		}
	}
	return gradIn, nil
}
