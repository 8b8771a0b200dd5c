package engine

import (
	"fmt"
	"math/rand"

	"github.com/tsawler/go-latent/layers"
	"github.com/tsawler/go-latent/memory"
	"github.com/tsawler/go-latent/parallel"
	"github.com/tsawler/go-latent/tensor"
)

// conv2DStage is a square-kernel convolution computed per sample as
// W[O, C*K*K] x im2col(x)[C*K*K, OH*OW].
type conv2DStage struct {
	name    string
	weight  *tensor.Tensor // [O, C, K, K]
	bias    *tensor.Tensor // [O] or nil
	geom    tensor.ConvGeometry
	outC    int
	workers int
}

func newConv2DStage(spec layers.LayerSpec, rng *rand.Rand, device tensor.DeviceType, workers int) (*conv2DStage, error) {
	inC := spec.InputShape[1]
	k := spec.IntParam("kernel_size", 0)
	s := &conv2DStage{
		name: spec.Name,
		outC: spec.OutputShape[1],
		geom: tensor.ConvGeometry{
			Channels:  inC,
			Height:    spec.InputShape[2],
			Width:     spec.InputShape[3],
			Kernel:    k,
			Stride:    spec.IntParam("stride", 1),
			Padding:   spec.IntParam("padding", 0),
			OutHeight: spec.OutputShape[2],
			OutWidth:  spec.OutputShape[3],
		},
		workers: workers,
	}

	fanIn := inC * k * k
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

func (s *conv2DStage) Name() string { return s.name }

func (s *conv2DStage) Parameters() []*tensor.Tensor {
	if s.bias == nil {
		return []*tensor.Tensor{s.weight}
	}
	return []*tensor.Tensor{s.weight, s.bias}
}

func (s *conv2DStage) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	g := s.geom
	n := x.Shape[0]
	out, err := tensor.Zeros([]int{n, s.outC, g.OutHeight, g.OutWidth}, x.Device)
	if err != nil {
		return nil, err
	}

	rows, cols := g.Rows(), g.Cols()
	parallel.ForEach(n, s.workers, func(i int) {
		buf := memory.Get(rows * cols)
		defer memory.Put(buf)
		tensor.Im2Col(g, x.Sample(i), buf)
		dst := out.Sample(i)
		tensor.Gemm(false, false, s.outC, cols, rows, 1, s.weight.Data, buf, 0, dst)
		if s.bias != nil {
			addChannelBias(dst, s.bias.Data, cols)
		}
	})
	return out, nil
}

func (s *conv2DStage) Backward(x, y, gradOut *tensor.Tensor) (*tensor.Tensor, error) {
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
		tensor.Im2Col(g, x.Sample(i), buf)
		dy := gradOut.Sample(i)

		// dW = dY[O, OHW] x cols^T
		dw := make([]float32, s.weight.NumElems)
		tensor.Gemm(false, true, s.outC, rows, cols, 1, dy, buf, 0, dw)
		partials[i] = dw

		// dCols = W^T x dY, folded back onto the input image
		tensor.Gemm(true, false, rows, cols, s.outC, 1, s.weight.Data, dy, 0, buf)
		tensor.Col2Im(g, buf, gradIn.Sample(i))
	})

	if err := s.weight.AccumulateGrad(sumPartials(partials)); err != nil {
		return nil, err
	}
	if s.bias != nil {
		if err := s.bias.AccumulateGrad(channelBiasGrad(gradOut, s.outC)); err != nil {
			return nil, err
		}
	}
	return gradIn, nil
}

// addChannelBias adds b[c] to every element of channel c of a [C, spatial] block
func addChannelBias(dst, b []float32, spatial int) {
	for c, v := range b {
		plane := dst[c*spatial : (c+1)*spatial]
		for j := range plane {
			plane[j] += v
		}
	}
}

// channelBiasGrad sums a [N, C, ...] gradient over every axis except C
func channelBiasGrad(gradOut *tensor.Tensor, channels int) []float32 {
	db := make([]float32, channels)
	n := gradOut.Shape[0]
	spatial := gradOut.NumElems / (n * channels)
	for i := 0; i < n; i++ {
		sample := gradOut.Sample(i)
		for c := 0; c < channels; c++ {
			var sum float32
			for _, v := range sample[c*spatial : (c+1)*spatial] {
				sum += v
			}
			db[c] += sum
		}
	}
	return db
}

func sumPartials(partials [][]float32) []float32 {
	total := partials[0]
	for _, p := range partials[1:] {
		for j, v := range p {
			total[j] += v
		}
	}
	return total
}
