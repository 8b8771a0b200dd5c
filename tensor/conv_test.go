package tensor

import (
	"math"
	"math/rand"
	"testing"
)

func TestConvOutputSizes(t *testing.T) {
	tests := []struct {
		in, k, s, p, op int
		conv, convT     int
	}{
		{512, 3, 2, 1, 1, 256, 1024},
		{16, 3, 2, 1, 1, 8, 32},
		{5, 3, 1, 1, 0, 5, 5},
	}

	for _, tt := range tests {
		if got := ConvOutputSize(tt.in, tt.k, tt.s, tt.p); got != tt.conv {
			t.Errorf("ConvOutputSize(%d) = %d, expected %d", tt.in, got, tt.conv)
		}
		if got := ConvTransposeOutputSize(tt.in, tt.k, tt.s, tt.p, tt.op); got != tt.convT {
			t.Errorf("ConvTransposeOutputSize(%d) = %d, expected %d", tt.in, got, tt.convT)
		}
	}
}

func TestIm2Col(t *testing.T) {
	// 1 channel 3x3 image, 2x2 kernel, stride 1, no padding
	g := ConvGeometry{Channels: 1, Height: 3, Width: 3, Kernel: 2, Stride: 1, Padding: 0, OutHeight: 2, OutWidth: 2}
	img := []float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}
	cols := make([]float32, g.Rows()*g.Cols())
	Im2Col(g, img, cols)

	expected := []float32{
		1, 2, 4, 5, // kh=0 kw=0
		2, 3, 5, 6, // kh=0 kw=1
		4, 5, 7, 8, // kh=1 kw=0
		5, 6, 8, 9, // kh=1 kw=1
	}
	for i, v := range expected {
		if cols[i] != v {
			t.Errorf("cols[%d] = %v, expected %v", i, cols[i], v)
		}
	}
}

func TestIm2ColPadding(t *testing.T) {
	g := ConvGeometry{Channels: 1, Height: 2, Width: 2, Kernel: 3, Stride: 2, Padding: 1, OutHeight: 1, OutWidth: 1}
	img := []float32{1, 2, 3, 4}
	cols := make([]float32, g.Rows())
	for i := range cols {
		cols[i] = -1
	}
	Im2Col(g, img, cols)

	expected := []float32{0, 0, 0, 0, 1, 2, 0, 3, 4}
	for i, v := range expected {
		if cols[i] != v {
			t.Errorf("cols[%d] = %v, expected %v", i, cols[i], v)
		}
	}
}

// <Im2Col(x), y> must equal <x, Col2Im(y)> for the pair to be adjoint
func TestCol2ImIsAdjoint(t *testing.T) {
	g := ConvGeometry{Channels: 2, Height: 5, Width: 4, Kernel: 3, Stride: 2, Padding: 1}
	g.OutHeight = ConvOutputSize(g.Height, g.Kernel, g.Stride, g.Padding)
	g.OutWidth = ConvOutputSize(g.Width, g.Kernel, g.Stride, g.Padding)

	rng := rand.New(rand.NewSource(7))
	x := make([]float32, g.Channels*g.Height*g.Width)
	for i := range x {
		x[i] = rng.Float32()*2 - 1
	}
	y := make([]float32, g.Rows()*g.Cols())
	for i := range y {
		y[i] = rng.Float32()*2 - 1
	}

	cols := make([]float32, len(y))
	Im2Col(g, x, cols)
	var lhs float64
	for i := range cols {
		lhs += float64(cols[i]) * float64(y[i])
	}

	img := make([]float32, len(x))
	Col2Im(g, y, img)
	var rhs float64
	for i := range img {
		rhs += float64(x[i]) * float64(img[i])
	}

	if math.Abs(lhs-rhs) > 1e-4 {
		t.Errorf("adjoint check failed: %v vs %v", lhs, rhs)
	}
}
