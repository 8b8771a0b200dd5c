package tensor

// ConvGeometry describes a square-kernel convolution window sliding over an
// image of Channels×Height×Width and producing a grid of OutHeight×OutWidth
// positions.
type ConvGeometry struct {
	Channels  int
	Height    int
	Width     int
	Kernel    int
	Stride    int
	Padding   int
	OutHeight int
	OutWidth  int
}

// ConvOutputSize is the number of window positions along one axis
func ConvOutputSize(in, kernel, stride, padding int) int {
	return (in+2*padding-kernel)/stride + 1
}

// ConvTransposeOutputSize is the spatial size produced by a transposed
// convolution, the inverse of ConvOutputSize when outputPadding resolves
// the rounding of the forward stride.
func ConvTransposeOutputSize(in, kernel, stride, padding, outputPadding int) int {
	return (in-1)*stride - 2*padding + kernel + outputPadding
}

// Rows is the column-matrix height: Channels*Kernel*Kernel
func (g ConvGeometry) Rows() int {
	return g.Channels * g.Kernel * g.Kernel
}

// Cols is the column-matrix width: OutHeight*OutWidth
func (g ConvGeometry) Cols() int {
	return g.OutHeight * g.OutWidth
}

// Im2Col unfolds one image into a [Rows, Cols] matrix. Positions that fall
// into the zero padding produce zeros.
func Im2Col(g ConvGeometry, img, cols []float32) {
	k := g.Kernel
	outCols := g.Cols()
	for c := 0; c < g.Channels; c++ {
		plane := img[c*g.Height*g.Width : (c+1)*g.Height*g.Width]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := cols[((c*k+kh)*k+kw)*outCols:]
				for oh := 0; oh < g.OutHeight; oh++ {
					ih := oh*g.Stride - g.Padding + kh
					dst := row[oh*g.OutWidth : (oh+1)*g.OutWidth]
					if ih < 0 || ih >= g.Height {
						for i := range dst {
							dst[i] = 0
						}
						continue
					}
					src := plane[ih*g.Width : (ih+1)*g.Width]
					for ow := range dst {
						iw := ow*g.Stride - g.Padding + kw
						if iw < 0 || iw >= g.Width {
							dst[ow] = 0
						} else {
							dst[ow] = src[iw]
						}
					}
				}
			}
		}
	}
}

// Col2Im folds a [Rows, Cols] matrix back into an image, summing overlapping
// windows. It is the adjoint of Im2Col. img is accumulated into, not reset.
func Col2Im(g ConvGeometry, cols, img []float32) {
	k := g.Kernel
	outCols := g.Cols()
	for c := 0; c < g.Channels; c++ {
		plane := img[c*g.Height*g.Width : (c+1)*g.Height*g.Width]
		for kh := 0; kh < k; kh++ {
			for kw := 0; kw < k; kw++ {
				row := cols[((c*k+kh)*k+kw)*outCols:]
				for oh := 0; oh < g.OutHeight; oh++ {
					ih := oh*g.Stride - g.Padding + kh
					if ih < 0 || ih >= g.Height {
						continue
					}
					src := row[oh*g.OutWidth : (oh+1)*g.OutWidth]
					dst := plane[ih*g.Width : (ih+1)*g.Width]
					for ow, v := range src {
						iw := ow*g.Stride - g.Padding + kw
						if iw >= 0 && iw < g.Width {
							dst[iw] += v
						}
					}
				}
			}
		}
	}
}
