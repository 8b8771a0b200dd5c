package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Gemm computes c = alpha*op(a)*op(b) + beta*c on row-major slices, where
// op(a) is m×k and op(b) is k×n. When transA is set, a is stored k×m;
// when transB is set, b is stored n×k.
func Gemm(transA, transB bool, m, n, k int, alpha float32, a, b []float32, beta float32, c []float32) {
	ta, tb := blas.NoTrans, blas.NoTrans
	ga := blas32.General{Rows: m, Cols: k, Stride: k, Data: a}
	if transA {
		ta = blas.Trans
		ga = blas32.General{Rows: k, Cols: m, Stride: m, Data: a}
	}
	gb := blas32.General{Rows: k, Cols: n, Stride: n, Data: b}
	if transB {
		tb = blas.Trans
		gb = blas32.General{Rows: n, Cols: k, Stride: k, Data: b}
	}
	gc := blas32.General{Rows: m, Cols: n, Stride: n, Data: c}

	blas32.Gemm(ta, tb, alpha, ga, gb, beta, gc)
}

// MatMul multiplies two 2-D tensors: [m,k] x [k,n] -> [m,n]
func MatMul(t1, t2 *Tensor) (*Tensor, error) {
	if t1.Rank() != 2 || t2.Rank() != 2 {
		return nil, fmt.Errorf("%w: MatMul requires 2D tensors, got %v and %v", ErrShapeMismatch, t1.Shape, t2.Shape)
	}
	if t1.Device != t2.Device {
		return nil, fmt.Errorf("%w: %s vs %s", ErrDeviceMismatch, t1.Device, t2.Device)
	}

	m, k := t1.Shape[0], t1.Shape[1]
	k2, n := t2.Shape[0], t2.Shape[1]
	if k != k2 {
		return nil, fmt.Errorf("%w: inner dimensions %d and %d differ", ErrShapeMismatch, k, k2)
	}

	out, err := Zeros([]int{m, n}, t1.Device)
	if err != nil {
		return nil, err
	}
	Gemm(false, false, m, n, k, 1, t1.Data, t2.Data, 0, out.Data)
	return out, nil
}
