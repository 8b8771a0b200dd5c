package tensor

import (
	"errors"
	"math"
	"testing"
)

func TestMatMul(t *testing.T) {
	a, _ := NewTensor([]int{2, 3}, CPU, []float32{1, 2, 3, 4, 5, 6})
	b, _ := NewTensor([]int{3, 2}, CPU, []float32{7, 8, 9, 10, 11, 12})

	out, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("MatMul failed: %v", err)
	}
	expected := []float32{58, 64, 139, 154}
	for i, v := range expected {
		if out.Data[i] != v {
			t.Errorf("out[%d] = %v, expected %v", i, out.Data[i], v)
		}
	}

	t.Run("inner dimension mismatch", func(t *testing.T) {
		if _, err := MatMul(a, a); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("rank mismatch", func(t *testing.T) {
		v, _ := NewTensor([]int{3}, CPU, nil)
		if _, err := MatMul(a, v); !errors.Is(err, ErrShapeMismatch) {
			t.Errorf("expected ErrShapeMismatch, got %v", err)
		}
	})

	t.Run("device mismatch", func(t *testing.T) {
		g, _ := NewTensor([]int{3, 2}, Accelerator, nil)
		if _, err := MatMul(a, g); !errors.Is(err, ErrDeviceMismatch) {
			t.Errorf("expected ErrDeviceMismatch, got %v", err)
		}
	})
}

func TestGemmTransposes(t *testing.T) {
	// a is 2x3, b is 3x2
	a := []float32{1, 2, 3, 4, 5, 6}
	b := []float32{7, 8, 9, 10, 11, 12}
	want := []float32{58, 64, 139, 154}

	// a^T stored as 3x2
	aT := []float32{1, 4, 2, 5, 3, 6}
	// b^T stored as 2x3
	bT := []float32{7, 9, 11, 8, 10, 12}

	cases := []struct {
		name   string
		ta, tb bool
		a, b   []float32
	}{
		{"NN", false, false, a, b},
		{"TN", true, false, aT, b},
		{"NT", false, true, a, bT},
		{"TT", true, true, aT, bT},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := make([]float32, 4)
			Gemm(tc.ta, tc.tb, 2, 2, 3, 1, tc.a, tc.b, 0, c)
			for i := range want {
				if math.Abs(float64(c[i]-want[i])) > 1e-4 {
					t.Errorf("c[%d] = %v, expected %v", i, c[i], want[i])
				}
			}
		})
	}

	t.Run("beta accumulates", func(t *testing.T) {
		c := []float32{1, 1, 1, 1}
		Gemm(false, false, 2, 2, 3, 1, a, b, 1, c)
		for i := range want {
			if c[i] != want[i]+1 {
				t.Errorf("c[%d] = %v, expected %v", i, c[i], want[i]+1)
			}
		}
	})
}
